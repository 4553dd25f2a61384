package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examforge/internal/common"
	"examforge/internal/domain/model"
)

type ExamRepository interface {
	Create(ctx context.Context, exam *model.Exam) error
	FindByID(ctx context.Context, id string) (*model.Exam, error)
	// FindByIDForUpdate locks the exam row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Exam, error)
	List(ctx context.Context, publishedOnly bool) ([]model.Exam, error)
	UpdateMetadata(ctx context.Context, exam *model.Exam) error
	// ApplyLedgerDelta is the only write path for incremental ledger changes.
	ApplyLedgerDelta(ctx context.Context, examID string, category model.QuestionCategory, delta model.Points) (model.PointLedger, error)
	ReplaceLedger(ctx context.Context, examID string, ledger model.PointLedger) error
	MarkPublished(ctx context.Context, examID string) error
	Delete(ctx context.Context, examID string) error
}

type pgExamRepository struct {
	db *sql.DB
}

func NewPgExamRepository(db *sql.DB) ExamRepository {
	return &pgExamRepository{db: db}
}

const examColumns = `id, title, slug, description, opens_at, closes_at, duration_minutes, is_published,
	total_points, problem_solving_points, written_points, mcq_points, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(
		&e.ID, &e.Title, &e.Slug, &e.Description, &e.OpensAt, &e.ClosesAt, &e.DurationMinutes, &e.IsPublished,
		&e.Ledger.TotalPoints, &e.Ledger.ProblemSolvingPoints, &e.Ledger.WrittenPoints, &e.Ledger.McqPoints,
		&e.CreatedByID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// requireRows turns a write that touched nothing into common.ErrFailure.
func requireRows(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, common.ErrFailure)
	}
	return nil
}

func (r *pgExamRepository) Create(ctx context.Context, e *model.Exam) error {
	query := `INSERT INTO exams (id, title, slug, description, opens_at, closes_at, duration_minutes, is_published,
	              total_points, problem_solving_points, written_points, mcq_points, created_by, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.Title, e.Slug, e.Description, e.OpensAt, e.ClosesAt, e.DurationMinutes, e.IsPublished,
		e.Ledger.TotalPoints, e.Ledger.ProblemSolvingPoints, e.Ledger.WrittenPoints, e.Ledger.McqPoints,
		e.CreatedByID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgExamRepository.Create: %w", err)
	}
	return requireRows(res, "pgExamRepository.Create")
}

func (r *pgExamRepository) FindByID(ctx context.Context, id string) (*model.Exam, error) {
	return r.find(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
}

func (r *pgExamRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Exam, error) {
	return r.find(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgExamRepository) find(ctx context.Context, query, id string) (*model.Exam, error) {
	e, err := scanExam(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.Errorf("exam %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgExamRepository.FindByID: %w", err)
	}
	return e, nil
}

func (r *pgExamRepository) List(ctx context.Context, publishedOnly bool) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams`
	if publishedOnly {
		query += ` WHERE is_published = TRUE`
	}
	query += ` ORDER BY opens_at DESC, id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgExamRepository.List query: %w", err)
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("pgExamRepository.List scan: %w", err)
		}
		exams = append(exams, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgExamRepository.List rows.Err: %w", err)
	}
	return exams, nil
}

func (r *pgExamRepository) UpdateMetadata(ctx context.Context, e *model.Exam) error {
	query := `UPDATE exams SET
	              title = $1, slug = $2, description = $3, opens_at = $4, closes_at = $5,
	              duration_minutes = $6, updated_at = $7
	          WHERE id = $8 AND is_published = FALSE`
	res, err := conn(ctx, r.db).ExecContext(ctx, query,
		e.Title, e.Slug, e.Description, e.OpensAt, e.ClosesAt, e.DurationMinutes, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("pgExamRepository.UpdateMetadata: %w", err)
	}
	return requireRows(res, "pgExamRepository.UpdateMetadata")
}

func ledgerColumn(c model.QuestionCategory) (string, error) {
	switch c {
	case model.CategoryProblemSolving:
		return "problem_solving_points", nil
	case model.CategoryWritten:
		return "written_points", nil
	case model.CategoryMCQ:
		return "mcq_points", nil
	}
	return "", fmt.Errorf("unknown question category %q", c)
}

func (r *pgExamRepository) ApplyLedgerDelta(ctx context.Context, examID string, c model.QuestionCategory, delta model.Points) (model.PointLedger, error) {
	col, err := ledgerColumn(c)
	if err != nil {
		return model.PointLedger{}, err
	}
	// The delta is applied in SQL so concurrent writers cannot lose an update.
	query := fmt.Sprintf(`UPDATE exams SET
	              %[1]s = %[1]s + $1, total_points = total_points + $1, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $2 AND is_published = FALSE
	          RETURNING total_points, problem_solving_points, written_points, mcq_points`, col)

	var l model.PointLedger
	err = conn(ctx, r.db).QueryRowContext(ctx, query, delta, examID).Scan(
		&l.TotalPoints, &l.ProblemSolvingPoints, &l.WrittenPoints, &l.McqPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l, fmt.Errorf("pgExamRepository.ApplyLedgerDelta exam %s: %w", examID, common.ErrFailure)
		}
		return l, fmt.Errorf("pgExamRepository.ApplyLedgerDelta: %w", err)
	}
	return l, nil
}

func (r *pgExamRepository) ReplaceLedger(ctx context.Context, examID string, l model.PointLedger) error {
	query := `UPDATE exams SET
	              total_points = $1, problem_solving_points = $2, written_points = $3, mcq_points = $4,
	              updated_at = CURRENT_TIMESTAMP
	          WHERE id = $5 AND is_published = FALSE`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, l.TotalPoints, l.ProblemSolvingPoints, l.WrittenPoints, l.McqPoints, examID)
	if err != nil {
		return fmt.Errorf("pgExamRepository.ReplaceLedger: %w", err)
	}
	return requireRows(res, "pgExamRepository.ReplaceLedger")
}

func (r *pgExamRepository) MarkPublished(ctx context.Context, examID string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE exams SET is_published = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_published = FALSE`, examID)
	if err != nil {
		return fmt.Errorf("pgExamRepository.MarkPublished: %w", err)
	}
	return requireRows(res, "pgExamRepository.MarkPublished")
}

func (r *pgExamRepository) Delete(ctx context.Context, examID string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM exams WHERE id = $1 AND is_published = FALSE`, examID)
	if err != nil {
		return fmt.Errorf("pgExamRepository.Delete: %w", err)
	}
	return requireRows(res, "pgExamRepository.Delete")
}
