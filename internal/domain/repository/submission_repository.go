package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"examforge/internal/common"
	"examforge/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	FindByID(ctx context.Context, id string) (*model.Submission, error)
	// FindByIDForUpdate locks the submission row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Submission, error)
	FindByQuestionAndCandidate(ctx context.Context, questionID, candidateID string) (*model.Submission, error)
	// UpdateAnswer overwrites the answer payload and bumps the attempt counter
	// in one statement, returning the new attempt count.
	UpdateAnswer(ctx context.Context, s *model.Submission) (int, error)
	// ReplaceOutputs stores outputs as the full, ordered output list of a submission.
	ReplaceOutputs(ctx context.Context, submissionID string, outputs []model.TestCaseOutput) error
	UpdateScore(ctx context.Context, submissionID string, score *model.Points, at time.Time) error
	ListByExam(ctx context.Context, examID string) ([]model.Submission, error)
	ListByExamAndCandidate(ctx context.Context, examID, candidateID string) ([]model.Submission, error)
	ListByQuestion(ctx context.Context, questionID string) ([]model.Submission, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

const submissionColumns = `id, exam_id, question_id, candidate_id, category, attempts, score,
	code, language, answer, selected_options, created_at, updated_at`

// answerColumns flattens the category payload into nullable columns.
func answerColumns(s *model.Submission) (code, language, answer, selected sql.NullString) {
	switch {
	case s.Problem != nil:
		code = sql.NullString{String: s.Problem.Code, Valid: true}
		language = sql.NullString{String: s.Problem.Language, Valid: true}
	case s.Written != nil:
		answer = sql.NullString{String: s.Written.Answer, Valid: true}
	case s.Mcq != nil:
		selected = sql.NullString{String: model.FormatAnswerIndices(s.Mcq.Selected), Valid: true}
	}
	return
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	s := &model.Submission{}
	var score model.NullPoints
	var code, language, answer, selected sql.NullString
	err := row.Scan(&s.ID, &s.ExamID, &s.QuestionID, &s.CandidateID, &s.Category, &s.Attempts, &score,
		&code, &language, &answer, &selected, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Score = score.Points

	switch s.Category {
	case model.CategoryProblemSolving:
		s.Problem = &model.ProblemAnswer{Code: code.String, Language: language.String}
	case model.CategoryWritten:
		s.Written = &model.WrittenAnswer{Answer: answer.String}
	case model.CategoryMCQ:
		indices, err := model.ParseAnswerIndices(selected.String)
		if err != nil {
			return nil, fmt.Errorf("submission %s selected options: %w", s.ID, err)
		}
		s.Mcq = &model.McqAnswer{Selected: indices}
	}
	return s, nil
}

func (r *pgSubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	code, language, answer, selected := answerColumns(s)
	query := `INSERT INTO submissions (` + submissionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, s.ID, s.ExamID, s.QuestionID, s.CandidateID, s.Category,
		s.Attempts, model.NullPoints{Points: s.Score}, code, language, answer, selected, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("submission for this question and candidate already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgSubmissionRepository.Create: %w", err)
	}
	if err := requireRows(res, "pgSubmissionRepository.Create"); err != nil {
		return err
	}
	if s.Problem != nil {
		return r.ReplaceOutputs(ctx, s.ID, s.Problem.TestCaseOutputs)
	}
	return nil
}

func (r *pgSubmissionRepository) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	return r.findOne(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
}

func (r *pgSubmissionRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Submission, error) {
	return r.findOne(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgSubmissionRepository) FindByQuestionAndCandidate(ctx context.Context, questionID, candidateID string) (*model.Submission, error) {
	return r.findOne(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE question_id = $1 AND candidate_id = $2`,
		questionID, candidateID)
}

func (r *pgSubmissionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*model.Submission, error) {
	s, err := scanSubmission(conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("submission: %w", common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgSubmissionRepository.findOne: %w", err)
	}
	if err := r.loadOutputs(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *pgSubmissionRepository) loadOutputs(ctx context.Context, s *model.Submission) error {
	if s.Problem == nil {
		return nil
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT test_case_id, accepted, received_output FROM test_case_outputs
		 WHERE submission_id = $1 ORDER BY position`, s.ID)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.loadOutputs query: %w", err)
	}
	defer rows.Close()

	outputs := []model.TestCaseOutput{}
	for rows.Next() {
		var o model.TestCaseOutput
		if err := rows.Scan(&o.TestCaseID, &o.Accepted, &o.ReceivedOutput); err != nil {
			return fmt.Errorf("pgSubmissionRepository.loadOutputs scan: %w", err)
		}
		outputs = append(outputs, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgSubmissionRepository.loadOutputs rows.Err: %w", err)
	}
	s.Problem.TestCaseOutputs = outputs
	return nil
}

func (r *pgSubmissionRepository) UpdateAnswer(ctx context.Context, s *model.Submission) (int, error) {
	code, language, answer, selected := answerColumns(s)
	query := `UPDATE submissions SET attempts = attempts + 1,
	              code = $1, language = $2, answer = $3, selected_options = $4, updated_at = $5
	          WHERE id = $6
	          RETURNING attempts`
	var attempts int
	err := conn(ctx, r.db).QueryRowContext(ctx, query, code, language, answer, selected, s.UpdatedAt, s.ID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("pgSubmissionRepository.UpdateAnswer %s: %w", s.ID, common.ErrFailure)
		}
		return 0, fmt.Errorf("pgSubmissionRepository.UpdateAnswer: %w", err)
	}
	return attempts, nil
}

func (r *pgSubmissionRepository) ReplaceOutputs(ctx context.Context, submissionID string, outputs []model.TestCaseOutput) error {
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, `DELETE FROM test_case_outputs WHERE submission_id = $1`, submissionID); err != nil {
		return fmt.Errorf("pgSubmissionRepository.ReplaceOutputs delete: %w", err)
	}
	for i, o := range outputs {
		_, err := db.ExecContext(ctx,
			`INSERT INTO test_case_outputs (submission_id, test_case_id, position, accepted, received_output)
			 VALUES ($1, $2, $3, $4, $5)`,
			submissionID, o.TestCaseID, i, o.Accepted, o.ReceivedOutput)
		if err != nil {
			return fmt.Errorf("pgSubmissionRepository.ReplaceOutputs insert: %w", err)
		}
	}
	return nil
}

func (r *pgSubmissionRepository) UpdateScore(ctx context.Context, submissionID string, score *model.Points, at time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE submissions SET score = $1, updated_at = $2 WHERE id = $3`,
		model.NullPoints{Points: score}, at, submissionID)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.UpdateScore: %w", err)
	}
	return requireRows(res, "pgSubmissionRepository.UpdateScore")
}

func (r *pgSubmissionRepository) ListByExam(ctx context.Context, examID string) ([]model.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE exam_id = $1
	                    ORDER BY candidate_id, created_at, id`, examID)
}

func (r *pgSubmissionRepository) ListByExamAndCandidate(ctx context.Context, examID, candidateID string) ([]model.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE exam_id = $1 AND candidate_id = $2
	                    ORDER BY created_at, id`, examID, candidateID)
}

func (r *pgSubmissionRepository) ListByQuestion(ctx context.Context, questionID string) ([]model.Submission, error) {
	return r.list(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE question_id = $1
	                    ORDER BY created_at, id`, questionID)
}

func (r *pgSubmissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]model.Submission, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.list query: %w", err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.list scan: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.list rows.Err: %w", err)
	}
	rows.Close()

	for i := range subs {
		if err := r.loadOutputs(ctx, &subs[i]); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
