package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"examforge/internal/common"
	"examforge/internal/domain/model"
)

type QuestionRepository interface {
	// Create inserts the question together with its test cases or MCQ option.
	Create(ctx context.Context, q *model.Question) error
	// FindByID loads a non-deleted question with its children.
	FindByID(ctx context.Context, id string) (*model.Question, error)
	// FindByIDForUpdate is FindByID with the question row locked for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Question, error)
	// ListByExam returns every non-deleted question of an exam, children included.
	ListByExam(ctx context.Context, examID string) ([]model.Question, error)
	Update(ctx context.Context, q *model.Question) error
	DeleteChildren(ctx context.Context, questionID string) error
	AddTestCase(ctx context.Context, tc *model.TestCase) error
	DeleteTestCase(ctx context.Context, questionID, testCaseID string) error
	// GetTestCases returns the question's test cases ordered by creation time, then id.
	GetTestCases(ctx context.Context, questionID string) ([]model.TestCase, error)
}

type pgQuestionRepository struct {
	db *sql.DB
}

func NewPgQuestionRepository(db *sql.DB) QuestionRepository {
	return &pgQuestionRepository{db: db}
}

const questionColumns = `id, exam_id, category, statement, points, difficulty, state, long_answer, created_at, updated_at`

func scanQuestion(row rowScanner) (*model.Question, error) {
	q := &model.Question{}
	err := row.Scan(&q.ID, &q.ExamID, &q.Category, &q.Statement, &q.Points, &q.Difficulty, &q.State,
		&q.LongAnswer, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *pgQuestionRepository) Create(ctx context.Context, q *model.Question) error {
	db := conn(ctx, r.db)
	query := `INSERT INTO questions (` + questionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	res, err := db.ExecContext(ctx, query, q.ID, q.ExamID, q.Category, q.Statement, q.Points, q.Difficulty,
		q.State, q.LongAnswer, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.Create: %w", err)
	}
	if err := requireRows(res, "pgQuestionRepository.Create"); err != nil {
		return err
	}

	for i := range q.TestCases {
		if err := r.AddTestCase(ctx, &q.TestCases[i]); err != nil {
			return err
		}
	}
	if q.McqOption != nil {
		opts, err := json.Marshal(q.McqOption.Options)
		if err != nil {
			return fmt.Errorf("pgQuestionRepository.Create marshal options: %w", err)
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO mcq_options (id, question_id, options, multi_select, correct_answers) VALUES ($1, $2, $3, $4, $5)`,
			q.McqOption.ID, q.ID, opts, q.McqOption.MultiSelect, q.McqOption.CorrectAnswers)
		if err != nil {
			return fmt.Errorf("pgQuestionRepository.Create mcq option: %w", err)
		}
	}
	return nil
}

func (r *pgQuestionRepository) FindByID(ctx context.Context, id string) (*model.Question, error) {
	return r.findOne(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1 AND state <> 'Deleted'`, id)
}

func (r *pgQuestionRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Question, error) {
	return r.findOne(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1 AND state <> 'Deleted' FOR UPDATE`, id)
}

func (r *pgQuestionRepository) findOne(ctx context.Context, query, id string) (*model.Question, error) {
	q, err := scanQuestion(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("question %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgQuestionRepository.findOne: %w", err)
	}
	if err := r.loadChildren(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *pgQuestionRepository) ListByExam(ctx context.Context, examID string) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions
	          WHERE exam_id = $1 AND state <> 'Deleted' ORDER BY created_at, id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, examID)
	if err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.ListByExam query: %w", err)
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("pgQuestionRepository.ListByExam scan: %w", err)
		}
		questions = append(questions, *q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.ListByExam rows.Err: %w", err)
	}
	rows.Close()

	for i := range questions {
		if err := r.loadChildren(ctx, &questions[i]); err != nil {
			return nil, err
		}
	}
	return questions, nil
}

func (r *pgQuestionRepository) loadChildren(ctx context.Context, q *model.Question) error {
	switch q.Category {
	case model.CategoryProblemSolving:
		tcs, err := r.GetTestCases(ctx, q.ID)
		if err != nil {
			return err
		}
		q.TestCases = tcs
	case model.CategoryMCQ:
		opt := &model.McqOption{QuestionID: q.ID}
		var raw []byte
		err := conn(ctx, r.db).QueryRowContext(ctx,
			`SELECT id, options, multi_select, correct_answers FROM mcq_options WHERE question_id = $1`, q.ID).
			Scan(&opt.ID, &raw, &opt.MultiSelect, &opt.CorrectAnswers)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("pgQuestionRepository.loadChildren mcq: %w", err)
		}
		if err := json.Unmarshal(raw, &opt.Options); err != nil {
			return fmt.Errorf("pgQuestionRepository.loadChildren decode options: %w", err)
		}
		q.McqOption = opt
	}
	return nil
}

func (r *pgQuestionRepository) Update(ctx context.Context, q *model.Question) error {
	query := `UPDATE questions SET statement = $1, points = $2, difficulty = $3, state = $4,
	              long_answer = $5, updated_at = $6
	          WHERE id = $7`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, q.Statement, q.Points, q.Difficulty, q.State,
		q.LongAnswer, q.UpdatedAt, q.ID)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.Update: %w", err)
	}
	return requireRows(res, "pgQuestionRepository.Update")
}

func (r *pgQuestionRepository) DeleteChildren(ctx context.Context, questionID string) error {
	db := conn(ctx, r.db)
	if _, err := db.ExecContext(ctx, `DELETE FROM test_cases WHERE question_id = $1`, questionID); err != nil {
		return fmt.Errorf("pgQuestionRepository.DeleteChildren test cases: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM mcq_options WHERE question_id = $1`, questionID); err != nil {
		return fmt.Errorf("pgQuestionRepository.DeleteChildren mcq option: %w", err)
	}
	return nil
}

func (r *pgQuestionRepository) AddTestCase(ctx context.Context, tc *model.TestCase) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO test_cases (id, question_id, input, expected_output, created_at) VALUES ($1, $2, $3, $4, $5)`,
		tc.ID, tc.QuestionID, tc.Input, tc.ExpectedOutput, tc.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.AddTestCase: %w", err)
	}
	return requireRows(res, "pgQuestionRepository.AddTestCase")
}

func (r *pgQuestionRepository) DeleteTestCase(ctx context.Context, questionID, testCaseID string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM test_cases WHERE id = $1 AND question_id = $2`, testCaseID, questionID)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.DeleteTestCase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("test case %s: %w", testCaseID, common.ErrNotFound)
	}
	return nil
}

func (r *pgQuestionRepository) GetTestCases(ctx context.Context, questionID string) ([]model.TestCase, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, question_id, input, expected_output, created_at FROM test_cases
		 WHERE question_id = $1 ORDER BY created_at, id`, questionID)
	if err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.GetTestCases query: %w", err)
	}
	defer rows.Close()

	tcs := []model.TestCase{}
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.QuestionID, &tc.Input, &tc.ExpectedOutput, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgQuestionRepository.GetTestCases scan: %w", err)
		}
		tcs = append(tcs, tc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.GetTestCases rows.Err: %w", err)
	}
	return tcs, nil
}
