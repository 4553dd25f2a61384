package memory

import (
	"context"
	"fmt"
	"sort"

	"examforge/internal/common"
	"examforge/internal/domain/model"
)

type questionRepo struct {
	s *Store
}

func deleteQuestionChildren(d *state, questionID string) {
	for id, tc := range d.testCases {
		if tc.QuestionID == questionID {
			delete(d.testCases, id)
		}
	}
	delete(d.mcqOptions, questionID)
}

func (r *questionRepo) testCasesOf(questionID string) []model.TestCase {
	tcs := []model.TestCase{}
	for _, tc := range r.s.data.testCases {
		if tc.QuestionID == questionID {
			tcs = append(tcs, tc)
		}
	}
	sort.Slice(tcs, func(i, j int) bool {
		if tcs[i].CreatedAt.Equal(tcs[j].CreatedAt) {
			return tcs[i].ID < tcs[j].ID
		}
		return tcs[i].CreatedAt.Before(tcs[j].CreatedAt)
	})
	return tcs
}

// withChildren returns a detached copy of q with its children attached.
func (r *questionRepo) withChildren(q model.Question) model.Question {
	q.TestCases = nil
	q.McqOption = nil
	switch q.Category {
	case model.CategoryProblemSolving:
		q.TestCases = r.testCasesOf(q.ID)
	case model.CategoryMCQ:
		if opt, ok := r.s.data.mcqOptions[q.ID]; ok {
			opt.Options = append([]string(nil), opt.Options...)
			q.McqOption = &opt
		}
	}
	return q
}

func (r *questionRepo) Create(ctx context.Context, q *model.Question) error {
	defer r.s.lock(ctx)()
	d := &r.s.data
	if _, ok := d.questions[q.ID]; ok {
		return fmt.Errorf("question %s already exists: %w", q.ID, common.ErrConflict)
	}
	if _, ok := d.exams[q.ExamID]; !ok {
		return fmt.Errorf("memory.Create question: exam %s: %w", q.ExamID, common.ErrFailure)
	}

	stored := *q
	stored.TestCases = nil
	stored.McqOption = nil
	d.questions[q.ID] = stored
	for _, tc := range q.TestCases {
		d.testCases[tc.ID] = tc
	}
	if q.McqOption != nil {
		opt := *q.McqOption
		opt.QuestionID = q.ID
		opt.Options = append([]string(nil), opt.Options...)
		d.mcqOptions[q.ID] = opt
	}
	return nil
}

func (r *questionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	defer r.s.lock(ctx)()
	q, ok := r.s.data.questions[id]
	if !ok || q.State == model.QuestionDeleted {
		return nil, fmt.Errorf("question %s: %w", id, common.ErrNotFound)
	}
	out := r.withChildren(q)
	return &out, nil
}

// FindByIDForUpdate needs no row lock here: callers already hold the store mutex inside WithinTx.
func (r *questionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Question, error) {
	return r.FindByID(ctx, id)
}

func (r *questionRepo) ListByExam(ctx context.Context, examID string) ([]model.Question, error) {
	defer r.s.lock(ctx)()
	questions := []model.Question{}
	for _, q := range r.s.data.questions {
		if q.ExamID == examID && q.State != model.QuestionDeleted {
			questions = append(questions, r.withChildren(q))
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].CreatedAt.Equal(questions[j].CreatedAt) {
			return questions[i].ID < questions[j].ID
		}
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})
	return questions, nil
}

func (r *questionRepo) Update(ctx context.Context, q *model.Question) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.questions[q.ID]
	if !ok {
		return fmt.Errorf("memory.Update question %s: %w", q.ID, common.ErrFailure)
	}
	stored.Statement = q.Statement
	stored.Points = q.Points
	stored.Difficulty = q.Difficulty
	stored.State = q.State
	stored.LongAnswer = q.LongAnswer
	stored.UpdatedAt = q.UpdatedAt
	r.s.data.questions[q.ID] = stored
	return nil
}

func (r *questionRepo) DeleteChildren(ctx context.Context, questionID string) error {
	defer r.s.lock(ctx)()
	deleteQuestionChildren(&r.s.data, questionID)
	return nil
}

func (r *questionRepo) AddTestCase(ctx context.Context, tc *model.TestCase) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.questions[tc.QuestionID]; !ok {
		return fmt.Errorf("memory.AddTestCase question %s: %w", tc.QuestionID, common.ErrFailure)
	}
	r.s.data.testCases[tc.ID] = *tc
	return nil
}

func (r *questionRepo) DeleteTestCase(ctx context.Context, questionID, testCaseID string) error {
	defer r.s.lock(ctx)()
	tc, ok := r.s.data.testCases[testCaseID]
	if !ok || tc.QuestionID != questionID {
		return fmt.Errorf("test case %s: %w", testCaseID, common.ErrNotFound)
	}
	delete(r.s.data.testCases, testCaseID)
	return nil
}

func (r *questionRepo) GetTestCases(ctx context.Context, questionID string) ([]model.TestCase, error) {
	defer r.s.lock(ctx)()
	return r.testCasesOf(questionID), nil
}
