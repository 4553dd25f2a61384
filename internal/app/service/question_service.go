package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"examforge/internal/common"
	"examforge/internal/domain/ledger"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"
	"examforge/internal/platform/metrics"

	"github.com/google/uuid"
)

type QuestionService struct {
	tx           repository.Transactor
	examRepo     repository.ExamRepository
	questionRepo repository.QuestionRepository
	clock        common.Clock
}

func NewQuestionService(
	tx repository.Transactor,
	examRepo repository.ExamRepository,
	questionRepo repository.QuestionRepository,
	clock common.Clock,
) *QuestionService {
	return &QuestionService{tx: tx, examRepo: examRepo, questionRepo: questionRepo, clock: clock}
}

type TestCaseInput struct {
	Input          string `json:"input" validate:"max=65536"`
	ExpectedOutput string `json:"expected_output" validate:"max=65536"`
}

type McqOptionInput struct {
	Options        []string `json:"options" validate:"required,min=1,max=4,dive,required,max=1000"`
	MultiSelect    bool     `json:"multi_select"`
	CorrectAnswers string   `json:"correct_answers" validate:"required,max=20"`
}

type AddQuestionRequest struct {
	Category   model.QuestionCategory   `json:"category" validate:"required,oneof=ProblemSolving Written MCQ"`
	Statement  string                   `json:"statement" validate:"required,max=20000"`
	Points     model.Points             `json:"points" validate:"gte=0"`
	Difficulty model.QuestionDifficulty `json:"difficulty" validate:"required,oneof=Easy Medium Hard"`
	LongAnswer bool                     `json:"long_answer"`
	TestCases  []TestCaseInput          `json:"test_cases" validate:"omitempty,max=100,dive"`
	McqOption  *McqOptionInput          `json:"mcq_option"`
}

type UpdatePointsRequest struct {
	Points model.Points `json:"points" validate:"gte=0"`
}

// UpdateQuestionRequest patches the descriptive fields of a question. Points
// have their own operation because they move the ledger.
type UpdateQuestionRequest struct {
	Statement  common.Optional[string]                   `json:"statement"`
	Difficulty common.Optional[model.QuestionDifficulty] `json:"difficulty"`
	LongAnswer common.Optional[bool]                     `json:"long_answer"`
}

// checkChildren enforces the category-specific shape of a new question.
func checkChildren(req AddQuestionRequest) *common.ValidationError {
	var errs []common.FieldError
	add := func(field, rule, msg string) {
		errs = append(errs, common.FieldError{Field: field, Rule: rule, Message: msg})
	}

	switch req.Category {
	case model.CategoryProblemSolving:
		if len(req.TestCases) == 0 {
			add("test_cases", "required", "a problem-solving question needs at least one test case")
		}
		if req.McqOption != nil {
			add("mcq_option", "excluded", "mcq_option is only allowed on MCQ questions")
		}
	case model.CategoryMCQ:
		if req.McqOption == nil {
			add("mcq_option", "required", "an MCQ question needs an option set")
		} else if err := checkAnswerKey(req.McqOption); err != nil {
			add("mcq_option.correct_answers", "answer_key", err.Error())
		}
		if len(req.TestCases) > 0 {
			add("test_cases", "excluded", "test_cases are only allowed on problem-solving questions")
		}
	case model.CategoryWritten:
		if req.McqOption != nil {
			add("mcq_option", "excluded", "mcq_option is only allowed on MCQ questions")
		}
		if len(req.TestCases) > 0 {
			add("test_cases", "excluded", "test_cases are only allowed on problem-solving questions")
		}
	}
	if req.LongAnswer && req.Category != model.CategoryWritten {
		add("long_answer", "excluded", "long_answer is only allowed on written questions")
	}
	if len(errs) == 0 {
		return nil
	}
	return &common.ValidationError{Fields: errs}
}

func checkAnswerKey(opt *McqOptionInput) error {
	key, err := model.ParseAnswerIndices(opt.CorrectAnswers)
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("correct_answers must name at least one option")
	}
	if !opt.MultiSelect && len(key) != 1 {
		return fmt.Errorf("a single-select question needs exactly one correct answer")
	}
	for _, idx := range key {
		if idx < 0 || idx >= len(opt.Options) {
			return fmt.Errorf("correct answer %d is not a valid option index", idx)
		}
	}
	return nil
}

// lockEditableExam loads and locks the owning exam, failing once it is published.
func (s *QuestionService) lockEditableExam(ctx context.Context, examID string) (*model.Exam, error) {
	exam, err := s.examRepo.FindByIDForUpdate(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := exam.EnsureEditable(); err != nil {
		return nil, err
	}
	return exam, nil
}

// lockQuestion locks the owning exam and then re-reads the question under a
// row lock, so concurrent edits of one question see each other's commits.
func (s *QuestionService) lockQuestion(ctx context.Context, questionID string) (*model.Question, *model.Exam, error) {
	q, err := s.questionRepo.FindByID(ctx, questionID)
	if err != nil {
		return nil, nil, err
	}
	exam, err := s.lockEditableExam(ctx, q.ExamID)
	if err != nil {
		return nil, nil, err
	}
	q, err = s.questionRepo.FindByIDForUpdate(ctx, questionID)
	if err != nil {
		return nil, nil, err
	}
	return q, exam, nil
}

// applyDelta moves the ledger by delta for category c. The arithmetic is
// checked with ledger.Apply and persisted through ApplyLedgerDelta only.
func (s *QuestionService) applyDelta(ctx context.Context, exam *model.Exam, c model.QuestionCategory, delta model.Points, op string) error {
	if delta == 0 {
		return nil
	}
	if _, err := ledger.Apply(exam.Ledger, c, delta); err != nil {
		return common.Errorf("exam %s: %v: %w", exam.ID, err, common.ErrConflict)
	}
	l, err := s.examRepo.ApplyLedgerDelta(ctx, exam.ID, c, delta)
	if err != nil {
		return err
	}
	exam.Ledger = l
	metrics.LedgerMutations.WithLabelValues(string(c), op).Inc()
	return nil
}

// AddQuestion inserts a question with its children and books its points
// into the exam ledger in the same transaction.
func (s *QuestionService) AddQuestion(ctx context.Context, examID string, req AddQuestionRequest) (*model.Question, error) {
	var tagErrs *common.ValidationError
	if err := common.Validate(req); err != nil && !errors.As(err, &tagErrs) {
		return nil, err
	}
	if err := common.MergeValidation(tagErrs, checkChildren(req)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	q := &model.Question{
		ID:         uuid.NewString(),
		ExamID:     examID,
		Category:   req.Category,
		Statement:  strings.TrimSpace(req.Statement),
		Points:     req.Points,
		Difficulty: req.Difficulty,
		State:      model.QuestionActive,
		LongAnswer: req.LongAnswer,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, tc := range req.TestCases {
		q.TestCases = append(q.TestCases, model.TestCase{
			ID:             uuid.NewString(),
			QuestionID:     q.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			// Spread creation times so the request order survives the created_at ordering.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	if req.McqOption != nil {
		q.McqOption = &model.McqOption{
			ID:             uuid.NewString(),
			QuestionID:     q.ID,
			Options:        req.McqOption.Options,
			MultiSelect:    req.McqOption.MultiSelect,
			CorrectAnswers: req.McqOption.CorrectAnswers,
		}
		if key, err := model.ParseAnswerIndices(q.McqOption.CorrectAnswers); err == nil {
			q.McqOption.CorrectAnswers = model.FormatAnswerIndices(key)
		}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exam, err := s.lockEditableExam(ctx, examID)
		if err != nil {
			return err
		}
		if err := s.questionRepo.Create(ctx, q); err != nil {
			return err
		}
		return s.applyDelta(ctx, exam, q.Category, q.Points, "add")
	})
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: Question %s (%s, %s points) added to exam %s.", q.ID, q.Category, q.Points, examID)
	return q, nil
}

// UpdateQuestionPoints sets new points and moves the ledger by the difference.
func (s *QuestionService) UpdateQuestionPoints(ctx context.Context, questionID string, req UpdatePointsRequest) (*model.Question, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	var updated *model.Question
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, exam, err := s.lockQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		delta := req.Points - q.Points
		q.Points = req.Points
		q.UpdatedAt = s.clock.Now()
		if err := s.questionRepo.Update(ctx, q); err != nil {
			return err
		}
		if err := s.applyDelta(ctx, exam, q.Category, delta, "update"); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *QuestionService) UpdateQuestion(ctx context.Context, questionID string, req UpdateQuestionRequest) (*model.Question, error) {
	var errs []common.FieldError
	if req.Statement.Set && (req.Statement.Null || strings.TrimSpace(req.Statement.Value) == "") {
		errs = append(errs, common.FieldError{Field: "statement", Rule: "required", Message: "statement cannot be empty"})
	}
	if req.Difficulty.Set {
		switch req.Difficulty.Value {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		default:
			errs = append(errs, common.FieldError{Field: "difficulty", Rule: "oneof", Message: "difficulty must be one of [Easy Medium Hard]"})
		}
	}
	if req.LongAnswer.Set && req.LongAnswer.Null {
		errs = append(errs, common.FieldError{Field: "long_answer", Rule: "required", Message: "long_answer cannot be null"})
	}
	if len(errs) > 0 {
		return nil, &common.ValidationError{Fields: errs}
	}

	var updated *model.Question
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, _, err := s.lockQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if req.LongAnswer.HasValue() && req.LongAnswer.Value && q.Category != model.CategoryWritten {
			return common.NewValidationError("long_answer", "excluded", "long_answer is only allowed on written questions")
		}
		if req.Statement.HasValue() {
			q.Statement = strings.TrimSpace(req.Statement.Value)
		}
		if req.Difficulty.HasValue() {
			q.Difficulty = req.Difficulty.Value
		}
		if req.LongAnswer.HasValue() {
			q.LongAnswer = req.LongAnswer.Value
		}
		q.UpdatedAt = s.clock.Now()
		if err := s.questionRepo.Update(ctx, q); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveQuestion marks the question deleted, drops its children and takes its
// points out of the ledger.
func (s *QuestionService) RemoveQuestion(ctx context.Context, questionID string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, exam, err := s.lockQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		q.State = model.QuestionDeleted
		q.UpdatedAt = s.clock.Now()
		if err := s.questionRepo.Update(ctx, q); err != nil {
			return err
		}
		if err := s.questionRepo.DeleteChildren(ctx, q.ID); err != nil {
			return err
		}
		return s.applyDelta(ctx, exam, q.Category, -q.Points, "remove")
	})
	if err != nil {
		return err
	}
	log.Printf("INFO: Question %s removed.", questionID)
	return nil
}

// ArchiveQuestion takes an active question out of the publish check. Its points stay in the ledger.
func (s *QuestionService) ArchiveQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	return s.setState(ctx, questionID, model.QuestionActive, model.QuestionArchived)
}

func (s *QuestionService) RestoreQuestion(ctx context.Context, questionID string) (*model.Question, error) {
	return s.setState(ctx, questionID, model.QuestionArchived, model.QuestionActive)
}

func (s *QuestionService) setState(ctx context.Context, questionID string, from, to model.QuestionState) (*model.Question, error) {
	var updated *model.Question
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, _, err := s.lockQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if q.State == to {
			updated = q
			return nil
		}
		if q.State != from {
			return common.Errorf("question %s is %s, expected %s: %w", q.ID, q.State, from, common.ErrConflict)
		}
		q.State = to
		q.UpdatedAt = s.clock.Now()
		if err := s.questionRepo.Update(ctx, q); err != nil {
			return err
		}
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *QuestionService) AddTestCase(ctx context.Context, questionID string, req TestCaseInput) (*model.TestCase, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	var tc *model.TestCase
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, _, err := s.lockQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if q.Category != model.CategoryProblemSolving {
			return common.NewValidationError("category", "oneof", "test cases can only be added to problem-solving questions")
		}
		tc = &model.TestCase{
			ID:             uuid.NewString(),
			QuestionID:     q.ID,
			Input:          req.Input,
			ExpectedOutput: req.ExpectedOutput,
			CreatedAt:      s.clock.Now(),
		}
		return s.questionRepo.AddTestCase(ctx, tc)
	})
	if err != nil {
		return nil, err
	}
	return tc, nil
}

// RemoveTestCase deletes one test case. The last test case of a question cannot be removed.
func (s *QuestionService) RemoveTestCase(ctx context.Context, questionID, testCaseID string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, _, err := s.lockQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		found := false
		for _, tc := range q.TestCases {
			if tc.ID == testCaseID {
				found = true
				break
			}
		}
		if !found {
			return common.Errorf("test case %s: %w", testCaseID, common.ErrNotFound)
		}
		if len(q.TestCases) == 1 {
			return common.NewValidationError("test_cases", "min", "a problem-solving question needs at least one test case")
		}
		return s.questionRepo.DeleteTestCase(ctx, questionID, testCaseID)
	})
}

// Get returns a question. Candidates only see active questions of published
// exams, without test cases or answer keys.
func (s *QuestionService) Get(ctx context.Context, questionID, role string) (*model.Question, error) {
	q, err := s.questionRepo.FindByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleAdmin {
		return q, nil
	}
	exam, err := s.examRepo.FindByID(ctx, q.ExamID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished || !q.IsActive() {
		return nil, common.Errorf("question %s: %w", questionID, common.ErrNotFound)
	}
	return redactForCandidate(*q), nil
}

func (s *QuestionService) ListByExam(ctx context.Context, examID, role string) ([]model.Question, error) {
	exam, err := s.examRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleAdmin && !exam.IsPublished {
		return nil, common.Errorf("exam %s: %w", examID, common.ErrNotFound)
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleAdmin {
		return questions, nil
	}
	visible := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if q.IsActive() {
			visible = append(visible, *redactForCandidate(q))
		}
	}
	return visible, nil
}

func redactForCandidate(q model.Question) *model.Question {
	q.TestCases = nil
	if q.McqOption != nil {
		opt := *q.McqOption
		opt.CorrectAnswers = ""
		q.McqOption = &opt
	}
	return &q
}
