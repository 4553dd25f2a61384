package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"unicode/utf8"

	"examforge/internal/common"
	"examforge/internal/domain/evaluation"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"
	"examforge/internal/platform/metrics"

	"github.com/google/uuid"
)

// ErrStaleAttempt marks evaluation results for an attempt a newer save superseded.
var ErrStaleAttempt = errors.New("evaluation is for a superseded attempt")

const maxShortAnswerRunes = 2000

type SubmissionService struct {
	tx             repository.Transactor
	examRepo       repository.ExamRepository
	questionRepo   repository.QuestionRepository
	submissionRepo repository.SubmissionRepository
	jobs           *EvaluationJobService
	clock          common.Clock
}

func NewSubmissionService(
	tx repository.Transactor,
	examRepo repository.ExamRepository,
	questionRepo repository.QuestionRepository,
	submissionRepo repository.SubmissionRepository,
	jobs *EvaluationJobService,
	clock common.Clock,
) *SubmissionService {
	return &SubmissionService{
		tx:             tx,
		examRepo:       examRepo,
		questionRepo:   questionRepo,
		submissionRepo: submissionRepo,
		jobs:           jobs,
		clock:          clock,
	}
}

type SaveProblemRequest struct {
	Code     string `json:"code" validate:"required,max=65536"`
	Language string `json:"language" validate:"required,max=50"`
}

type SaveWrittenRequest struct {
	Answer string `json:"answer" validate:"required,max=100000"`
}

type SaveMcqRequest struct {
	Selected []int `json:"selected" validate:"required,min=1,max=4"`
}

type GradeRequest struct {
	Score common.Optional[model.Points] `json:"score"`
}

type RegradeRequest struct {
	TestCaseIDs []string `json:"test_case_ids" validate:"omitempty,max=100,dive,uuid"`
}

// openQuestion loads a question a candidate may answer right now: active, of
// the expected category, on a published exam that is running.
func (s *SubmissionService) openQuestion(ctx context.Context, questionID string, category model.QuestionCategory) (*model.Question, error) {
	q, err := s.questionRepo.FindByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.IsActive() {
		return nil, common.Errorf("question %s: %w", questionID, common.ErrNotFound)
	}
	if q.Category != category {
		return nil, common.NewValidationError("category", "oneof", "question "+questionID+" is a "+string(q.Category)+" question")
	}
	exam, err := s.examRepo.FindByID(ctx, q.ExamID)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished || exam.Status(s.clock.Now()) != model.ExamRunning {
		return nil, common.Errorf("exam %s: %w", exam.ID, common.ErrExamNotOpen)
	}
	return q, nil
}

// save is the shared upsert: the first save creates the submission with one
// attempt, later saves bump the attempt counter and overwrite the payload.
// fill writes the category payload onto sub, which still carries any prior payload.
func (s *SubmissionService) save(
	ctx context.Context,
	questionID, candidateID string,
	category model.QuestionCategory,
	fill func(ctx context.Context, q *model.Question, sub *model.Submission) error,
) (*model.Submission, error) {
	var saved *model.Submission
	created := false

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q, err := s.openQuestion(ctx, questionID, category)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		existing, err := s.submissionRepo.FindByQuestionAndCandidate(ctx, questionID, candidateID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}

		if existing == nil {
			sub := &model.Submission{
				ID:          uuid.NewString(),
				ExamID:      q.ExamID,
				QuestionID:  q.ID,
				CandidateID: candidateID,
				Category:    category,
				Attempts:    1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := fill(ctx, q, sub); err != nil {
				return err
			}
			if err := s.submissionRepo.Create(ctx, sub); err != nil {
				return err
			}
			saved, created = sub, true
			return nil
		}

		existing.UpdatedAt = now
		if err := fill(ctx, q, existing); err != nil {
			return err
		}
		attempts, err := s.submissionRepo.UpdateAnswer(ctx, existing)
		if err != nil {
			return err
		}
		existing.Attempts = attempts
		if existing.Problem != nil {
			if err := s.submissionRepo.ReplaceOutputs(ctx, existing.ID, existing.Problem.TestCaseOutputs); err != nil {
				return err
			}
		}
		saved = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := "resubmitted"
	if created {
		kind = "created"
	}
	metrics.SubmissionSaves.WithLabelValues(string(category), kind).Inc()
	return saved, nil
}

// SaveProblemSubmission stores code for a problem-solving question. Outputs are
// reset to placeholders for every current test case until the new attempt is
// evaluated; the evaluation job is enqueued after commit.
func (s *SubmissionService) SaveProblemSubmission(ctx context.Context, questionID, candidateID string, req SaveProblemRequest) (*model.Submission, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}

	sub, err := s.save(ctx, questionID, candidateID, model.CategoryProblemSolving,
		func(ctx context.Context, q *model.Question, sub *model.Submission) error {
			testCases, err := s.questionRepo.GetTestCases(ctx, q.ID)
			if err != nil {
				return err
			}
			var prior []model.TestCaseOutput
			if sub.Problem != nil {
				prior = sub.Problem.TestCaseOutputs
			}
			sub.Problem = &model.ProblemAnswer{
				Code:            req.Code,
				Language:        req.Language,
				TestCaseOutputs: evaluation.Merge(testCases, prior, evaluation.Placeholders(testCases)),
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	if s.jobs.Enabled() {
		if _, err := s.jobs.EnqueueEvaluation(ctx, sub.ID, sub.Attempts, nil); err != nil {
			log.Printf("ERROR: Failed to enqueue evaluation for submission %s: %v", sub.ID, err)
		}
	}
	return sub, nil
}

func (s *SubmissionService) SaveWrittenSubmission(ctx context.Context, questionID, candidateID string, req SaveWrittenRequest) (*model.Submission, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	return s.save(ctx, questionID, candidateID, model.CategoryWritten,
		func(_ context.Context, q *model.Question, sub *model.Submission) error {
			if !q.LongAnswer && utf8.RuneCountInString(req.Answer) > maxShortAnswerRunes {
				return common.NewValidationError("answer", "max", "answer must contain at most 2000 characters for a short-answer question")
			}
			sub.Written = &model.WrittenAnswer{Answer: req.Answer}
			return nil
		})
}

func (s *SubmissionService) SaveMcqSubmission(ctx context.Context, questionID, candidateID string, req SaveMcqRequest) (*model.Submission, error) {
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	return s.save(ctx, questionID, candidateID, model.CategoryMCQ,
		func(_ context.Context, q *model.Question, sub *model.Submission) error {
			if q.McqOption == nil {
				return common.Errorf("question %s has no option set: %w", q.ID, common.ErrConflict)
			}
			if err := q.McqOption.CheckSelection(req.Selected); err != nil {
				return common.NewValidationError("selected", "options", err.Error())
			}
			selected := append([]int(nil), req.Selected...)
			sort.Ints(selected)
			sub.Mcq = &model.McqAnswer{Selected: selected}
			return nil
		})
}

// EvaluationInput returns the submission a job refers to and the test cases
// to run, in the order the job names them, or ErrStaleAttempt when a newer
// save superseded the job.
func (s *SubmissionService) EvaluationInput(ctx context.Context, job model.EvaluationJob) (*model.Submission, []model.TestCase, error) {
	sub, err := s.submissionRepo.FindByID(ctx, job.SubmissionID)
	if err != nil {
		return nil, nil, err
	}
	if sub.Problem == nil {
		return nil, nil, common.Errorf("submission %s is not a problem-solving submission: %w", sub.ID, common.ErrBadRequest)
	}
	if sub.Attempts != job.Attempt {
		return nil, nil, ErrStaleAttempt
	}
	testCases, err := s.questionRepo.GetTestCases(ctx, sub.QuestionID)
	if err != nil {
		return nil, nil, err
	}
	selected, err := evaluation.Select(testCases, job.TestCaseIDs)
	if err != nil {
		return nil, nil, common.NewValidationError("test_case_ids", "exists", err.Error())
	}
	return sub, selected, nil
}

// ApplyEvaluation pairs executor results with the evaluated test cases and
// merges them into the stored outputs by test case id. Results for a
// superseded attempt are dropped with ErrStaleAttempt.
func (s *SubmissionService) ApplyEvaluation(ctx context.Context, submissionID string, attempt int, evaluated []model.TestCase, results []evaluation.Result) (*model.Submission, error) {
	paired, err := evaluation.Pair(evaluated, results)
	if err != nil {
		return nil, common.Errorf("submission %s: %w", submissionID, err)
	}

	var updated *model.Submission
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.submissionRepo.FindByIDForUpdate(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub.Problem == nil {
			return common.Errorf("submission %s is not a problem-solving submission: %w", sub.ID, common.ErrBadRequest)
		}
		if sub.Attempts != attempt {
			return ErrStaleAttempt
		}
		current, err := s.questionRepo.GetTestCases(ctx, sub.QuestionID)
		if err != nil {
			return err
		}
		sub.Problem.TestCaseOutputs = evaluation.Merge(current, sub.Problem.TestCaseOutputs, evaluation.Outputs(paired))
		if err := s.submissionRepo.ReplaceOutputs(ctx, sub.ID, sub.Problem.TestCaseOutputs); err != nil {
			return err
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GradeSubmission records a reviewer's score, or clears it with an explicit null.
func (s *SubmissionService) GradeSubmission(ctx context.Context, submissionID string, req GradeRequest) (*model.Submission, error) {
	if !req.Score.Set {
		return nil, common.NewValidationError("score", "required", "score is required")
	}

	var graded *model.Submission
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		sub, err := s.submissionRepo.FindByIDForUpdate(ctx, submissionID)
		if err != nil {
			return err
		}
		q, err := s.questionRepo.FindByID(ctx, sub.QuestionID)
		if err != nil {
			return err
		}
		var score *model.Points
		if req.Score.HasValue() {
			v := req.Score.Value
			if v < 0 || v > q.Points {
				return common.NewValidationError("score", "range", "score must be between 0 and "+q.Points.String())
			}
			score = &v
		}
		now := s.clock.Now()
		if err := s.submissionRepo.UpdateScore(ctx, sub.ID, score, now); err != nil {
			return err
		}
		sub.Score = score
		sub.UpdatedAt = now
		graded = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return graded, nil
}

// AutoGradeMcq scores every MCQ submission of an exam: a selection equal to the
// answer key earns the question's points, anything else earns zero.
func (s *SubmissionService) AutoGradeMcq(ctx context.Context, examID string) (int, error) {
	graded := 0
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		graded = 0
		if _, err := s.examRepo.FindByID(ctx, examID); err != nil {
			return err
		}
		questions, err := s.questionRepo.ListByExam(ctx, examID)
		if err != nil {
			return err
		}
		mcqs := make(map[string]*model.Question)
		for i := range questions {
			if questions[i].Category == model.CategoryMCQ && questions[i].McqOption != nil {
				mcqs[questions[i].ID] = &questions[i]
			}
		}
		subs, err := s.submissionRepo.ListByExam(ctx, examID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, sub := range subs {
			q, ok := mcqs[sub.QuestionID]
			if !ok || sub.Mcq == nil {
				continue
			}
			var score model.Points
			if q.McqOption.IsCorrect(sub.Mcq.Selected) {
				score = q.Points
			}
			if err := s.submissionRepo.UpdateScore(ctx, sub.ID, &score, now); err != nil {
				return err
			}
			graded++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("INFO: Auto-graded %d MCQ submissions for exam %s.", graded, examID)
	return graded, nil
}

// Regrade enqueues a re-evaluation of every submission of a problem-solving
// question, optionally limited to some of its test cases.
func (s *SubmissionService) Regrade(ctx context.Context, questionID string, req RegradeRequest) (int, error) {
	if err := common.Validate(req); err != nil {
		return 0, err
	}
	if !s.jobs.Enabled() {
		return 0, common.Errorf("evaluation queue is not configured: %w", common.ErrServiceUnavailable)
	}

	q, err := s.questionRepo.FindByID(ctx, questionID)
	if err != nil {
		return 0, err
	}
	if q.Category != model.CategoryProblemSolving {
		return 0, common.NewValidationError("category", "oneof", "only problem-solving questions can be regraded")
	}
	known := make(map[string]struct{}, len(q.TestCases))
	for _, tc := range q.TestCases {
		known[tc.ID] = struct{}{}
	}
	for _, id := range req.TestCaseIDs {
		if _, ok := known[id]; !ok {
			return 0, common.NewValidationError("test_case_ids", "exists", "test case "+id+" does not belong to question "+questionID)
		}
	}

	subs, err := s.submissionRepo.ListByQuestion(ctx, questionID)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, sub := range subs {
		if _, err := s.jobs.EnqueueEvaluation(ctx, sub.ID, sub.Attempts, req.TestCaseIDs); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}

// Get returns a submission. Candidates can only read their own.
func (s *SubmissionService) Get(ctx context.Context, submissionID, userID, role string) (*model.Submission, error) {
	sub, err := s.submissionRepo.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleAdmin && sub.CandidateID != userID {
		return nil, common.Errorf("submission %s: %w", submissionID, common.ErrNotFound)
	}
	return sub, nil
}

func (s *SubmissionService) GetForCandidate(ctx context.Context, questionID, candidateID string) (*model.Submission, error) {
	return s.submissionRepo.FindByQuestionAndCandidate(ctx, questionID, candidateID)
}
