package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"examforge/internal/common"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository/memory"
	"examforge/internal/platform/queue"
)

var (
	testOpensAt  = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	testClosesAt = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu        sync.Mutex
	published []string
	invited   []string
	failFor   string
}

func (n *recordingNotifier) ExamPublished(_ context.Context, examID, _ string, _, _ time.Time, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, examID)
	return nil
}

func (n *recordingNotifier) CandidateInvited(_ context.Context, _, _, email string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if email == n.failFor {
		return errors.New("broker unavailable")
	}
	n.invited = append(n.invited, email)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type testEnv struct {
	store       *memory.Store
	clock       *common.FixedClock
	queue       *queue.ChannelQueue
	notifier    *recordingNotifier
	exams       *ExamService
	questions   *QuestionService
	submissions *SubmissionService
	results     *ResultService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	clock := &common.FixedClock{T: testOpensAt.Add(-24 * time.Hour)}
	q := queue.NewChannelQueue(64)
	notifier := &recordingNotifier{}
	jobs := NewEvaluationJobService(q, clock)
	return &testEnv{
		store:       store,
		clock:       clock,
		queue:       q,
		notifier:    notifier,
		exams:       NewExamService(store.Transactor(), store.Exams(), store.Questions(), notifier, clock),
		questions:   NewQuestionService(store.Transactor(), store.Exams(), store.Questions(), clock),
		submissions: NewSubmissionService(store.Transactor(), store.Exams(), store.Questions(), store.Submissions(), jobs, clock),
		results:     NewResultService(store.Exams(), store.Questions(), store.Submissions()),
	}
}

func (e *testEnv) createExam(t *testing.T) *model.ExamView {
	t.Helper()
	exam, err := e.exams.Create(context.Background(), "admin-1", CreateExamRequest{
		Title:           "Data Structures Final",
		OpensAt:         testOpensAt,
		ClosesAt:        testClosesAt,
		DurationMinutes: 120,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	return exam
}

func (e *testEnv) addProblem(t *testing.T, examID string, points model.Points, cases ...TestCaseInput) *model.Question {
	t.Helper()
	if len(cases) == 0 {
		cases = []TestCaseInput{{Input: "1 2", ExpectedOutput: "3"}, {Input: "2 2", ExpectedOutput: "4"}}
	}
	q, err := e.questions.AddQuestion(context.Background(), examID, AddQuestionRequest{
		Category:   model.CategoryProblemSolving,
		Statement:  "Add two numbers",
		Points:     points,
		Difficulty: model.DifficultyEasy,
		TestCases:  cases,
	})
	if err != nil {
		t.Fatalf("add problem question: %v", err)
	}
	return q
}

func (e *testEnv) addWritten(t *testing.T, examID string, points model.Points) *model.Question {
	t.Helper()
	q, err := e.questions.AddQuestion(context.Background(), examID, AddQuestionRequest{
		Category:   model.CategoryWritten,
		Statement:  "Explain amortised analysis",
		Points:     points,
		Difficulty: model.DifficultyMedium,
	})
	if err != nil {
		t.Fatalf("add written question: %v", err)
	}
	return q
}

func (e *testEnv) addMcq(t *testing.T, examID string, points model.Points, multi bool, key string) *model.Question {
	t.Helper()
	q, err := e.questions.AddQuestion(context.Background(), examID, AddQuestionRequest{
		Category:   model.CategoryMCQ,
		Statement:  "Which structures are FIFO?",
		Points:     points,
		Difficulty: model.DifficultyHard,
		McqOption: &McqOptionInput{
			Options:        []string{"queue", "stack", "heap", "deque"},
			MultiSelect:    multi,
			CorrectAnswers: key,
		},
	})
	if err != nil {
		t.Fatalf("add mcq question: %v", err)
	}
	return q
}

// openExam publishes the exam and moves the clock inside its window.
func (e *testEnv) openExam(t *testing.T, examID string) {
	t.Helper()
	if _, err := e.exams.Publish(context.Background(), examID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	e.clock.Set(testOpensAt.Add(30 * time.Minute))
}

func (e *testEnv) ledger(t *testing.T, examID string) model.PointLedger {
	t.Helper()
	exam, err := e.store.Exams().FindByID(context.Background(), examID)
	if err != nil {
		t.Fatalf("find exam: %v", err)
	}
	if !exam.Ledger.Consistent() {
		t.Fatalf("ledger total is not the sum of its categories: %+v", exam.Ledger)
	}
	return exam.Ledger
}

func (e *testEnv) drainQueue() []model.EvaluationJob {
	var jobs []model.EvaluationJob
	for e.queue.Len() > 0 {
		job, err := e.queue.Pop(context.Background())
		if err != nil || job == nil {
			break
		}
		jobs = append(jobs, *job)
	}
	return jobs
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
