package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"examforge/internal/app/executor"
	"examforge/internal/app/service"
	"examforge/internal/common"
	"examforge/internal/domain/evaluation"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository/memory"
	"examforge/internal/platform/events"
	"examforge/internal/platform/queue"
)

// echoExecutor answers every test case with its expected output, except the ones listed in wrong.
type echoExecutor struct {
	calls int
	wrong map[string]bool
	err   error
}

func (e *echoExecutor) Execute(_ context.Context, req executor.Request) ([]evaluation.Result, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([]evaluation.Result, len(req.TestCases))
	for i, tc := range req.TestCases {
		out[i] = evaluation.Result{ReceivedOutput: tc.ExpectedOutput}
		if e.wrong[tc.ID] {
			out[i].ReceivedOutput = "wrong"
		}
	}
	return out, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(context.Context), bool, error) {
	return nil, false, nil
}

type fixture struct {
	store       *memory.Store
	queue       *queue.ChannelQueue
	submissions *service.SubmissionService
	sub         *model.Submission
	testCases   []model.TestCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	opens := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := &common.FixedClock{T: opens.Add(-time.Hour)}
	store := memory.NewStore()
	q := queue.NewChannelQueue(16)
	notifier, err := events.NewEventPublisher("", "")
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}

	exams := service.NewExamService(store.Transactor(), store.Exams(), store.Questions(), notifier, clock)
	questions := service.NewQuestionService(store.Transactor(), store.Exams(), store.Questions(), clock)
	subs := service.NewSubmissionService(store.Transactor(), store.Exams(), store.Questions(), store.Submissions(),
		service.NewEvaluationJobService(q, clock), clock)

	exam, err := exams.Create(ctx, "admin", service.CreateExamRequest{
		Title: "Worker exam", OpensAt: opens, ClosesAt: opens.Add(2 * time.Hour), DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	question, err := questions.AddQuestion(ctx, exam.ID, service.AddQuestionRequest{
		Category: model.CategoryProblemSolving, Statement: "echo", Points: 1000, Difficulty: model.DifficultyEasy,
		TestCases: []service.TestCaseInput{{Input: "a", ExpectedOutput: "a"}, {Input: "b", ExpectedOutput: "b"}},
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if _, err := exams.Publish(ctx, exam.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	clock.Set(opens.Add(time.Minute))

	sub, err := subs.SaveProblemSubmission(ctx, question.ID, "cand-1", service.SaveProblemRequest{Code: "cat", Language: "sh"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	tcs, _ := store.Questions().GetTestCases(ctx, question.ID)
	return &fixture{store: store, queue: q, submissions: subs, sub: sub, testCases: tcs}
}

func (f *fixture) pop(t *testing.T) model.EvaluationJob {
	t.Helper()
	job, err := f.queue.Pop(context.Background())
	if err != nil || job == nil {
		t.Fatalf("expected a queued job, got %v (%v)", job, err)
	}
	return *job
}

func (f *fixture) outputs(t *testing.T) []model.TestCaseOutput {
	t.Helper()
	sub, err := f.store.Submissions().FindByID(context.Background(), f.sub.ID)
	if err != nil {
		t.Fatalf("find submission: %v", err)
	}
	return sub.Problem.TestCaseOutputs
}

func TestProcessJobCompletes(t *testing.T) {
	f := newFixture(t)
	exec := &echoExecutor{wrong: map[string]bool{f.testCases[1].ID: true}}
	w := NewEvaluationWorker(f.queue, queue.NewMemoryLocker(), f.submissions, exec, time.Minute)

	if status := w.ProcessJob(context.Background(), f.pop(t)); status != model.JobStatusCompleted {
		t.Fatalf("expected Completed, got %s", status)
	}
	outputs := f.outputs(t)
	if len(outputs) != 2 || !outputs[0].Accepted || outputs[1].Accepted || outputs[1].ReceivedOutput != "wrong" {
		t.Fatalf("unexpected outputs %+v", outputs)
	}
}

func TestProcessJobSkipsSupersededAttempt(t *testing.T) {
	f := newFixture(t)
	stale := f.pop(t)
	if _, err := f.submissions.SaveProblemSubmission(context.Background(), f.sub.QuestionID, "cand-1", service.SaveProblemRequest{Code: "cat -", Language: "sh"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	exec := &echoExecutor{}
	w := NewEvaluationWorker(f.queue, queue.NewMemoryLocker(), f.submissions, exec, time.Minute)

	if status := w.ProcessJob(context.Background(), stale); status != model.JobStatusSkipped {
		t.Fatalf("expected Skipped, got %s", status)
	}
	if exec.calls != 0 {
		t.Fatalf("a superseded attempt must not be executed")
	}
	if status := w.ProcessJob(context.Background(), f.pop(t)); status != model.JobStatusCompleted {
		t.Fatalf("expected the fresh attempt to complete, got %s", status)
	}
}

func TestProcessJobRequeuesWhenLocked(t *testing.T) {
	f := newFixture(t)
	w := NewEvaluationWorker(f.queue, busyLocker{}, f.submissions, &echoExecutor{}, time.Minute)
	w.retryDelay = 0

	job := f.pop(t)
	if status := w.ProcessJob(context.Background(), job); status != model.JobStatusRequeued {
		t.Fatalf("expected Requeued, got %s", status)
	}
	if again := f.pop(t); again.ID != job.ID {
		t.Fatalf("expected job %s back on the queue, got %s", job.ID, again.ID)
	}
}

func TestProcessJobExecutorFailure(t *testing.T) {
	f := newFixture(t)
	w := NewEvaluationWorker(f.queue, queue.NewMemoryLocker(), f.submissions, &echoExecutor{err: errors.New("runner down")}, time.Minute)

	if status := w.ProcessJob(context.Background(), f.pop(t)); status != model.JobStatusFailed {
		t.Fatalf("expected Failed, got %s", status)
	}
	for _, o := range f.outputs(t) {
		if o.Accepted || o.ReceivedOutput != model.PlaceholderOutput {
			t.Fatalf("a failed run must leave placeholders, got %+v", o)
		}
	}
}

func TestProcessJobPlaceholderExecutor(t *testing.T) {
	f := newFixture(t)
	w := NewEvaluationWorker(f.queue, queue.NewMemoryLocker(), f.submissions, executor.PlaceholderExecutor{}, time.Minute)

	if status := w.ProcessJob(context.Background(), f.pop(t)); status != model.JobStatusCompleted {
		t.Fatalf("expected Completed, got %s", status)
	}
	if outputs := f.outputs(t); len(outputs) != 2 || outputs[0].Accepted {
		t.Fatalf("placeholder results are never accepted: %+v", outputs)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	w := NewEvaluationWorker(f.queue, queue.NewMemoryLocker(), f.submissions, &echoExecutor{}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for f.queue.Len() > 0 {
		select {
		case <-deadline:
			t.Fatalf("worker never picked up the job")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}
