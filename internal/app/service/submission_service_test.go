package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"examforge/internal/common"
	"examforge/internal/domain/evaluation"
	"examforge/internal/domain/model"

	"github.com/google/uuid"
)

const candidate = "cand-1"

func assertPlaceholders(t *testing.T, sub *model.Submission, want int) {
	t.Helper()
	outputs := sub.Problem.TestCaseOutputs
	if len(outputs) != want {
		t.Fatalf("expected %d test case outputs, got %d", want, len(outputs))
	}
	for _, o := range outputs {
		if o.Accepted || o.ReceivedOutput != model.PlaceholderOutput {
			t.Fatalf("expected placeholder output, got %+v", o)
		}
	}
}

func TestSaveProblemSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addProblem(t, exam.ID, 1000)
	env.openExam(t, exam.ID)

	first, err := env.submissions.SaveProblemSubmission(ctx, q.ID, candidate, SaveProblemRequest{Code: "print(3)", Language: "python"})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Attempts != 1 || first.Score != nil {
		t.Fatalf("expected attempt 1 without score, got %+v", first)
	}
	assertPlaceholders(t, first, 2)

	jobs := env.drainQueue()
	if len(jobs) != 1 || jobs[0].SubmissionID != first.ID || jobs[0].Attempt != 1 {
		t.Fatalf("expected one job for attempt 1, got %+v", jobs)
	}

	// Attempt 1 gets evaluated before the resubmission.
	_, tcs, err := env.submissions.EvaluationInput(ctx, jobs[0])
	if err != nil {
		t.Fatalf("evaluation input: %v", err)
	}
	if _, err := env.submissions.ApplyEvaluation(ctx, first.ID, 1, tcs, []evaluation.Result{{ReceivedOutput: "3"}, {ReceivedOutput: "4"}}); err != nil {
		t.Fatalf("apply evaluation: %v", err)
	}

	second, err := env.submissions.SaveProblemSubmission(ctx, q.ID, candidate, SaveProblemRequest{Code: "print(a+b)", Language: "python"})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.ID != first.ID || second.Attempts != 2 {
		t.Fatalf("expected same submission at attempt 2, got %s at %d", second.ID, second.Attempts)
	}
	stored, err := env.store.Submissions().FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Problem.Code != "print(a+b)" {
		t.Fatalf("code not overwritten: %q", stored.Problem.Code)
	}
	assertPlaceholders(t, stored, 2)
	if jobs := env.drainQueue(); len(jobs) != 1 || jobs[0].Attempt != 2 {
		t.Fatalf("expected one job for attempt 2, got %+v", jobs)
	}
}

func TestResubmitCountsEveryAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	problem := env.addProblem(t, exam.ID, 1000)
	written := env.addWritten(t, exam.ID, 500)
	env.openExam(t, exam.ID)

	const n = 5
	var ids []string
	for i := 0; i < n; i++ {
		// Identical input is still a new attempt.
		sub, err := env.submissions.SaveProblemSubmission(ctx, problem.ID, candidate, SaveProblemRequest{Code: "same", Language: "go"})
		if err != nil {
			t.Fatalf("save %d: %v", i+1, err)
		}
		if sub.Attempts != i+1 {
			t.Fatalf("save %d: expected attempts %d, got %d", i+1, i+1, sub.Attempts)
		}
		assertPlaceholders(t, sub, 2)
		ids = append(ids, sub.ID)

		if _, err := env.submissions.SaveWrittenSubmission(ctx, written.ID, candidate, SaveWrittenRequest{Answer: "same"}); err != nil {
			t.Fatalf("written save %d: %v", i+1, err)
		}
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("submission identity changed across saves: %v", ids)
		}
	}
	sub, err := env.submissions.GetForCandidate(ctx, written.ID, candidate)
	if err != nil || sub.Attempts != n {
		t.Fatalf("expected %d written attempts, got %+v (%v)", n, sub, err)
	}
	if got := len(env.drainQueue()); got != n {
		t.Fatalf("expected %d evaluation jobs, got %d", n, got)
	}
}

func TestOutputsFollowTestCaseCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addProblem(t, exam.ID, 1000)
	env.openExam(t, exam.ID)

	sub, err := env.submissions.SaveProblemSubmission(ctx, q.ID, candidate, SaveProblemRequest{Code: "x", Language: "c"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	tcs, _ := env.store.Questions().GetTestCases(ctx, q.ID)

	// The runner only reports on the second test case.
	updated, err := env.submissions.ApplyEvaluation(ctx, sub.ID, 1, tcs[1:], []evaluation.Result{{ReceivedOutput: "4"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	outputs := updated.Problem.TestCaseOutputs
	if len(outputs) != len(tcs) {
		t.Fatalf("expected %d outputs, got %d", len(tcs), len(outputs))
	}
	if outputs[0].TestCaseID != tcs[0].ID || outputs[0].Accepted || outputs[0].ReceivedOutput != model.PlaceholderOutput {
		t.Fatalf("unevaluated test case must keep its placeholder, got %+v", outputs[0])
	}
	if outputs[1].TestCaseID != tcs[1].ID || !outputs[1].Accepted || outputs[1].ReceivedOutput != "4" {
		t.Fatalf("evaluated test case not merged by id, got %+v", outputs[1])
	}
}

func TestApplyEvaluationRejectsStaleAndMismatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addProblem(t, exam.ID, 1000)
	env.openExam(t, exam.ID)

	sub, err := env.submissions.SaveProblemSubmission(ctx, q.ID, candidate, SaveProblemRequest{Code: "v1", Language: "go"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	tcs, _ := env.store.Questions().GetTestCases(ctx, q.ID)

	_, err = env.submissions.ApplyEvaluation(ctx, sub.ID, 1, tcs, []evaluation.Result{{ReceivedOutput: "3"}})
	if !errors.Is(err, evaluation.ErrResultCountMismatch) {
		t.Fatalf("expected count mismatch, got %v", err)
	}

	if _, err := env.submissions.SaveProblemSubmission(ctx, q.ID, candidate, SaveProblemRequest{Code: "v2", Language: "go"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	_, err = env.submissions.ApplyEvaluation(ctx, sub.ID, 1, tcs, []evaluation.Result{{ReceivedOutput: "3"}, {ReceivedOutput: "4"}})
	wantErr(t, err, ErrStaleAttempt)
	_, _, err = env.submissions.EvaluationInput(ctx, model.EvaluationJob{SubmissionID: sub.ID, Attempt: 1})
	wantErr(t, err, ErrStaleAttempt)

	stored, _ := env.store.Submissions().FindByID(ctx, sub.ID)
	assertPlaceholders(t, stored, 2)
}

func TestSaveRequiresOpenExam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addWritten(t, exam.ID, 500)
	req := SaveWrittenRequest{Answer: "answer"}

	_, err := env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, req)
	wantErr(t, err, common.ErrExamNotOpen)

	if _, err := env.exams.Publish(ctx, exam.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, err = env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, req)
	wantErr(t, err, common.ErrExamNotOpen)

	env.clock.Set(testOpensAt)
	if _, err := env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, req); err != nil {
		t.Fatalf("save at opens_at: %v", err)
	}

	env.clock.Set(testClosesAt.Add(time.Second))
	_, err = env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, req)
	wantErr(t, err, common.ErrExamNotOpen)
	wantErr(t, err, common.ErrConflict)

	sub, _ := env.submissions.GetForCandidate(ctx, q.ID, candidate)
	if sub.Attempts != 1 {
		t.Fatalf("rejected saves must not count as attempts, got %d", sub.Attempts)
	}
}

func TestSaveValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	problem := env.addProblem(t, exam.ID, 1000)
	written := env.addWritten(t, exam.ID, 500)
	single := env.addMcq(t, exam.ID, 100, false, "0")
	archived := env.addWritten(t, exam.ID, 0)
	if _, err := env.questions.ArchiveQuestion(ctx, archived.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	env.openExam(t, exam.ID)

	tests := []struct {
		name string
		save func() error
		want error
	}{
		{"missing code", func() error {
			_, err := env.submissions.SaveProblemSubmission(ctx, problem.ID, candidate, SaveProblemRequest{Language: "go"})
			return err
		}, common.ErrValidation},
		{"wrong category", func() error {
			_, err := env.submissions.SaveWrittenSubmission(ctx, problem.ID, candidate, SaveWrittenRequest{Answer: "x"})
			return err
		}, common.ErrValidation},
		{"short answer too long", func() error {
			_, err := env.submissions.SaveWrittenSubmission(ctx, written.ID, candidate, SaveWrittenRequest{Answer: strings.Repeat("é", 2001)})
			return err
		}, common.ErrValidation},
		{"two options on single select", func() error {
			_, err := env.submissions.SaveMcqSubmission(ctx, single.ID, candidate, SaveMcqRequest{Selected: []int{0, 1}})
			return err
		}, common.ErrValidation},
		{"option out of range", func() error {
			_, err := env.submissions.SaveMcqSubmission(ctx, single.ID, candidate, SaveMcqRequest{Selected: []int{4}})
			return err
		}, common.ErrValidation},
		{"archived question", func() error {
			_, err := env.submissions.SaveWrittenSubmission(ctx, archived.ID, candidate, SaveWrittenRequest{Answer: "x"})
			return err
		}, common.ErrNotFound},
		{"unknown question", func() error {
			_, err := env.submissions.SaveWrittenSubmission(ctx, "missing", candidate, SaveWrittenRequest{Answer: "x"})
			return err
		}, common.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wantErr(t, tc.save(), tc.want)
		})
	}

	subs, _ := env.store.Submissions().ListByExam(ctx, exam.ID)
	if len(subs) != 0 {
		t.Fatalf("rejected saves must not create submissions, got %d", len(subs))
	}
}

func TestSaveLongWrittenAnswer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addWritten(t, exam.ID, 500)
	if _, err := env.questions.UpdateQuestion(ctx, q.ID, UpdateQuestionRequest{LongAnswer: common.Some(true)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	env.openExam(t, exam.ID)

	sub, err := env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, SaveWrittenRequest{Answer: strings.Repeat("a", 5000)})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(sub.Written.Answer) != 5000 {
		t.Fatalf("long answer truncated")
	}
}

func TestSaveMcqSortsSelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addMcq(t, exam.ID, 100, true, "0,3")
	env.openExam(t, exam.ID)

	sub, err := env.submissions.SaveMcqSubmission(ctx, q.ID, candidate, SaveMcqRequest{Selected: []int{3, 0}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !reflect.DeepEqual(sub.Mcq.Selected, []int{0, 3}) {
		t.Fatalf("expected sorted selection, got %v", sub.Mcq.Selected)
	}
	if len(env.drainQueue()) != 0 {
		t.Fatalf("mcq saves must not enqueue evaluation")
	}
}

func TestGradeSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addWritten(t, exam.ID, 500)
	env.openExam(t, exam.ID)
	sub, err := env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, SaveWrittenRequest{Answer: "x"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err = env.submissions.GradeSubmission(ctx, sub.ID, GradeRequest{})
	wantErr(t, err, common.ErrValidation)
	_, err = env.submissions.GradeSubmission(ctx, sub.ID, GradeRequest{Score: common.Some[model.Points](501)})
	wantErr(t, err, common.ErrValidation)
	_, err = env.submissions.GradeSubmission(ctx, sub.ID, GradeRequest{Score: common.Some[model.Points](-1)})
	wantErr(t, err, common.ErrValidation)
	_, err = env.submissions.GradeSubmission(ctx, "missing", GradeRequest{Score: common.Some[model.Points](1)})
	wantErr(t, err, common.ErrNotFound)

	graded, err := env.submissions.GradeSubmission(ctx, sub.ID, GradeRequest{Score: common.Some[model.Points](500)})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if graded.Score == nil || *graded.Score != 500 {
		t.Fatalf("expected score 5.00, got %v", graded.Score)
	}

	cleared, err := env.submissions.GradeSubmission(ctx, sub.ID, GradeRequest{Score: common.Null[model.Points]()})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.Score != nil {
		t.Fatalf("explicit null must clear the score")
	}
	stored, _ := env.store.Submissions().FindByID(ctx, sub.ID)
	if stored.Score != nil || stored.Attempts != 1 {
		t.Fatalf("unexpected stored submission %+v", stored)
	}
}

func TestAutoGradeMcq(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	multi := env.addMcq(t, exam.ID, 300, true, "0,3")
	written := env.addWritten(t, exam.ID, 500)
	env.openExam(t, exam.ID)

	picks := map[string][]int{"amy": {3, 0}, "bob": {0}, "cat": {0, 1, 3}}
	for cand, sel := range picks {
		if _, err := env.submissions.SaveMcqSubmission(ctx, multi.ID, cand, SaveMcqRequest{Selected: sel}); err != nil {
			t.Fatalf("save %s: %v", cand, err)
		}
	}
	if _, err := env.submissions.SaveWrittenSubmission(ctx, written.ID, "amy", SaveWrittenRequest{Answer: "x"}); err != nil {
		t.Fatalf("save written: %v", err)
	}

	n, err := env.submissions.AutoGradeMcq(ctx, exam.ID)
	if err != nil {
		t.Fatalf("autograde: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 graded submissions, got %d", n)
	}
	want := map[string]model.Points{"amy": 300, "bob": 0, "cat": 0}
	for cand, score := range want {
		sub, err := env.submissions.GetForCandidate(ctx, multi.ID, cand)
		if err != nil {
			t.Fatalf("get %s: %v", cand, err)
		}
		if sub.Score == nil || *sub.Score != score {
			t.Fatalf("%s: expected %s, got %v", cand, score, sub.Score)
		}
	}
	w, _ := env.submissions.GetForCandidate(ctx, written.ID, "amy")
	if w.Score != nil {
		t.Fatalf("written submissions are graded by hand")
	}

	_, err = env.submissions.AutoGradeMcq(ctx, "missing")
	wantErr(t, err, common.ErrNotFound)
}

func TestRegrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addProblem(t, exam.ID, 1000)
	written := env.addWritten(t, exam.ID, 100)
	env.openExam(t, exam.ID)

	for _, cand := range []string{"amy", "bob"} {
		if _, err := env.submissions.SaveProblemSubmission(ctx, q.ID, cand, SaveProblemRequest{Code: "x", Language: "go"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if _, err := env.submissions.SaveProblemSubmission(ctx, q.ID, "bob", SaveProblemRequest{Code: "y", Language: "go"}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	env.drainQueue()

	tcs, _ := env.store.Questions().GetTestCases(ctx, q.ID)
	n, err := env.submissions.Regrade(ctx, q.ID, RegradeRequest{TestCaseIDs: []string{tcs[1].ID}})
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 jobs, got %d", n)
	}
	attempts := map[int]int{}
	for _, job := range env.drainQueue() {
		if !reflect.DeepEqual(job.TestCaseIDs, []string{tcs[1].ID}) {
			t.Fatalf("job lost its test case filter: %+v", job)
		}
		attempts[job.Attempt]++
	}
	if attempts[1] != 1 || attempts[2] != 1 {
		t.Fatalf("jobs must carry the current attempt, got %v", attempts)
	}

	_, err = env.submissions.Regrade(ctx, q.ID, RegradeRequest{TestCaseIDs: []string{uuid.NewString()}})
	wantErr(t, err, common.ErrValidation)
	_, err = env.submissions.Regrade(ctx, written.ID, RegradeRequest{})
	wantErr(t, err, common.ErrValidation)

	disabled := NewSubmissionService(env.store.Transactor(), env.store.Exams(), env.store.Questions(), env.store.Submissions(),
		NewEvaluationJobService(nil, env.clock), env.clock)
	_, err = disabled.Regrade(ctx, q.ID, RegradeRequest{})
	wantErr(t, err, common.ErrServiceUnavailable)
}

func TestSaveWithoutQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addProblem(t, exam.ID, 1000)
	env.openExam(t, exam.ID)

	subs := NewSubmissionService(env.store.Transactor(), env.store.Exams(), env.store.Questions(), env.store.Submissions(),
		NewEvaluationJobService(nil, env.clock), env.clock)
	sub, err := subs.SaveProblemSubmission(ctx, q.ID, candidate, SaveProblemRequest{Code: "x", Language: "go"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	assertPlaceholders(t, sub, 2)
}

func TestGetSubmissionOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.createExam(t)
	q := env.addWritten(t, exam.ID, 100)
	env.openExam(t, exam.ID)
	sub, err := env.submissions.SaveWrittenSubmission(ctx, q.ID, candidate, SaveWrittenRequest{Answer: "x"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := env.submissions.Get(ctx, sub.ID, candidate, model.RoleCandidate); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := env.submissions.Get(ctx, sub.ID, "admin-1", model.RoleAdmin); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	_, err = env.submissions.Get(ctx, sub.ID, "someone-else", model.RoleCandidate)
	wantErr(t, err, common.ErrNotFound)
}
