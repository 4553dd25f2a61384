package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"examforge/internal/app/service"
	"examforge/internal/common"
	"examforge/internal/domain/evaluation"
	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"
	"examforge/internal/platform/database"
	"examforge/internal/platform/events"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("EXAMFORGE_INTEGRATION") != "1" {
		t.Skip("set EXAMFORGE_INTEGRATION=1 and EXAMFORGE_TEST_DSN to run postgres tests")
	}
	dsn := os.Getenv("EXAMFORGE_TEST_DSN")
	if dsn == "" {
		t.Fatalf("EXAMFORGE_TEST_DSN is required for integration tests")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPostgresLedgerAndSubmissions(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	opens := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	clock := &common.FixedClock{T: opens.Add(-30 * time.Minute)}
	tx := repository.NewSQLTransactor(db)
	users := repository.NewPgUserRepository(db)
	exams := repository.NewPgExamRepository(db)
	questions := repository.NewPgQuestionRepository(db)
	submissions := repository.NewPgSubmissionRepository(db)

	notifier, err := events.NewEventPublisher("", "")
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	examSvc := service.NewExamService(tx, exams, questions, notifier, clock)
	questionSvc := service.NewQuestionService(tx, exams, questions, clock)
	submissionSvc := service.NewSubmissionService(tx, exams, questions, submissions, service.NewEvaluationJobService(nil, clock), clock)

	cand := &model.User{
		ID: uuid.NewString(), Username: "it" + uuid.NewString()[:8], Email: uuid.NewString() + "@example.com",
		HashedPassword: "x", Role: model.RoleCandidate, CreatedAt: clock.Now(), UpdatedAt: clock.Now(),
	}
	if err := users.Create(ctx, cand); err != nil {
		t.Fatalf("create user: %v", err)
	}

	exam, err := examSvc.Create(ctx, "", service.CreateExamRequest{
		Title: "Integration exam", OpensAt: opens, ClosesAt: opens.Add(2 * time.Hour), DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	t.Cleanup(func() { db.Exec(`DELETE FROM exams WHERE id = $1`, exam.ID); db.Exec(`DELETE FROM users WHERE id = $1`, cand.ID) })

	problem, err := questionSvc.AddQuestion(ctx, exam.ID, service.AddQuestionRequest{
		Category: model.CategoryProblemSolving, Statement: "sum", Points: 1000, Difficulty: model.DifficultyEasy,
		TestCases: []service.TestCaseInput{{Input: "1 2", ExpectedOutput: "3"}, {Input: "2 2", ExpectedOutput: "4"}},
	})
	if err != nil {
		t.Fatalf("add problem: %v", err)
	}
	mcq, err := questionSvc.AddQuestion(ctx, exam.ID, service.AddQuestionRequest{
		Category: model.CategoryMCQ, Statement: "pick", Points: 250, Difficulty: model.DifficultyHard,
		McqOption: &service.McqOptionInput{Options: []string{"a", "b", "c"}, MultiSelect: true, CorrectAnswers: "2,0"},
	})
	if err != nil {
		t.Fatalf("add mcq: %v", err)
	}
	if _, err := questionSvc.UpdateQuestionPoints(ctx, mcq.ID, service.UpdatePointsRequest{Points: 300}); err != nil {
		t.Fatalf("update points: %v", err)
	}

	boom := errors.New("boom")
	err = tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := exams.ApplyLedgerDelta(ctx, exam.ID, model.CategoryWritten, 999); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error back, got %v", err)
	}

	report, err := examSvc.CheckLedger(ctx, exam.ID)
	if err != nil {
		t.Fatalf("check ledger: %v", err)
	}
	want := model.PointLedger{TotalPoints: 1300, ProblemSolvingPoints: 1000, McqPoints: 300}
	if report.Drifted || report.Stored != want {
		t.Fatalf("expected %+v without drift, got %+v", want, report)
	}

	if _, err := examSvc.Publish(ctx, exam.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := questionSvc.RemoveQuestion(ctx, mcq.ID); !errors.Is(err, common.ErrExamPublished) {
		t.Fatalf("expected ErrExamPublished, got %v", err)
	}

	clock.Set(opens.Add(time.Minute))
	sub, err := submissionSvc.SaveProblemSubmission(ctx, problem.ID, cand.ID, service.SaveProblemRequest{Code: "a", Language: "go"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	tcs, err := questions.GetTestCases(ctx, problem.ID)
	if err != nil {
		t.Fatalf("test cases: %v", err)
	}
	if _, err := submissionSvc.ApplyEvaluation(ctx, sub.ID, 1, tcs, []evaluation.Result{{ReceivedOutput: "3"}, {ReceivedOutput: "5"}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	again, err := submissionSvc.SaveProblemSubmission(ctx, problem.ID, cand.ID, service.SaveProblemRequest{Code: "b", Language: "go"})
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if again.ID != sub.ID || again.Attempts != 2 {
		t.Fatalf("expected same submission at attempt 2, got %s/%d", again.ID, again.Attempts)
	}
	stored, err := submissions.FindByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Problem.Code != "b" || len(stored.Problem.TestCaseOutputs) != 2 {
		t.Fatalf("unexpected stored submission %+v", stored.Problem)
	}
	for i, o := range stored.Problem.TestCaseOutputs {
		if o.TestCaseID != tcs[i].ID || o.Accepted {
			t.Fatalf("output %d not reset in test case order: %+v", i, o)
		}
	}

	mcqSub, err := submissionSvc.SaveMcqSubmission(ctx, mcq.ID, cand.ID, service.SaveMcqRequest{Selected: []int{2, 0}})
	if err != nil {
		t.Fatalf("save mcq: %v", err)
	}
	if n, err := submissionSvc.AutoGradeMcq(ctx, exam.ID); err != nil || n != 1 {
		t.Fatalf("autograde: %d (%v)", n, err)
	}
	graded, err := submissions.FindByID(ctx, mcqSub.ID)
	if err != nil || graded.Score == nil || *graded.Score != 300 {
		t.Fatalf("expected mcq score 3.00, got %+v (%v)", graded, err)
	}
}

func TestPostgresConcurrentQuestionEdits(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	opens := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	clock := &common.FixedClock{T: opens.Add(-30 * time.Minute)}
	tx := repository.NewSQLTransactor(db)
	exams := repository.NewPgExamRepository(db)
	questions := repository.NewPgQuestionRepository(db)
	notifier, err := events.NewEventPublisher("", "")
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	examSvc := service.NewExamService(tx, exams, questions, notifier, clock)
	questionSvc := service.NewQuestionService(tx, exams, questions, clock)

	exam, err := examSvc.Create(ctx, "", service.CreateExamRequest{
		Title: "Concurrency exam", OpensAt: opens, ClosesAt: opens.Add(2 * time.Hour), DurationMinutes: 60,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	t.Cleanup(func() { db.Exec(`DELETE FROM exams WHERE id = $1`, exam.ID) })

	addWritten := func(points model.Points) *model.Question {
		q, err := questionSvc.AddQuestion(ctx, exam.ID, service.AddQuestionRequest{
			Category: model.CategoryWritten, Statement: "explain", Points: points, Difficulty: model.DifficultyMedium,
		})
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		return q
	}
	removed := addWritten(1000)
	edited := addWritten(500)

	const workers = 8
	var wg sync.WaitGroup
	removeErrs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			removeErrs <- questionSvc.RemoveQuestion(ctx, removed.ID)
		}()
		go func(points model.Points) {
			defer wg.Done()
			if _, err := questionSvc.UpdateQuestionPoints(ctx, edited.ID, service.UpdatePointsRequest{Points: points}); err != nil {
				t.Errorf("update points: %v", err)
			}
		}(model.Points(100 * (i + 1)))
	}
	wg.Wait()
	close(removeErrs)

	succeeded := 0
	for err := range removeErrs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, common.ErrNotFound):
			t.Fatalf("expected NotFound for a repeated removal, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one removal to succeed, got %d", succeeded)
	}

	report, err := examSvc.CheckLedger(ctx, exam.ID)
	if err != nil {
		t.Fatalf("check ledger: %v", err)
	}
	if report.Drifted {
		t.Fatalf("ledger drifted under concurrent edits: stored %+v, computed %+v", report.Stored, report.Computed)
	}
	final, err := questions.FindByID(ctx, edited.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if report.Stored.WrittenPoints != final.Points {
		t.Fatalf("expected written points %s, got %s", final.Points, report.Stored.WrittenPoints)
	}
}
