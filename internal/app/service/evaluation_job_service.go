package service

import (
	"context"
	"log"

	"examforge/internal/common"
	"examforge/internal/domain/model"

	"github.com/google/uuid"
)

// JobQueue is where evaluation jobs wait for the worker.
type JobQueue interface {
	Push(ctx context.Context, job model.EvaluationJob) error
}

type EvaluationJobService struct {
	queue JobQueue
	clock common.Clock
}

// NewEvaluationJobService wires the producer side of the evaluation queue.
// A nil queue disables evaluation: saves still succeed, nothing is enqueued.
func NewEvaluationJobService(queue JobQueue, clock common.Clock) *EvaluationJobService {
	return &EvaluationJobService{queue: queue, clock: clock}
}

func (s *EvaluationJobService) Enabled() bool {
	return s != nil && s.queue != nil
}

// EnqueueEvaluation pushes a job for one attempt of a submission.
// An empty testCaseIDs asks for every test case of the question.
func (s *EvaluationJobService) EnqueueEvaluation(ctx context.Context, submissionID string, attempt int, testCaseIDs []string) (*model.EvaluationJob, error) {
	if !s.Enabled() {
		return nil, common.Errorf("evaluation queue is not configured: %w", common.ErrServiceUnavailable)
	}

	job := model.EvaluationJob{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Attempt:      attempt,
		TestCaseIDs:  testCaseIDs,
		EnqueuedAt:   s.clock.Now(),
	}
	if err := s.queue.Push(ctx, job); err != nil {
		return nil, common.Errorf("failed to push evaluation job: %w", err)
	}

	log.Printf("INFO: Evaluation job %s for submission %s (attempt %d) enqueued.", job.ID, submissionID, attempt)
	return &job, nil
}
