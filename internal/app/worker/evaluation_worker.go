package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"examforge/internal/app/executor"
	"examforge/internal/app/service"
	"examforge/internal/domain/model"
	"examforge/internal/platform/metrics"
)

// JobSource is the consuming side of the evaluation queue.
type JobSource interface {
	// Pop returns nil, nil when no job arrived within the poll timeout.
	Pop(ctx context.Context) (*model.EvaluationJob, error)
	Requeue(ctx context.Context, job model.EvaluationJob) error
}

// Locker guards a submission so only one worker evaluates it at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

type EvaluationWorker struct {
	queue       JobSource
	locker      Locker
	submissions *service.SubmissionService
	executor    executor.Executor
	lockTTL     time.Duration
	retryDelay  time.Duration
}

func NewEvaluationWorker(queue JobSource, locker Locker, submissions *service.SubmissionService, exec executor.Executor, lockTTL time.Duration) *EvaluationWorker {
	return &EvaluationWorker{
		queue:       queue,
		locker:      locker,
		submissions: submissions,
		executor:    exec,
		lockTTL:     lockTTL,
		retryDelay:  time.Second,
	}
}

func (w *EvaluationWorker) Start(ctx context.Context) {
	log.Println("INFO: Evaluation worker started.")
	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: Evaluation worker stopping...")
			return
		default:
		}

		job, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Printf("ERROR: Failed to pop from evaluation queue: %v", err)
			sleep(ctx, 5*time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.ProcessJob(ctx, *job)
	}
}

// ProcessJob evaluates one job under the submission's lock and returns the
// job's final status. Jobs whose lock is busy are put back on the queue.
func (w *EvaluationWorker) ProcessJob(ctx context.Context, job model.EvaluationJob) string {
	status := w.process(ctx, job)
	metrics.EvaluationJobs.WithLabelValues(status).Inc()
	return status
}

func (w *EvaluationWorker) process(ctx context.Context, job model.EvaluationJob) string {
	release, ok, err := w.locker.Acquire(ctx, job.SubmissionID, w.lockTTL)
	if err != nil || !ok {
		if err != nil {
			log.Printf("ERROR: Failed to attempt lock acquisition for job %s: %v", job.ID, err)
		} else {
			log.Printf("INFO: Submission %s is being evaluated elsewhere, re-queueing job %s.", job.SubmissionID, job.ID)
		}
		sleep(ctx, w.retryDelay)
		if err := w.queue.Requeue(ctx, job); err != nil {
			log.Printf("ERROR: Failed to re-queue job %s: %v", job.ID, err)
			return model.JobStatusFailed
		}
		return model.JobStatusRequeued
	}
	defer release(context.Background())

	start := time.Now()
	defer func() { metrics.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	sub, testCases, err := w.submissions.EvaluationInput(ctx, job)
	if err != nil {
		if errors.Is(err, service.ErrStaleAttempt) {
			log.Printf("INFO: Job %s skipped, submission %s moved past attempt %d.", job.ID, job.SubmissionID, job.Attempt)
			return model.JobStatusSkipped
		}
		log.Printf("ERROR: Failed to load submission %s for job %s: %v", job.SubmissionID, job.ID, err)
		return model.JobStatusFailed
	}

	results, err := w.executor.Execute(ctx, executor.NewRequest(sub, testCases))
	if err != nil {
		// Outputs keep their placeholders; a regrade can retry.
		log.Printf("ERROR: Executor failed for job %s: %v", job.ID, err)
		return model.JobStatusFailed
	}

	if _, err := w.submissions.ApplyEvaluation(ctx, sub.ID, job.Attempt, testCases, results); err != nil {
		if errors.Is(err, service.ErrStaleAttempt) {
			log.Printf("INFO: Results of job %s dropped, submission %s was resubmitted.", job.ID, sub.ID)
			return model.JobStatusSkipped
		}
		log.Printf("ERROR: Failed to apply results of job %s: %v", job.ID, err)
		return model.JobStatusFailed
	}

	log.Printf("INFO: Job %s evaluated %d test case(s) for submission %s.", job.ID, len(testCases), sub.ID)
	return model.JobStatusCompleted
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
