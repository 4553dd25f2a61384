package model

import (
	"time"
)

const (
	JobStatusQueued    = "Queued"
	JobStatusCompleted = "Completed"
	JobStatusSkipped   = "Skipped" // superseded by a newer attempt
	JobStatusFailed    = "Failed"
	JobStatusRequeued  = "Requeued" // lock busy, retried later
)

// EvaluationJob asks the worker to execute a problem-solving submission.
// An empty TestCaseIDs means every test case of the question.
type EvaluationJob struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Attempt      int       `json:"attempt"`
	TestCaseIDs  []string  `json:"test_case_ids,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}
