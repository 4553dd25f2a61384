package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"

	"examforge/internal/common"
	"examforge/internal/domain/evaluation"
	"examforge/internal/domain/model"
)

// WebhookService accepts results pushed back by an asynchronous code runner.
type WebhookService struct {
	submissions *SubmissionService
	secret      string
}

// NewWebhookService enables the callback only when secret is non-empty.
func NewWebhookService(submissions *SubmissionService, secret string) *WebhookService {
	return &WebhookService{submissions: submissions, secret: secret}
}

// EvaluationResultPayload is what the runner posts. Results follow the order
// of TestCaseIDs, or the question's test case order when TestCaseIDs is empty.
type EvaluationResultPayload struct {
	SubmissionID string              `json:"submission_id" validate:"required,uuid"`
	Attempt      int                 `json:"attempt" validate:"required,min=1"`
	TestCaseIDs  []string            `json:"test_case_ids" validate:"omitempty,max=100,dive,uuid"`
	Results      []evaluation.Result `json:"results" validate:"max=100"`
}

func (s *WebhookService) Enabled() bool {
	return s.secret != ""
}

// Authorize compares the shared secret in constant time.
func (s *WebhookService) Authorize(secret string) bool {
	if !s.Enabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.secret)) == 1
}

// HandleEvaluationResult applies the results. It reports false, with no error,
// when the submission was resubmitted after the run started.
func (s *WebhookService) HandleEvaluationResult(ctx context.Context, payload EvaluationResultPayload) (bool, error) {
	if err := common.Validate(payload); err != nil {
		return false, err
	}
	log.Printf("INFO: Webhook received for submission %s (attempt %d), %d result(s).", payload.SubmissionID, payload.Attempt, len(payload.Results))

	job := model.EvaluationJob{SubmissionID: payload.SubmissionID, Attempt: payload.Attempt, TestCaseIDs: payload.TestCaseIDs}
	_, testCases, err := s.submissions.EvaluationInput(ctx, job)
	if err == nil {
		_, err = s.submissions.ApplyEvaluation(ctx, payload.SubmissionID, payload.Attempt, testCases, payload.Results)
	}
	if errors.Is(err, ErrStaleAttempt) {
		log.Printf("WARN: Ignoring webhook for submission %s: attempt %d is superseded.", payload.SubmissionID, payload.Attempt)
		return false, nil
	}
	if errors.Is(err, evaluation.ErrResultCountMismatch) {
		return false, common.NewValidationError("results", "len", err.Error())
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
