// Package executor talks to the code runner that executes problem-solving answers.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"examforge/internal/domain/evaluation"
	"examforge/internal/domain/model"
)

// Request is what the code runner receives: the answer plus the test cases
// to run it against, in order.
type Request struct {
	SubmissionID string     `json:"submission_id"`
	Language     string     `json:"language"`
	Code         string     `json:"code"`
	TestCases    []TestCase `json:"test_cases"`
}

type TestCase struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// NewRequest builds a runner request for sub over testCases.
func NewRequest(sub *model.Submission, testCases []model.TestCase) Request {
	req := Request{SubmissionID: sub.ID}
	if sub.Problem != nil {
		req.Language = sub.Problem.Language
		req.Code = sub.Problem.Code
	}
	for _, tc := range testCases {
		req.TestCases = append(req.TestCases, TestCase{ID: tc.ID, Input: tc.Input, ExpectedOutput: tc.ExpectedOutput})
	}
	return req
}

// Executor runs a request and returns one result per test case, in request order.
type Executor interface {
	Execute(ctx context.Context, req Request) ([]evaluation.Result, error)
}

// PlaceholderExecutor stands in for a real runner: every test case comes back
// as a failed run carrying the placeholder output.
type PlaceholderExecutor struct{}

func (PlaceholderExecutor) Execute(_ context.Context, req Request) ([]evaluation.Result, error) {
	results := make([]evaluation.Result, len(req.TestCases))
	for i := range results {
		results[i] = evaluation.Result{ReceivedOutput: model.PlaceholderOutput, Failed: true}
	}
	return results, nil
}

// HTTPExecutor posts requests to an external runner service.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

func NewHTTPExecutor(url string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{url: url, client: &http.Client{Timeout: timeout}}
}

type httpResponse struct {
	Results []evaluation.Result `json:"results"`
}

func (e *HTTPExecutor) Execute(ctx context.Context, req Request) ([]evaluation.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal executor request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create executor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call executor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("executor returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode executor response: %w", err)
	}
	return out.Results, nil
}
