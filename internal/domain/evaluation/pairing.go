package evaluation

import (
	"errors"
	"fmt"
	"sort"

	"examforge/internal/domain/model"
)

// ErrResultCountMismatch is returned when an executor reports a different
// number of results than it was given test cases.
var ErrResultCountMismatch = errors.New("execution result count does not match test case count")

// ErrUnknownTestCase is returned when a run names a test case the question
// does not have, or names one twice.
var ErrUnknownTestCase = errors.New("test case selection does not match the question")

// Result is one executor outcome, in the same order as the submitted test cases.
type Result struct {
	ReceivedOutput string `json:"received_output"`
	Failed         bool   `json:"failed,omitempty"` // compile or runtime failure
}

// SortTestCases orders test cases by creation time, ties broken by id.
func SortTestCases(testCases []model.TestCase) {
	sort.SliceStable(testCases, func(i, j int) bool {
		if testCases[i].CreatedAt.Equal(testCases[j].CreatedAt) {
			return testCases[i].ID < testCases[j].ID
		}
		return testCases[i].CreatedAt.Before(testCases[j].CreatedAt)
	})
}

// Pair aligns test cases with executor results index by index.
// Acceptance is exact string equality between received and expected output:
// no trimming, no case folding, no numeric tolerance.
func Pair(testCases []model.TestCase, results []Result) ([]model.TestCaseOutputResponse, error) {
	if len(testCases) != len(results) {
		return nil, fmt.Errorf("%w: %d test cases, %d results", ErrResultCountMismatch, len(testCases), len(results))
	}
	out := make([]model.TestCaseOutputResponse, len(testCases))
	for i, tc := range testCases {
		res := results[i]
		out[i] = model.TestCaseOutputResponse{
			TestCaseID:     tc.ID,
			Accepted:       !res.Failed && res.ReceivedOutput == tc.ExpectedOutput,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ReceivedOutput: res.ReceivedOutput,
		}
	}
	return out, nil
}

// Outputs strips the display fields from paired responses.
func Outputs(responses []model.TestCaseOutputResponse) []model.TestCaseOutput {
	out := make([]model.TestCaseOutput, len(responses))
	for i, r := range responses {
		out[i] = r.Output()
	}
	return out
}

// Placeholders builds the not-yet-executed output list for testCases.
func Placeholders(testCases []model.TestCase) []model.TestCaseOutput {
	out := make([]model.TestCaseOutput, len(testCases))
	for i, tc := range testCases {
		out[i] = model.TestCaseOutput{TestCaseID: tc.ID, Accepted: false, ReceivedOutput: model.PlaceholderOutput}
	}
	return out
}

// Merge reconciles stored outputs with freshly computed ones, keyed by test case id.
// The result follows the order of testCases and always has len(testCases) entries:
// a fresh value wins, otherwise the stored value is kept, otherwise a placeholder
// is used. Outputs for test cases that no longer exist are dropped.
func Merge(testCases []model.TestCase, existing, fresh []model.TestCaseOutput) []model.TestCaseOutput {
	prior := make(map[string]model.TestCaseOutput, len(existing))
	for _, o := range existing {
		prior[o.TestCaseID] = o
	}
	latest := make(map[string]model.TestCaseOutput, len(fresh))
	for _, o := range fresh {
		latest[o.TestCaseID] = o
	}

	merged := make([]model.TestCaseOutput, len(testCases))
	for i, tc := range testCases {
		if o, ok := latest[tc.ID]; ok {
			merged[i] = o
			continue
		}
		if o, ok := prior[tc.ID]; ok {
			merged[i] = o
			continue
		}
		merged[i] = model.TestCaseOutput{TestCaseID: tc.ID, ReceivedOutput: model.PlaceholderOutput}
	}
	return merged
}

// Select returns the test cases named by ids, in the order of ids, so results
// reported in that order pair with the right test case. An empty ids selects
// every test case in catalog order. Unknown or repeated ids are rejected.
func Select(testCases []model.TestCase, ids []string) ([]model.TestCase, error) {
	if len(ids) == 0 {
		return testCases, nil
	}
	byID := make(map[string]model.TestCase, len(testCases))
	for _, tc := range testCases {
		byID[tc.ID] = tc
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]model.TestCase, 0, len(ids))
	for _, id := range ids {
		tc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTestCase, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrUnknownTestCase, id)
		}
		seen[id] = struct{}{}
		out = append(out, tc)
	}
	return out, nil
}
