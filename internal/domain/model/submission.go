package model

import "time"

// PlaceholderOutput is recorded for test cases that have not been executed successfully.
const PlaceholderOutput = "Compiler error"

type Submission struct {
	ID          string           `json:"id"`
	ExamID      string           `json:"exam_id"`
	QuestionID  string           `json:"question_id"`
	CandidateID string           `json:"candidate_id"`
	Category    QuestionCategory `json:"category"`
	Attempts    int              `json:"attempts"`
	Score       *Points          `json:"score"` // nil until graded
	Problem     *ProblemAnswer   `json:"problem,omitempty"`
	Written     *WrittenAnswer   `json:"written,omitempty"`
	Mcq         *McqAnswer       `json:"mcq,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsGraded reports whether a score has been recorded.
func (s *Submission) IsGraded() bool {
	return s.Score != nil
}

type ProblemAnswer struct {
	Code            string           `json:"code"`
	Language        string           `json:"language"`
	TestCaseOutputs []TestCaseOutput `json:"test_case_outputs"`
}

type WrittenAnswer struct {
	Answer string `json:"answer"`
}

type McqAnswer struct {
	Selected []int `json:"selected"`
}

// TestCaseOutput is the stored result of one test case for one submission.
type TestCaseOutput struct {
	TestCaseID     string `json:"test_case_id"`
	Accepted       bool   `json:"accepted"`
	ReceivedOutput string `json:"received_output"`
}

// TestCaseOutputResponse pairs a test case with what the execution produced.
type TestCaseOutputResponse struct {
	TestCaseID     string `json:"test_case_id"`
	Accepted       bool   `json:"accepted"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	ReceivedOutput string `json:"received_output"`
}

// Output drops the display-only fields.
func (r TestCaseOutputResponse) Output() TestCaseOutput {
	return TestCaseOutput{TestCaseID: r.TestCaseID, Accepted: r.Accepted, ReceivedOutput: r.ReceivedOutput}
}
