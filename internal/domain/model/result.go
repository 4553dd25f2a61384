package model

// CandidateResult is derived on demand from a candidate's submissions; it is never stored.
type CandidateResult struct {
	ExamID              string `json:"exam_id"`
	CandidateID         string `json:"candidate_id"`
	ProblemSolvingScore Points `json:"problem_solving_score"`
	WrittenScore        Points `json:"written_score"`
	McqScore            Points `json:"mcq_score"`
	TotalScore          Points `json:"total_score"`
	ExamTotalPoints     Points `json:"exam_total_points"`
	IsReviewed          bool   `json:"is_reviewed"`
	SubmissionCount     int    `json:"submission_count"`
	GradedCount         int    `json:"graded_count"`
}
