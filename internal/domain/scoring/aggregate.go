package scoring

import (
	"sort"

	"examforge/internal/domain/model"
)

// Aggregate rolls a candidate's submissions for one exam into a result.
// An ungraded submission adds 0 to its category but keeps the result unreviewed.
func Aggregate(examID, candidateID string, submissions []model.Submission) model.CandidateResult {
	res := model.CandidateResult{
		ExamID:          examID,
		CandidateID:     candidateID,
		SubmissionCount: len(submissions),
		IsReviewed:      true,
	}
	for i := range submissions {
		s := &submissions[i]
		if !s.IsGraded() {
			res.IsReviewed = false
			continue
		}
		res.GradedCount++
		switch s.Category {
		case model.CategoryProblemSolving:
			res.ProblemSolvingScore += *s.Score
		case model.CategoryWritten:
			res.WrittenScore += *s.Score
		case model.CategoryMCQ:
			res.McqScore += *s.Score
		}
	}
	res.TotalScore = res.ProblemSolvingScore + res.WrittenScore + res.McqScore
	return res
}

// AggregateByCandidate groups an exam's submissions per candidate, sorted by candidate id.
func AggregateByCandidate(examID string, submissions []model.Submission) []model.CandidateResult {
	grouped := make(map[string][]model.Submission)
	for _, s := range submissions {
		grouped[s.CandidateID] = append(grouped[s.CandidateID], s)
	}
	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]model.CandidateResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, Aggregate(examID, id, grouped[id]))
	}
	return results
}
