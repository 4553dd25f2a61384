package service

import (
	"context"

	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"
	"examforge/internal/domain/scoring"
)

type ResultService struct {
	examRepo       repository.ExamRepository
	questionRepo   repository.QuestionRepository
	submissionRepo repository.SubmissionRepository
}

func NewResultService(
	examRepo repository.ExamRepository,
	questionRepo repository.QuestionRepository,
	submissionRepo repository.SubmissionRepository,
) *ResultService {
	return &ResultService{examRepo: examRepo, questionRepo: questionRepo, submissionRepo: submissionRepo}
}

// relevant drops submissions whose question has since been deleted.
func (s *ResultService) relevant(ctx context.Context, examID string, subs []model.Submission) ([]model.Submission, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		live[q.ID] = struct{}{}
	}
	out := subs[:0]
	for _, sub := range subs {
		if _, ok := live[sub.QuestionID]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *ResultService) GetCandidateResult(ctx context.Context, examID, candidateID string) (*model.CandidateResult, error) {
	exam, err := s.examRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	subs, err := s.submissionRepo.ListByExamAndCandidate(ctx, examID, candidateID)
	if err != nil {
		return nil, err
	}
	subs, err = s.relevant(ctx, examID, subs)
	if err != nil {
		return nil, err
	}
	res := scoring.Aggregate(examID, candidateID, subs)
	res.ExamTotalPoints = exam.Ledger.TotalPoints
	return &res, nil
}

// ListExamResults returns one result per candidate that submitted anything, ordered by candidate id.
func (s *ResultService) ListExamResults(ctx context.Context, examID string) ([]model.CandidateResult, error) {
	exam, err := s.examRepo.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	subs, err := s.submissionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	subs, err = s.relevant(ctx, examID, subs)
	if err != nil {
		return nil, err
	}
	results := scoring.AggregateByCandidate(examID, subs)
	for i := range results {
		results[i].ExamTotalPoints = exam.Ledger.TotalPoints
	}
	return results, nil
}
