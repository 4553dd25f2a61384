package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"examforge/internal/common"
	"examforge/internal/domain/model"
)

type submissionRepo struct {
	s *Store
}

func copySubmission(sub model.Submission) model.Submission {
	if sub.Score != nil {
		score := *sub.Score
		sub.Score = &score
	}
	if sub.Problem != nil {
		p := *sub.Problem
		p.TestCaseOutputs = append([]model.TestCaseOutput{}, p.TestCaseOutputs...)
		sub.Problem = &p
	}
	if sub.Written != nil {
		w := *sub.Written
		sub.Written = &w
	}
	if sub.Mcq != nil {
		m := model.McqAnswer{Selected: append([]int(nil), sub.Mcq.Selected...)}
		sub.Mcq = &m
	}
	return sub
}

func (r *submissionRepo) Create(ctx context.Context, sub *model.Submission) error {
	defer r.s.lock(ctx)()
	d := &r.s.data
	for _, existing := range d.submissions {
		if existing.QuestionID == sub.QuestionID && existing.CandidateID == sub.CandidateID {
			return fmt.Errorf("submission for this question and candidate already exists: %w", common.ErrConflict)
		}
	}
	if _, ok := d.questions[sub.QuestionID]; !ok {
		return fmt.Errorf("memory.Create submission question %s: %w", sub.QuestionID, common.ErrFailure)
	}
	d.submissions[sub.ID] = copySubmission(*sub)
	return nil
}

func (r *submissionRepo) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	defer r.s.lock(ctx)()
	sub, ok := r.s.data.submissions[id]
	if !ok {
		return nil, fmt.Errorf("submission: %w", common.ErrNotFound)
	}
	out := copySubmission(sub)
	return &out, nil
}

func (r *submissionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Submission, error) {
	return r.FindByID(ctx, id)
}

func (r *submissionRepo) FindByQuestionAndCandidate(ctx context.Context, questionID, candidateID string) (*model.Submission, error) {
	defer r.s.lock(ctx)()
	for _, sub := range r.s.data.submissions {
		if sub.QuestionID == questionID && sub.CandidateID == candidateID {
			out := copySubmission(sub)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("submission: %w", common.ErrNotFound)
}

func (r *submissionRepo) UpdateAnswer(ctx context.Context, sub *model.Submission) (int, error) {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.submissions[sub.ID]
	if !ok {
		return 0, fmt.Errorf("memory.UpdateAnswer %s: %w", sub.ID, common.ErrFailure)
	}
	stored.Attempts++
	stored.UpdatedAt = sub.UpdatedAt
	switch {
	case sub.Problem != nil:
		outputs := []model.TestCaseOutput{}
		if stored.Problem != nil {
			outputs = stored.Problem.TestCaseOutputs
		}
		stored.Problem = &model.ProblemAnswer{Code: sub.Problem.Code, Language: sub.Problem.Language, TestCaseOutputs: outputs}
	case sub.Written != nil:
		stored.Written = &model.WrittenAnswer{Answer: sub.Written.Answer}
	case sub.Mcq != nil:
		stored.Mcq = &model.McqAnswer{Selected: append([]int(nil), sub.Mcq.Selected...)}
	}
	r.s.data.submissions[sub.ID] = copySubmission(stored)
	return stored.Attempts, nil
}

func (r *submissionRepo) ReplaceOutputs(ctx context.Context, submissionID string, outputs []model.TestCaseOutput) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.submissions[submissionID]
	if !ok || stored.Problem == nil {
		return fmt.Errorf("memory.ReplaceOutputs %s: %w", submissionID, common.ErrFailure)
	}
	p := *stored.Problem
	p.TestCaseOutputs = append([]model.TestCaseOutput{}, outputs...)
	stored.Problem = &p
	r.s.data.submissions[submissionID] = stored
	return nil
}

func (r *submissionRepo) UpdateScore(ctx context.Context, submissionID string, score *model.Points, at time.Time) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.data.submissions[submissionID]
	if !ok {
		return fmt.Errorf("memory.UpdateScore %s: %w", submissionID, common.ErrFailure)
	}
	stored.Score = nil
	if score != nil {
		v := *score
		stored.Score = &v
	}
	stored.UpdatedAt = at
	r.s.data.submissions[submissionID] = stored
	return nil
}

func (r *submissionRepo) ListByExam(ctx context.Context, examID string) ([]model.Submission, error) {
	return r.list(ctx, func(s model.Submission) bool { return s.ExamID == examID })
}

func (r *submissionRepo) ListByExamAndCandidate(ctx context.Context, examID, candidateID string) ([]model.Submission, error) {
	return r.list(ctx, func(s model.Submission) bool { return s.ExamID == examID && s.CandidateID == candidateID })
}

func (r *submissionRepo) ListByQuestion(ctx context.Context, questionID string) ([]model.Submission, error) {
	return r.list(ctx, func(s model.Submission) bool { return s.QuestionID == questionID })
}

func (r *submissionRepo) list(ctx context.Context, match func(model.Submission) bool) ([]model.Submission, error) {
	defer r.s.lock(ctx)()
	subs := []model.Submission{}
	for _, sub := range r.s.data.submissions {
		if match(sub) {
			subs = append(subs, copySubmission(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CandidateID != subs[j].CandidateID {
			return subs[i].CandidateID < subs[j].CandidateID
		}
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}
