package memory

import (
	"context"
	"fmt"
	"sort"

	"examforge/internal/common"
	"examforge/internal/domain/ledger"
	"examforge/internal/domain/model"
)

type examRepo struct {
	s *Store
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyExam(e model.Exam) model.Exam {
	e.Description = copyString(e.Description)
	e.CreatedByID = copyString(e.CreatedByID)
	return e
}

func (r *examRepo) Create(ctx context.Context, e *model.Exam) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.data.exams[e.ID]; ok {
		return fmt.Errorf("exam %s already exists: %w", e.ID, common.ErrConflict)
	}
	r.s.data.exams[e.ID] = copyExam(*e)
	return nil
}

func (r *examRepo) FindByID(ctx context.Context, id string) (*model.Exam, error) {
	defer r.s.lock(ctx)()
	e, ok := r.s.data.exams[id]
	if !ok {
		return nil, fmt.Errorf("exam %s: %w", id, common.ErrNotFound)
	}
	out := copyExam(e)
	return &out, nil
}

// FindByIDForUpdate needs no row lock here: callers already hold the store mutex inside WithinTx.
func (r *examRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Exam, error) {
	return r.FindByID(ctx, id)
}

func (r *examRepo) List(ctx context.Context, publishedOnly bool) ([]model.Exam, error) {
	defer r.s.lock(ctx)()
	exams := []model.Exam{}
	for _, e := range r.s.data.exams {
		if publishedOnly && !e.IsPublished {
			continue
		}
		exams = append(exams, copyExam(e))
	}
	sort.Slice(exams, func(i, j int) bool {
		if exams[i].OpensAt.Equal(exams[j].OpensAt) {
			return exams[i].ID < exams[j].ID
		}
		return exams[i].OpensAt.After(exams[j].OpensAt)
	})
	return exams, nil
}

// editable returns the stored exam if it exists and is not published.
func (r *examRepo) editable(id, op string) (model.Exam, error) {
	e, ok := r.s.data.exams[id]
	if !ok || e.IsPublished {
		return e, fmt.Errorf("memory.%s exam %s: %w", op, id, common.ErrFailure)
	}
	return e, nil
}

func (r *examRepo) UpdateMetadata(ctx context.Context, e *model.Exam) error {
	defer r.s.lock(ctx)()
	stored, err := r.editable(e.ID, "UpdateMetadata")
	if err != nil {
		return err
	}
	stored.Title = e.Title
	stored.Slug = e.Slug
	stored.Description = copyString(e.Description)
	stored.OpensAt = e.OpensAt
	stored.ClosesAt = e.ClosesAt
	stored.DurationMinutes = e.DurationMinutes
	stored.UpdatedAt = e.UpdatedAt
	r.s.data.exams[e.ID] = stored
	return nil
}

func (r *examRepo) ApplyLedgerDelta(ctx context.Context, examID string, c model.QuestionCategory, delta model.Points) (model.PointLedger, error) {
	defer r.s.lock(ctx)()
	stored, err := r.editable(examID, "ApplyLedgerDelta")
	if err != nil {
		return model.PointLedger{}, err
	}
	l, err := ledger.Apply(stored.Ledger, c, delta)
	if err != nil {
		return stored.Ledger, err
	}
	stored.Ledger = l
	r.s.data.exams[examID] = stored
	return l, nil
}

func (r *examRepo) ReplaceLedger(ctx context.Context, examID string, l model.PointLedger) error {
	defer r.s.lock(ctx)()
	stored, err := r.editable(examID, "ReplaceLedger")
	if err != nil {
		return err
	}
	stored.Ledger = l
	r.s.data.exams[examID] = stored
	return nil
}

func (r *examRepo) MarkPublished(ctx context.Context, examID string) error {
	defer r.s.lock(ctx)()
	stored, err := r.editable(examID, "MarkPublished")
	if err != nil {
		return err
	}
	stored.IsPublished = true
	r.s.data.exams[examID] = stored
	return nil
}

// Delete removes the exam and cascades to its questions, their children and submissions.
func (r *examRepo) Delete(ctx context.Context, examID string) error {
	defer r.s.lock(ctx)()
	if _, err := r.editable(examID, "Delete"); err != nil {
		return err
	}
	d := &r.s.data
	delete(d.exams, examID)
	for id, q := range d.questions {
		if q.ExamID != examID {
			continue
		}
		deleteQuestionChildren(d, id)
		delete(d.questions, id)
	}
	for id, sub := range d.submissions {
		if sub.ExamID == examID {
			delete(d.submissions, id)
		}
	}
	return nil
}
