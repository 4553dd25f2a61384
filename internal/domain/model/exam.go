package model

import (
	"time"

	"examforge/internal/common"
)

type ExamStatus string

const (
	ExamScheduled ExamStatus = "Scheduled"
	ExamRunning   ExamStatus = "Running"
	ExamEnded     ExamStatus = "Ended"
)

// PointLedger holds an exam's total and per-category point sums.
type PointLedger struct {
	TotalPoints          Points `json:"total_points"`
	ProblemSolvingPoints Points `json:"problem_solving_points"`
	WrittenPoints        Points `json:"written_points"`
	McqPoints            Points `json:"mcq_points"`
}

// Category returns the sub-total for c.
func (l PointLedger) Category(c QuestionCategory) Points {
	switch c {
	case CategoryProblemSolving:
		return l.ProblemSolvingPoints
	case CategoryWritten:
		return l.WrittenPoints
	case CategoryMCQ:
		return l.McqPoints
	}
	return 0
}

// Consistent reports whether the total equals the sum of the sub-totals.
func (l PointLedger) Consistent() bool {
	return l.TotalPoints == l.ProblemSolvingPoints+l.WrittenPoints+l.McqPoints
}

type Exam struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	Description     *string     `json:"description"`
	OpensAt         time.Time   `json:"opens_at"`
	ClosesAt        time.Time   `json:"closes_at"`
	DurationMinutes int         `json:"duration_minutes"`
	IsPublished     bool        `json:"is_published"`
	Ledger          PointLedger `json:"ledger"`
	CreatedByID     *string     `json:"created_by_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Status derives the exam's schedule state at now. Nothing about it is stored.
func (e *Exam) Status(now time.Time) ExamStatus {
	if now.Before(e.OpensAt) {
		return ExamScheduled
	}
	if now.After(e.ClosesAt) {
		return ExamEnded
	}
	return ExamRunning
}

// EnsureEditable fails once the exam is published.
func (e *Exam) EnsureEditable() error {
	if e.IsPublished {
		return common.ErrExamPublished
	}
	return nil
}

// Publish closes the exam for edits. activePoints is the point sum of the exam's
// Active questions; the stored total must match it exactly.
func (e *Exam) Publish(activePoints Points) error {
	if e.IsPublished {
		return common.ErrAlreadyPublished
	}
	if e.Ledger.TotalPoints != activePoints {
		return common.Errorf("ledger total %s, active questions %s: %w", e.Ledger.TotalPoints, activePoints, common.ErrPointsMismatch)
	}
	e.IsPublished = true
	return nil
}

// ExamMetadataPatch carries a partial metadata update. Unset fields stay as they are.
type ExamMetadataPatch struct {
	Title           common.Optional[string]    `json:"title"`
	Description     common.Optional[string]    `json:"description"`
	OpensAt         common.Optional[time.Time] `json:"opens_at"`
	ClosesAt        common.Optional[time.Time] `json:"closes_at"`
	DurationMinutes common.Optional[int]       `json:"duration_minutes"`
}

// IsEmpty reports whether the patch touches no field.
func (p ExamMetadataPatch) IsEmpty() bool {
	return !p.Title.Set && !p.Description.Set && !p.OpensAt.Set && !p.ClosesAt.Set && !p.DurationMinutes.Set
}

// ApplyMetadata applies p to the exam. It rejects published exams and
// explicit nulls on non-nullable fields; field-range checks live in the service.
func (e *Exam) ApplyMetadata(p ExamMetadataPatch) error {
	if err := e.EnsureEditable(); err != nil {
		return err
	}

	var nullErrs []common.FieldError
	rejectNull := func(set, null bool, field string) {
		if set && null {
			nullErrs = append(nullErrs, common.FieldError{Field: field, Rule: "required", Message: field + " cannot be null"})
		}
	}
	rejectNull(p.Title.Set, p.Title.Null, "title")
	rejectNull(p.OpensAt.Set, p.OpensAt.Null, "opens_at")
	rejectNull(p.ClosesAt.Set, p.ClosesAt.Null, "closes_at")
	rejectNull(p.DurationMinutes.Set, p.DurationMinutes.Null, "duration_minutes")
	if len(nullErrs) > 0 {
		return &common.ValidationError{Fields: nullErrs}
	}

	if p.Title.HasValue() {
		e.Title = p.Title.Value
	}
	if p.Description.Set {
		if p.Description.Null {
			e.Description = nil
		} else {
			d := p.Description.Value
			e.Description = &d
		}
	}
	if p.OpensAt.HasValue() {
		e.OpensAt = p.OpensAt.Value.UTC()
	}
	if p.ClosesAt.HasValue() {
		e.ClosesAt = p.ClosesAt.Value.UTC()
	}
	if p.DurationMinutes.HasValue() {
		e.DurationMinutes = p.DurationMinutes.Value
	}
	return nil
}

// ExamView is an exam plus its derived status, as returned to clients.
type ExamView struct {
	Exam
	Status ExamStatus `json:"status"`
}

// LedgerReport compares the stored ledger with a projection recomputed from the catalog.
type LedgerReport struct {
	ExamID       string      `json:"exam_id"`
	Stored       PointLedger `json:"stored"`
	Computed     PointLedger `json:"computed"`
	ActivePoints Points      `json:"active_points"`
	Drifted      bool        `json:"drifted"`
	Publishable  bool        `json:"publishable"`
	Repaired     bool        `json:"repaired"`
}
