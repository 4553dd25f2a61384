// Package ledger owns all arithmetic on an exam's point ledger. Services never
// touch the ledger fields directly; they go through Apply or Compute.
package ledger

import (
	"fmt"

	"examforge/internal/domain/model"
)

// Apply returns l with delta added to category c and to the total.
func Apply(l model.PointLedger, c model.QuestionCategory, delta model.Points) (model.PointLedger, error) {
	switch c {
	case model.CategoryProblemSolving:
		l.ProblemSolvingPoints += delta
	case model.CategoryWritten:
		l.WrittenPoints += delta
	case model.CategoryMCQ:
		l.McqPoints += delta
	default:
		return l, fmt.Errorf("unknown question category %q", c)
	}
	l.TotalPoints += delta
	if l.Category(c) < 0 || l.TotalPoints < 0 {
		return l, fmt.Errorf("ledger for category %s would become negative", c)
	}
	return l, nil
}

// Compute rebuilds the ledger from the catalog: every non-deleted question counts.
func Compute(questions []model.Question) model.PointLedger {
	var l model.PointLedger
	for i := range questions {
		q := &questions[i]
		if !q.CountsInLedger() {
			continue
		}
		// Categories are validated on insert, so the error path is unreachable here.
		l, _ = Apply(l, q.Category, q.Points)
	}
	return l
}

// ActivePoints sums the points of Active questions only. This is the figure
// the publish gate compares against.
func ActivePoints(questions []model.Question) model.Points {
	var sum model.Points
	for i := range questions {
		if questions[i].IsActive() {
			sum += questions[i].Points
		}
	}
	return sum
}

// Check compares the stored ledger of exam with the catalog.
func Check(exam *model.Exam, questions []model.Question) model.LedgerReport {
	computed := Compute(questions)
	active := ActivePoints(questions)
	return model.LedgerReport{
		ExamID:       exam.ID,
		Stored:       exam.Ledger,
		Computed:     computed,
		ActivePoints: active,
		Drifted:      computed != exam.Ledger,
		Publishable:  !exam.IsPublished && exam.Ledger.TotalPoints == active,
	}
}
