package model

import (
	"time"
)

type QuestionCategory string
type QuestionDifficulty string
type QuestionState string

const (
	CategoryProblemSolving QuestionCategory = "ProblemSolving"
	CategoryWritten        QuestionCategory = "Written"
	CategoryMCQ            QuestionCategory = "MCQ"

	DifficultyEasy   QuestionDifficulty = "Easy"
	DifficultyMedium QuestionDifficulty = "Medium"
	DifficultyHard   QuestionDifficulty = "Hard"

	// Archived questions stay in the exam ledger but are excluded from the publish check.
	QuestionActive   QuestionState = "Active"
	QuestionArchived QuestionState = "Archived"
	QuestionDeleted  QuestionState = "Deleted"
)

// Categories lists every question category in ledger order.
var Categories = []QuestionCategory{CategoryProblemSolving, CategoryWritten, CategoryMCQ}

func (c QuestionCategory) Valid() bool {
	switch c {
	case CategoryProblemSolving, CategoryWritten, CategoryMCQ:
		return true
	}
	return false
}

type Question struct {
	ID         string             `json:"id"`
	ExamID     string             `json:"exam_id"`
	Category   QuestionCategory   `json:"category"`
	Statement  string             `json:"statement"`
	Points     Points             `json:"points"`
	Difficulty QuestionDifficulty `json:"difficulty"`
	State      QuestionState      `json:"state"`
	LongAnswer bool               `json:"long_answer"` // Written only
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	TestCases  []TestCase         `json:"test_cases,omitempty"` // ProblemSolving only
	McqOption  *McqOption         `json:"mcq_option,omitempty"` // MCQ only
}

// CountsInLedger reports whether the question's points belong in the exam ledger.
func (q *Question) CountsInLedger() bool {
	return q.State != QuestionDeleted
}

func (q *Question) IsActive() bool {
	return q.State == QuestionActive
}

type TestCase struct {
	ID             string    `json:"id"`
	QuestionID     string    `json:"question_id"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	CreatedAt      time.Time `json:"created_at"`
}

type McqOption struct {
	ID             string   `json:"id"`
	QuestionID     string   `json:"question_id"`
	Options        []string `json:"options"`
	MultiSelect    bool     `json:"multi_select"`
	CorrectAnswers string   `json:"correct_answers"` // comma-separated 0-based option indices
}

const MaxMcqOptions = 4
