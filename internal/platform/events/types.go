package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// ExamPublished is emitted once an exam passes the publish gate.
	ExamPublished EventType = "exam.published"
	// CandidateInvited is emitted per address when candidates are invited to an exam.
	CandidateInvited EventType = "exam.candidate_invited"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

type ExamPublishedEvent struct {
	BaseEvent
	ExamID      string    `json:"exam_id"`
	Title       string    `json:"title"`
	OpensAt     time.Time `json:"opens_at"`
	ClosesAt    time.Time `json:"closes_at"`
	TotalPoints string    `json:"total_points"`
}

func NewExamPublishedEvent(examID, title string, opensAt, closesAt time.Time, totalPoints string) *ExamPublishedEvent {
	return &ExamPublishedEvent{
		BaseEvent:   newBaseEvent(ExamPublished),
		ExamID:      examID,
		Title:       title,
		OpensAt:     opensAt,
		ClosesAt:    closesAt,
		TotalPoints: totalPoints,
	}
}

func (e *ExamPublishedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

type CandidateInvitedEvent struct {
	BaseEvent
	ExamID    string    `json:"exam_id"`
	ExamTitle string    `json:"exam_title"`
	Email     string    `json:"email"`
	OpensAt   time.Time `json:"opens_at"`
}

func NewCandidateInvitedEvent(examID, examTitle, email string, opensAt time.Time) *CandidateInvitedEvent {
	return &CandidateInvitedEvent{
		BaseEvent: newBaseEvent(CandidateInvited),
		ExamID:    examID,
		ExamTitle: examTitle,
		Email:     email,
		OpensAt:   opensAt,
	}
}

func (e *CandidateInvitedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
