package events

import (
	"context"
	"log"
	"time"
)

// Notifier tells the outside world about exam lifecycle events. Callers treat
// it as fire-and-forget: a failed notification never fails the operation.
type Notifier interface {
	ExamPublished(ctx context.Context, examID, title string, opensAt, closesAt time.Time, totalPoints string) error
	CandidateInvited(ctx context.Context, examID, examTitle, email string, opensAt time.Time) error
	Close() error
}

type EventPublisher struct {
	rabbitMQ *RabbitMQClient
	enabled  bool
}

func NewEventPublisher(rabbitURI, exchange string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("WARN: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{enabled: false}, nil
	}

	client, err := NewRabbitMQClient(rabbitURI, exchange)
	if err != nil {
		return nil, err
	}
	return &EventPublisher{rabbitMQ: client, enabled: true}, nil
}

func (p *EventPublisher) ExamPublished(ctx context.Context, examID, title string, opensAt, closesAt time.Time, totalPoints string) error {
	if !p.enabled {
		log.Printf("INFO: Event publishing is disabled, skipping %s for exam %s", ExamPublished, examID)
		return nil
	}

	eventData, err := NewExamPublishedEvent(examID, title, opensAt, closesAt, totalPoints).ToJSON()
	if err != nil {
		return err
	}
	if err := p.rabbitMQ.PublishEvent(ctx, string(ExamPublished), eventData); err != nil {
		return err
	}
	log.Printf("INFO: Published %s event for exam %s", ExamPublished, examID)
	return nil
}

func (p *EventPublisher) CandidateInvited(ctx context.Context, examID, examTitle, email string, opensAt time.Time) error {
	if !p.enabled {
		log.Printf("INFO: Event publishing is disabled, skipping %s for exam %s", CandidateInvited, examID)
		return nil
	}

	eventData, err := NewCandidateInvitedEvent(examID, examTitle, email, opensAt).ToJSON()
	if err != nil {
		return err
	}
	return p.rabbitMQ.PublishEvent(ctx, string(CandidateInvited), eventData)
}

func (p *EventPublisher) Close() error {
	if p.rabbitMQ != nil {
		return p.rabbitMQ.Close()
	}
	return nil
}
