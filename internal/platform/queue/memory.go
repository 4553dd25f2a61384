package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"examforge/internal/domain/model"
)

var ErrQueueFull = errors.New("evaluation queue is full")

// ChannelQueue is an in-process queue used when Redis is not configured.
type ChannelQueue struct {
	jobs chan model.EvaluationJob
}

func NewChannelQueue(capacity int) *ChannelQueue {
	return &ChannelQueue{jobs: make(chan model.EvaluationJob, capacity)}
}

func (q *ChannelQueue) Push(ctx context.Context, job model.EvaluationJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *ChannelQueue) Requeue(ctx context.Context, job model.EvaluationJob) error {
	return q.Push(ctx, job)
}

func (q *ChannelQueue) Pop(ctx context.Context) (*model.EvaluationJob, error) {
	timer := time.NewTimer(popTimeout)
	defer timer.Stop()
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many jobs are waiting.
func (q *ChannelQueue) Len() int {
	return len(q.jobs)
}

// MemoryLocker is the in-process counterpart of RedisLocker.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]time.Time{}, clock: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	release := func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(exp) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}
