// Package memory is an in-process implementation of the repository interfaces.
// It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"

	"examforge/internal/domain/model"
	"examforge/internal/domain/repository"
)

// state holds every table. Values are copied on the way in and out, so a
// shallow copy of the maps is a complete snapshot.
type state struct {
	users       map[string]model.User
	exams       map[string]model.Exam
	questions   map[string]model.Question // children live in testCases / mcqOptions
	testCases   map[string]model.TestCase
	mcqOptions  map[string]model.McqOption // keyed by question id
	submissions map[string]model.Submission
}

func newState() state {
	return state{
		users:       map[string]model.User{},
		exams:       map[string]model.Exam{},
		questions:   map[string]model.Question{},
		testCases:   map[string]model.TestCase{},
		mcqOptions:  map[string]model.McqOption{},
		submissions: map[string]model.Submission{},
	}
}

func (s state) snapshot() state {
	return state{
		users:       cloneMap(s.users),
		exams:       cloneMap(s.exams),
		questions:   cloneMap(s.questions),
		testCases:   cloneMap(s.testCases),
		mcqOptions:  cloneMap(s.mcqOptions),
		submissions: cloneMap(s.submissions),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is a mutex-guarded set of tables. Transactions hold the mutex for their
// whole duration and restore a snapshot when fn fails.
type Store struct {
	mu   sync.Mutex
	data state
}

func NewStore() *Store {
	return &Store{data: newState()}
}

type inTxKey struct{}

// lock acquires the store mutex unless ctx already runs inside WithinTx.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(inTxKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) == s {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.snapshot()
	if err := fn(context.WithValue(ctx, inTxKey{}, s)); err != nil {
		s.data = saved
		return err
	}
	return nil
}

func (s *Store) Transactor() repository.Transactor { return s }

func (s *Store) Users() repository.UserRepository { return &userRepo{s: s} }

func (s *Store) Exams() repository.ExamRepository { return &examRepo{s: s} }

func (s *Store) Questions() repository.QuestionRepository { return &questionRepo{s: s} }

func (s *Store) Submissions() repository.SubmissionRepository { return &submissionRepo{s: s} }
