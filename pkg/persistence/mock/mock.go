// Package mock provides a test double for the persistence.Store interface.
package mock

import (
	"context"
	"sync"

	"github.com/mzajc/lektor/pkg/persistence"
)

// Store is a mock implementation of persistence.Store.
type Store struct {
	mu sync.Mutex

	// SaveErr, if non-nil, is returned by every Save call.
	SaveErr error

	// Subjects is returned by ListSubjects when ListSubjectsErr is nil.
	Subjects []string

	// ListSubjectsErr, if non-nil, is returned by ListSubjects.
	ListSubjectsErr error

	// Infos is returned by List when ListErr is nil.
	Infos []persistence.Info

	// ListErr, if non-nil, is returned by List.
	ListErr error

	// SaveCalls records every lecture passed to Save, including failed calls.
	SaveCalls []persistence.Lecture
}

// Save records the call and returns SaveErr.
func (s *Store) Save(_ context.Context, lecture persistence.Lecture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls = append(s.SaveCalls, lecture)
	return s.SaveErr
}

// ListSubjects returns Subjects, ListSubjectsErr.
func (s *Store) ListSubjects(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListSubjectsErr != nil {
		return nil, s.ListSubjectsErr
	}
	out := make([]string, len(s.Subjects))
	copy(out, s.Subjects)
	return out, nil
}

// List returns Infos, ListErr.
func (s *Store) List(_ context.Context, _ string) ([]persistence.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]persistence.Info, len(s.Infos))
	copy(out, s.Infos)
	return out, nil
}

// SaveCallCount returns the number of Save calls. Thread-safe.
func (s *Store) SaveCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SaveCalls)
}

// Ensure Store implements persistence.Store at compile time.
var _ persistence.Store = (*Store)(nil)
