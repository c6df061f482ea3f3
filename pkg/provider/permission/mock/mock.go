// Package mock provides a test double for the permission.Source interface.
package mock

import (
	"context"
	"sync"

	"github.com/mzajc/lektor/pkg/provider/permission"
)

// Source is a mock implementation of permission.Source.
type Source struct {
	mu sync.Mutex

	// Granted is the answer returned by Request.
	Granted bool

	// RequestErr, if non-nil, is returned as the error from Request.
	RequestErr error

	// RequestCallCount is the number of times Request was called.
	RequestCallCount int
}

// Request records the call and returns Granted, RequestErr.
func (s *Source) Request(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RequestCallCount++
	if s.RequestErr != nil {
		return false, s.RequestErr
	}
	return s.Granted, nil
}

// RequestCalls returns the number of Request calls. Thread-safe.
func (s *Source) RequestCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RequestCallCount
}

// Ensure Source implements permission.Source at compile time.
var _ permission.Source = (*Source)(nil)
