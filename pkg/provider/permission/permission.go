// Package permission defines the capability contract for microphone
// permission prompts.
//
// Asking for permission is delegated to an external collaborator (in the
// reference deployment, the browser's permission prompt relayed over the
// session bridge). The answer is memoized per process: the collaborator is
// consulted at most once, and every later query reuses the recorded answer.
package permission

import (
	"context"
	"sync"
)

// Source is the external permission collaborator. Request blocks until the
// user answers the prompt (or ctx is cancelled) and reports whether the
// microphone capability was granted.
//
// Implementations must be safe for concurrent use.
type Source interface {
	Request(ctx context.Context) (granted bool, err error)
}

// Memoized wraps a [Source] and caches its first successful answer for the
// lifetime of the process. Errors are not cached: a failed prompt (e.g.,
// bridge disconnect mid-prompt) may be retried.
//
// All methods are safe for concurrent use.
type Memoized struct {
	source Source

	mu       sync.Mutex
	answered bool
	granted  bool
}

// NewMemoized returns a [Memoized] wrapper around source.
func NewMemoized(source Source) *Memoized {
	return &Memoized{source: source}
}

// Request returns the cached answer when one exists, otherwise consults the
// underlying source and records its answer.
func (m *Memoized) Request(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.answered {
		return m.granted, nil
	}

	granted, err := m.source.Request(ctx)
	if err != nil {
		return false, err
	}
	m.answered = true
	m.granted = granted
	return granted, nil
}

// Reset forgets the cached answer. Intended for tests.
func (m *Memoized) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = false
	m.granted = false
}

// Ensure Memoized implements Source at compile time.
var _ Source = (*Memoized)(nil)
