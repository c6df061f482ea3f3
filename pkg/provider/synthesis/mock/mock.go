// Package mock provides a test double for the synthesis.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/mzajc/lektor/pkg/provider/synthesis"
)

// Provider is a mock implementation of synthesis.Provider.
type Provider struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// Block, when non-nil, is closed by the test to let an in-flight Speak
	// return. While open, Speak waits on it (or on ctx cancellation).
	Block chan struct{}

	// SpeakCalls records the text of every Speak call in order.
	SpeakCalls []string
}

// Speak records the call, optionally blocks on Block, and returns SpeakErr.
func (p *Provider) Speak(ctx context.Context, text string) error {
	p.mu.Lock()
	p.SpeakCalls = append(p.SpeakCalls, text)
	block := p.Block
	err := p.SpeakErr
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SpeakCallCount returns the number of Speak calls. Thread-safe.
func (p *Provider) SpeakCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SpeakCalls)
}

// Ensure Provider implements synthesis.Provider at compile time.
var _ synthesis.Provider = (*Provider)(nil)
