package lecture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mzajc/lektor/pkg/provider/synthesis"
)

// Speaker serialises speech synthesis: at most one utterance plays at a
// time, and requesting a new one cancels whatever is still playing. The
// Controller consults Speaking before starting the recognition engine so
// the microphone never picks up the session's own voice output.
type Speaker struct {
	provider synthesis.Provider

	mu        sync.Mutex
	cancel    context.CancelFunc
	utterance int // increments per Speak, identifies the current utterance
}

// NewSpeaker wraps a synthesis provider in an exclusive gate.
func NewSpeaker(provider synthesis.Provider) *Speaker {
	return &Speaker{provider: provider}
}

// Speak synthesizes text, cancelling any utterance still in flight. It
// blocks until playback completes, is cancelled, or fails. A cancellation
// triggered by a newer Speak or by Cancel is not reported as an error.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.utterance++
	id := s.utterance
	s.mu.Unlock()

	err := s.provider.Speak(sctx, text)

	s.mu.Lock()
	if s.utterance == id {
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Cancel stops the current utterance, if any.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Speaking reports whether an utterance is currently in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
