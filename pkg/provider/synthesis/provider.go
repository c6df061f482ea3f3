// Package synthesis defines the Provider interface for speech-synthesis
// backends.
//
// Synthesis is consumed as a completion-signalling capability: Speak blocks
// until the utterance has been fully synthesised and delivered (or ctx is
// cancelled). Cancellation of an in-flight utterance is expressed through
// the context, which keeps the "a new utterance replaces the old one" rule
// in one place — see the exclusive speaker in internal/lecture.
//
// Implementations must be safe for concurrent use.
package synthesis

import "context"

// Provider is the abstraction over any speech-synthesis backend.
type Provider interface {
	// Speak pronounces text and blocks until the utterance completes.
	// Cancelling ctx aborts the utterance; Speak then returns ctx.Err().
	//
	// Returns a non-nil error if synthesis or delivery fails.
	Speak(ctx context.Context, text string) error
}
