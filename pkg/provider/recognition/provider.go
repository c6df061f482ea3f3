// Package recognition defines the Provider interface for continuous
// speech-recognition engines.
//
// A recognition engine (e.g., a browser SpeechRecognition instance bridged
// over a WebSocket, or a cloud streaming API) is modelled as a capability
// that emits incremental transcript snapshots and lifecycle signals. Each
// snapshot carries the full transcript of the listening session so far,
// not a delta — this keeps annotation offset accounting in one place and
// makes transparent restarts lossless: an engine that resets its buffer
// per run must be adapted by an implementation that re-prefixes the text
// committed before the restart (the WebSocket bridge client does this).
//
// Engine termination is a tagged signal, never a generic error channel:
// [SignalEnded] is a benign provider-side segment boundary that callers may
// respond to by restarting the engine, while [SignalFailed] carries an error
// kind and is fatal for the current session.
//
// Implementations must be safe for concurrent use.
package recognition

import "context"

// SignalKind distinguishes the two ways a recognition engine terminates.
type SignalKind int

const (
	// SignalEnded is a benign end: the engine reached a provider-side
	// timeout or segment boundary. The session it belonged to may be
	// continued transparently by starting a fresh engine run.
	SignalEnded SignalKind = iota

	// SignalFailed indicates an engine error. The accompanying ErrorKind
	// names the failure. Sessions must not be restarted automatically
	// after a failure.
	SignalFailed
)

// Signal is a lifecycle notification from a running recognition engine.
type Signal struct {
	// Kind tags the signal as a benign end or a failure.
	Kind SignalKind

	// ErrorKind is the engine-reported failure kind (e.g., "no-speech",
	// "network", "not-allowed"). Empty for SignalEnded.
	ErrorKind string
}

// Snapshot is one incremental recognition result. Text is the full
// transcript recognised so far in the listening session, including interim
// (not yet finalised) words. It is cumulative across engine runs: the
// first snapshot of a run started to continue a benign end carries the
// text recognised by the earlier runs too, so consumers may replace their
// buffer wholesale without losing anything to a restart.
type Snapshot struct {
	Text string
}

// Config describes the recognition parameters for a new engine run.
type Config struct {
	// Locale is the BCP-47 language tag for recognition (e.g., "sl-SI",
	// "en-US"). An empty string lets the engine pick its default.
	Locale string

	// InterimResults requests low-latency interim snapshots in addition to
	// finalised ones. Engines that cannot deliver interim results ignore
	// this and emit finals only.
	InterimResults bool
}

// Session represents one live engine run. A session ends when the engine
// emits a terminating [Signal] or when Stop is called.
//
// The Snapshots and Signals channels are closed when the run is over.
// All methods must be safe for concurrent use.
type Session interface {
	// Snapshots returns the stream of incremental transcript snapshots.
	Snapshots() <-chan Snapshot

	// Signals returns the stream of lifecycle signals. At most one
	// terminating signal is delivered per session.
	Signals() <-chan Signal

	// Stop ends the engine run. A user-initiated Stop suppresses the
	// engine's own end signal; callers must not treat the run's
	// termination after Stop as a restartable end. Calling Stop more than
	// once is safe and returns nil.
	Stop() error
}

// Provider is the abstraction over any continuous recognition engine.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Start begins a new engine run with the given configuration. The
	// returned Session is live immediately.
	//
	// Returns an error if the engine cannot be started (e.g., the bridge
	// connection is gone or ctx is already cancelled).
	Start(ctx context.Context, cfg Config) (Session, error)
}
