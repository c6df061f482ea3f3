package lecture

import "errors"

// Sentinel errors returned by the lecture session components. Each failure
// leaves the session in a well-defined prior state: validation errors leave
// it unchanged, ErrPermissionDenied and engine failures leave it Idle.
var (
	// ErrPermissionDenied is returned by StartListening when the microphone
	// capability was not granted. The user may retry; the permission answer
	// is memoized per process.
	ErrPermissionDenied = errors.New("lecture: microphone permission denied")

	// ErrBusy is returned by StartListening while a synthesized utterance
	// is playing. Listening is refused, never queued.
	ErrBusy = errors.New("lecture: synthesis in progress")

	// ErrAlreadyListening is returned by StartListening when the session is
	// already in the Listening state.
	ErrAlreadyListening = errors.New("lecture: session is already listening")

	// ErrEmptyNote is returned by InsertNote when the note text trims to
	// empty. The ledger is left unchanged.
	ErrEmptyNote = errors.New("lecture: note text is empty")

	// ErrEmptyTranscript is returned by StopAndSave when the exported plain
	// text is blank. No persistence call is made.
	ErrEmptyTranscript = errors.New("lecture: transcript is empty")

	// ErrSaveInFlight is returned by StopAndSave while a previous save is
	// still awaiting the persistence collaborator.
	ErrSaveInFlight = errors.New("lecture: a save is already in progress")
)

// EngineError reports a fatal recognition engine failure. It carries the
// engine's error kind (e.g., "no-speech", "network", "not-allowed") and
// always forces the session back to Idle; the engine is never restarted
// automatically after a failure.
type EngineError struct {
	Kind string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return "lecture: recognition engine failed: " + e.Kind
}
