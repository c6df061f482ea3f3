package lecture

// Transcript is the single growing raw-text buffer of a session.
//
// Recognition engines deliver interim results as full-transcript snapshots,
// not deltas, so every update replaces the buffer wholesale. Reconstructing
// deltas here would double-account annotation offsets; the replace semantics
// are deliberate.
//
// Transcript is not goroutine-safe; the owning Controller serialises access.
type Transcript struct {
	text string
}

// ApplySnapshot replaces the buffer with the engine's latest full snapshot.
func (t *Transcript) ApplySnapshot(text string) {
	t.text = text
}

// String returns the current raw transcript text.
func (t *Transcript) String() string {
	return t.text
}

// Len returns the current transcript length in bytes.
func (t *Transcript) Len() int {
	return len(t.text)
}

// Reset clears the buffer. Called when a session is persisted and destroyed.
func (t *Transcript) Reset() {
	t.text = ""
}
