package lecture

import "strings"

// Annotation is one personal note anchored to a transcript position.
type Annotation struct {
	// Text is the trimmed note text. Never empty.
	Text string
	// AnchorOffset is the byte offset into the transcript captured at
	// insertion time. It may exceed the transcript length of a later,
	// shorter snapshot; rendering clamps it.
	AnchorOffset int
	// Sequence is the insertion counter, unique and monotonically
	// increasing within a session. It breaks ties between annotations
	// anchored at the same offset.
	Sequence int
}

// Ledger holds the annotations of a session in insertion order.
//
// Ledger is not goroutine-safe; the owning Controller serialises access.
type Ledger struct {
	notes   []Annotation
	nextSeq int
}

// Insert validates and records a note anchored at the given offset.
// The text is trimmed; a note that trims to empty is rejected with
// [ErrEmptyNote]. The anchor is clamped to [0, transcriptLen] so a stale
// frozen cursor can never anchor a note beyond the current transcript.
func (l *Ledger) Insert(text string, anchor, transcriptLen int) (Annotation, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Annotation{}, ErrEmptyNote
	}
	if anchor < 0 {
		anchor = 0
	}
	if anchor > transcriptLen {
		anchor = transcriptLen
	}
	note := Annotation{
		Text:         trimmed,
		AnchorOffset: anchor,
		Sequence:     l.nextSeq,
	}
	l.nextSeq++
	l.notes = append(l.notes, note)
	return note, nil
}

// Annotations returns a copy of all notes in insertion order.
func (l *Ledger) Annotations() []Annotation {
	out := make([]Annotation, len(l.notes))
	copy(out, l.notes)
	return out
}

// Len returns the number of recorded notes.
func (l *Ledger) Len() int {
	return len(l.notes)
}

// Reset discards all notes and restarts the sequence counter. Called when
// a session is persisted and destroyed.
func (l *Ledger) Reset() {
	l.notes = nil
	l.nextSeq = 0
}
