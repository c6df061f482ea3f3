package lecture

// Cursor tracks the insertion offset for new notes.
//
// While the note-input field is unfocused the cursor follows the transcript
// end, so a freshly inserted note lands where the text currently stops.
// Focusing the field freezes the cursor at the transcript length observed at
// that moment: the user can keep the engine running, type a note, and have
// it anchor exactly where the transcript stood when they began, even though
// the text keeps growing underneath.
//
// Blurring the field does not move the cursor; the frozen offset persists
// until the next transcript update arrives with the field unfocused.
//
// Cursor is not goroutine-safe; the owning Controller serialises access.
type Cursor struct {
	offset int
	frozen bool
}

// OnTranscriptUpdated follows the new transcript length unless the note
// field holds focus.
func (c *Cursor) OnTranscriptUpdated(length int) {
	if c.frozen {
		return
	}
	c.offset = length
}

// OnNoteFieldFocused freezes the cursor at the current transcript length.
func (c *Cursor) OnNoteFieldFocused(length int) {
	c.frozen = true
	c.offset = length
}

// OnNoteFieldBlurred releases the freeze. The frozen offset is kept until
// the next transcript update overwrites it.
func (c *Cursor) OnNoteFieldBlurred() {
	c.frozen = false
}

// Offset returns the current insertion offset.
func (c *Cursor) Offset() int {
	return c.offset
}

// Frozen reports whether the cursor is pinned by note-field focus.
func (c *Cursor) Frozen() bool {
	return c.frozen
}

// ResetToEnd releases the freeze and moves the cursor to the given
// transcript length. Called after a successful note insertion so that
// subsequent notes default to append-at-end until the field is refocused.
func (c *Cursor) ResetToEnd(length int) {
	c.frozen = false
	c.offset = length
}

// Reset returns the cursor to its initial empty state.
func (c *Cursor) Reset() {
	c.frozen = false
	c.offset = 0
}
