package lecture

import (
	"errors"
	"testing"
)

func TestLedger_Insert(t *testing.T) {
	t.Run("records trimmed text and clamped anchor", func(t *testing.T) {
		var l Ledger
		note, err := l.Insert("  check this later  ", 5, 11)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if note.Text != "check this later" {
			t.Errorf("expected trimmed text, got %q", note.Text)
		}
		if note.AnchorOffset != 5 {
			t.Errorf("expected anchor 5, got %d", note.AnchorOffset)
		}
		if note.Sequence != 0 {
			t.Errorf("expected sequence 0, got %d", note.Sequence)
		}
	})

	t.Run("rejects empty text", func(t *testing.T) {
		var l Ledger
		if _, err := l.Insert("", 0, 10); !errors.Is(err, ErrEmptyNote) {
			t.Errorf("expected ErrEmptyNote, got %v", err)
		}
		if _, err := l.Insert("   ", 0, 10); !errors.Is(err, ErrEmptyNote) {
			t.Errorf("expected ErrEmptyNote for whitespace, got %v", err)
		}
		if l.Len() != 0 {
			t.Errorf("expected ledger unchanged, got %d notes", l.Len())
		}
	})

	t.Run("clamps anchor into transcript bounds", func(t *testing.T) {
		var l Ledger
		over, err := l.Insert("past the end", 99, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if over.AnchorOffset != 10 {
			t.Errorf("expected anchor clamped to 10, got %d", over.AnchorOffset)
		}

		under, err := l.Insert("before the start", -3, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if under.AnchorOffset != 0 {
			t.Errorf("expected anchor clamped to 0, got %d", under.AnchorOffset)
		}
	})

	t.Run("sequence increases per insert", func(t *testing.T) {
		var l Ledger
		for i := 0; i < 3; i++ {
			note, err := l.Insert("note", 0, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if note.Sequence != i {
				t.Errorf("expected sequence %d, got %d", i, note.Sequence)
			}
		}
	})
}

func TestLedger_AnnotationsReturnsCopy(t *testing.T) {
	var l Ledger
	if _, err := l.Insert("original", 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notes := l.Annotations()
	notes[0].Text = "mutated"

	if got := l.Annotations()[0].Text; got != "original" {
		t.Errorf("expected ledger to be unaffected by caller mutation, got %q", got)
	}
}

func TestLedger_Reset(t *testing.T) {
	var l Ledger
	if _, err := l.Insert("one", 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Reset()

	if l.Len() != 0 {
		t.Errorf("expected empty ledger after reset, got %d notes", l.Len())
	}
	note, err := l.Insert("two", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note.Sequence != 0 {
		t.Errorf("expected sequence counter restarted, got %d", note.Sequence)
	}
}
