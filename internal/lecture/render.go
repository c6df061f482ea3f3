package lecture

import (
	"strings"
)

// Item is one element of a merged view: either a transcript segment or an
// annotation marker, never both.
type Item struct {
	// Segment is a run of raw transcript text. Empty for a marker item.
	Segment string
	// Note is the annotation for a marker item, nil for a segment.
	Note *Annotation
}

// IsNote reports whether the item is an annotation marker.
func (i Item) IsNote() bool {
	return i.Note != nil
}

// MergedView is the read model shown to the user: transcript segments
// interleaved with note markers at their anchored positions.
//
// The segments partition the transcript: concatenating them in order yields
// the raw transcript exactly, regardless of how many notes were dropped.
type MergedView struct {
	Items []Item
	// Dropped counts annotations whose anchor point fell behind transcript
	// text that was already emitted for an earlier annotation. See Render.
	Dropped int
}

// Render builds the merged view of a transcript and its annotations.
//
// Anchor offsets are clamped to the current transcript length at render
// time, not mutated in the ledger: a note anchored beyond a shrunken
// snapshot reattaches at the transcript end, and grows back into place if
// a later snapshot restores the text.
//
// Annotations are walked in insertion order (the ledger's order, which is
// the sequence order). An annotation whose clamped offset lies behind the
// furthest point already emitted is dropped and counted rather than
// reordered; emitting it would either duplicate transcript text or break
// the user's reading order. The surviving markers therefore appear in
// (clamped offset, sequence) order, and two notes anchored at the same
// offset render in the order the user wrote them.
func Render(transcript string, notes []Annotation) MergedView {
	var view MergedView
	lastEmitted := 0
	for _, note := range notes {
		off := note.AnchorOffset
		if off < 0 {
			off = 0
		}
		if off > len(transcript) {
			off = len(transcript)
		}
		if off < lastEmitted {
			view.Dropped++
			continue
		}
		if off > lastEmitted {
			view.Items = append(view.Items, Item{Segment: transcript[lastEmitted:off]})
			lastEmitted = off
		}
		n := note
		view.Items = append(view.Items, Item{Note: &n})
	}
	if lastEmitted < len(transcript) {
		view.Items = append(view.Items, Item{Segment: transcript[lastEmitted:]})
	}
	return view
}

// PlainText flattens the view for export: note markers are removed, the
// transcript segments are joined, and line breaks are normalized. The
// result is what gets persisted, so annotations never leak into the saved
// lecture text.
func (v MergedView) PlainText() string {
	var b strings.Builder
	for _, item := range v.Items {
		if item.IsNote() {
			continue
		}
		b.WriteString(item.Segment)
	}
	return normalizeLineBreaks(b.String())
}

// normalizeLineBreaks converts CRLF and lone CR to LF, collapses runs of
// three or more newlines down to a blank line, and trims surrounding
// whitespace.
func normalizeLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
