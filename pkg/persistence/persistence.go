// Package persistence defines the Store interface for durably saving
// finished lectures.
//
// A lecture leaves the live session as plain text plus a title and subject;
// where it goes from there is a deployment decision. Two backends ship with
// lektor: an HTTP client for the remote study-assistant API
// (pkg/persistence/httpapi) and a PostgreSQL store (pkg/persistence/postgres).
//
// Implementations must be safe for concurrent use.
package persistence

import "context"

// Lecture is the durable form of a finished transcription session.
type Lecture struct {
	// Text is the plain transcript text, with annotation markers removed
	// and line breaks normalised.
	Text string

	// Title is a short human-readable name for the lecture.
	Title string

	// Subject is the study subject the lecture belongs to (e.g., "Biology").
	Subject string
}

// Info is a stored lecture's listing entry.
type Info struct {
	Title   string
	Subject string
}

// Store is the abstraction over any lecture persistence backend.
type Store interface {
	// Save durably stores lecture. A non-nil error means nothing was
	// persisted and the caller may retry with the same content.
	Save(ctx context.Context, lecture Lecture) error

	// ListSubjects returns the distinct subjects of all stored lectures.
	// Used as context when proposing a subject for a new lecture.
	ListSubjects(ctx context.Context) ([]string, error)

	// List returns the stored lectures, optionally filtered by subject.
	// An empty subject returns everything.
	List(ctx context.Context, subject string) ([]Info, error)
}
