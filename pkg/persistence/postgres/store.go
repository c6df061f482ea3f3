// Package postgres provides a PostgreSQL-backed implementation of
// persistence.Store for deployments that keep lectures locally instead of
// forwarding them to the remote study-assistant API.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Save(ctx, lecture)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mzajc/lektor/pkg/persistence"
)

const ddlLectures = `
CREATE TABLE IF NOT EXISTS lectures (
    id          BIGSERIAL    PRIMARY KEY,
    title       TEXT         NOT NULL,
    subject     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lectures_subject
    ON lectures (subject);

CREATE INDEX IF NOT EXISTS idx_lectures_fts
    ON lectures USING GIN (to_tsvector('simple', text));
`

// Ensure Store implements the persistence.Store interface.
var _ persistence.Store = (*Store)(nil)

// Store implements persistence.Store on a PostgreSQL lectures table.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and ensures the lectures schema
// exists. The caller must call Close when done.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlLectures); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate lectures schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Save implements persistence.Store.
func (s *Store) Save(ctx context.Context, lecture persistence.Lecture) error {
	const q = `
		INSERT INTO lectures (title, subject, text)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, q, lecture.Title, lecture.Subject, lecture.Text)
	if err != nil {
		return fmt.Errorf("postgres: save lecture: %w", err)
	}
	return nil
}

// ListSubjects implements persistence.Store. Subjects are returned in
// alphabetical order.
func (s *Store) ListSubjects(ctx context.Context) ([]string, error) {
	const q = `
		SELECT DISTINCT subject
		FROM   lectures
		WHERE  subject <> ''
		ORDER  BY subject`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list subjects: %w", err)
	}
	subjects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan subjects: %w", err)
	}
	return subjects, nil
}

// List implements persistence.Store. An empty subject returns all lectures,
// newest first.
func (s *Store) List(ctx context.Context, subject string) ([]persistence.Info, error) {
	q := `
		SELECT title, subject
		FROM   lectures`
	args := []any{}
	if subject != "" {
		q += `
		WHERE  subject = $1`
		args = append(args, subject)
	}
	q += `
		ORDER  BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lectures: %w", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (persistence.Info, error) {
		var info persistence.Info
		err := row.Scan(&info.Title, &info.Subject)
		return info, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan lectures: %w", err)
	}
	if infos == nil {
		infos = []persistence.Info{}
	}
	return infos, nil
}

// Ping reports whether the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
