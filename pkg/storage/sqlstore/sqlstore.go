// Package sqlstore implements storage.Driver over a database/sql handle. The
// sqlite and postgres drivers share it; queries are built with ent's dialect
// builder so placeholders match the backend.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/deltas/pkg/chunk"
	"github.com/papercomputeco/deltas/pkg/storage"
)

const table = "transcripts"

var columns = []string{
	"id", "provider", "model", "prompt",
	"started_at", "completed_at", "skipped", "chunks",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS transcripts (
		id           TEXT PRIMARY KEY,
		provider     TEXT NOT NULL,
		model        TEXT NOT NULL,
		prompt       TEXT NOT NULL DEFAULT '',
		started_at   BIGINT NOT NULL,
		completed_at BIGINT NOT NULL,
		skipped      INTEGER NOT NULL DEFAULT 0,
		chunks       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transcripts_started_at ON transcripts (started_at)`,
	`CREATE INDEX IF NOT EXISTS transcripts_provider ON transcripts (provider)`,
}

// Store is the shared SQL implementation of storage.Driver.
type Store struct {
	DB      *sql.DB
	Dialect string
}

// New creates the schema on db and returns a Store. dialectName is one of
// ent's dialect names.
func New(ctx context.Context, db *sql.DB, dialectName string) (*Store, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &Store{DB: db, Dialect: dialectName}, nil
}

// Put upserts t.
func (s *Store) Put(ctx context.Context, t *storage.Transcript) error {
	if err := t.Validate(); err != nil {
		return err
	}

	chunks, err := json.Marshal(t.Chunks)
	if err != nil {
		return fmt.Errorf("encoding chunks: %w", err)
	}

	query, args := entsql.Dialect(s.Dialect).
		Insert(table).
		Columns(columns...).
		Values(
			t.ID, t.Provider, t.Model, t.Prompt,
			toNanos(t.StartedAt), toNanos(t.CompletedAt), t.Skipped, string(chunks),
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storing transcript %s: %w", t.ID, err)
	}
	return nil
}

// Get retrieves a transcript by ID.
func (s *Store) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	query, args := entsql.Dialect(s.Dialect).
		Select(columns...).
		From(entsql.Table(table)).
		Where(entsql.EQ("id", id)).
		Query()

	t, err := scan(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript %s: %w", id, err)
	}
	return t, nil
}

// List returns transcripts newest first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]*storage.Transcript, error) {
	sel := entsql.Dialect(s.Dialect).
		Select(columns...).
		From(entsql.Table(table)).
		OrderBy(entsql.Desc("started_at"), entsql.Desc("id"))
	if opts.Provider != "" {
		sel = sel.Where(entsql.EQ("provider", opts.Provider))
	}
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var result []*storage.Transcript
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("listing transcripts: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	return result, nil
}

// Delete removes a transcript by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	query, args := entsql.Dialect(s.Dialect).
		Delete(table).
		Where(entsql.EQ("id", id)).
		Query()

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting transcript %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting transcript %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFoundError{ID: id}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*storage.Transcript, error) {
	var (
		t                  storage.Transcript
		started, completed int64
		chunks             string
	)
	err := row.Scan(
		&t.ID, &t.Provider, &t.Model, &t.Prompt,
		&started, &completed, &t.Skipped, &chunks,
	)
	if err != nil {
		return nil, err
	}

	t.StartedAt = fromNanos(started)
	t.CompletedAt = fromNanos(completed)
	t.Chunks = []chunk.Envelope{}
	if err := json.Unmarshal([]byte(chunks), &t.Chunks); err != nil {
		return nil, fmt.Errorf("decoding chunks of %s: %w", t.ID, err)
	}
	return &t, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
