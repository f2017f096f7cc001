// Package sqlite stores the episode journal in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/hearken/internal/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
    id         TEXT    PRIMARY KEY,
    mode       TEXT    NOT NULL,
    outcome    TEXT    NOT NULL,
    text       TEXT    NOT NULL DEFAULT '',
    wake_rule  TEXT    NOT NULL DEFAULT '',
    elapsed_ns INTEGER NOT NULL DEFAULT 0,
    dropped    INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_started_at ON episodes (started_at);
`

// Store is a SQLite-backed journal.Store.
type Store struct {
	db *sql.DB
}

var _ journal.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite journal: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: open: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite journal: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, mode, outcome, text, wake_rule, elapsed_ns, dropped, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Mode, e.Outcome, e.Text, e.WakeRule,
		e.Elapsed.Nanoseconds(), e.Dropped, e.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite journal: record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, mode, outcome, text, wake_rule, elapsed_ns, dropped, started_at FROM episodes`

func (s *Store) Get(ctx context.Context, id string) (journal.Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.Entry{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.Entry{}, fmt.Errorf("sqlite journal: get: %w", err)
	}
	return e, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC LIMIT ?`, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("sqlite journal: recent: %w", err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite journal: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (journal.Entry, error) {
	var (
		e         journal.Entry
		elapsedNS int64
		startedNS int64
	)
	if err := r.Scan(&e.ID, &e.Mode, &e.Outcome, &e.Text, &e.WakeRule, &elapsedNS, &e.Dropped, &startedNS); err != nil {
		return journal.Entry{}, err
	}
	e.Elapsed = time.Duration(elapsedNS)
	e.StartedAt = time.Unix(0, startedNS).UTC()
	return e, nil
}
