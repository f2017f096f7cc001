// Package postgres stores the episode journal in PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/hearken/internal/journal"
)

const ddlEpisodes = `
CREATE TABLE IF NOT EXISTS episodes (
    id         TEXT         PRIMARY KEY,
    mode       TEXT         NOT NULL,
    outcome    TEXT         NOT NULL,
    text       TEXT         NOT NULL DEFAULT '',
    wake_rule  TEXT         NOT NULL DEFAULT '',
    elapsed_ns BIGINT       NOT NULL DEFAULT 0,
    dropped    INTEGER      NOT NULL DEFAULT 0,
    started_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_episodes_started_at
    ON episodes (started_at DESC);
`

// Store is a PostgreSQL-backed journal.Store. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlEpisodes); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Record(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO episodes (id, mode, outcome, text, wake_rule, elapsed_ns, dropped, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		e.ID, e.Mode, e.Outcome, e.Text, e.WakeRule,
		e.Elapsed.Nanoseconds(), e.Dropped, e.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres journal: record: %w", err)
	}
	return nil
}

const selectColumns = `
		SELECT id, mode, outcome, text, wake_rule, elapsed_ns, dropped, started_at
		FROM   episodes`

func (s *Store) Get(ctx context.Context, id string) (journal.Entry, error) {
	rows, err := s.pool.Query(ctx, selectColumns+"\n\t\tWHERE  id = $1", id)
	if err != nil {
		return journal.Entry{}, fmt.Errorf("postgres journal: get: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return journal.Entry{}, journal.ErrNotFound
	}
	if err != nil {
		return journal.Entry{}, fmt.Errorf("postgres journal: get: %w", err)
	}
	return e, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	rows, err := s.pool.Query(ctx, selectColumns+"\n\t\tORDER  BY started_at DESC\n\t\tLIMIT  $1", max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("postgres journal: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: scan rows: %w", err)
	}
	return entries, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool. It always returns nil.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanEntry(row pgx.CollectableRow) (journal.Entry, error) {
	var (
		e         journal.Entry
		elapsedNS int64
		dropped   int32
	)
	if err := row.Scan(&e.ID, &e.Mode, &e.Outcome, &e.Text, &e.WakeRule, &elapsedNS, &dropped, &e.StartedAt); err != nil {
		return journal.Entry{}, err
	}
	e.Elapsed = time.Duration(elapsedNS)
	e.Dropped = int(dropped)
	e.StartedAt = e.StartedAt.UTC()
	return e, nil
}
