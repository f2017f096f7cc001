// Package journal records the outcome of every listening episode.
//
// The journal is plumbing around the listening core: it never influences
// segmentation or matching, and a failing store only produces a warning.
// Backends are an in-memory ring ([Memory]), SQLite (sub-package sqlite) and
// PostgreSQL (sub-package postgres).
package journal

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned by [Store.Get] for an unknown episode ID.
var ErrNotFound = errors.New("journal: episode not found")

// Entry is the record of one finished episode.
type Entry struct {
	// ID is the episode's UUID.
	ID string

	// Mode is "wake", "command" or "transcribe".
	Mode string

	// Outcome is the terminal segmenter state, or "detected" for a wake
	// episode that matched.
	Outcome string

	// Text is the committed transcript, or the candidate text that matched
	// the wake phrase.
	Text string

	// WakeRule names the matching rule for detected wake episodes.
	WakeRule string

	// Elapsed is the session clock at episode end.
	Elapsed time.Duration

	// Dropped counts chunks lost to a full queue.
	Dropped int

	// StartedAt is the wall-clock start of the episode.
	StartedAt time.Time
}

// Store persists episode entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Record appends e.
	Record(ctx context.Context, e Entry) error

	// Get returns the entry with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Entry, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// DefaultCapacity is the number of entries a [Memory] store keeps when no
// capacity is given.
const DefaultCapacity = 1000

// Memory is a bounded in-process [Store]. When full, the oldest entry is
// evicted.
type Memory struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory store holding at most capacity entries
// ([DefaultCapacity] when capacity <= 0).
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == m.capacity {
		m.entries = slices.Delete(m.entries, 0, 1)
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].ID == id {
			return m.entries[i], nil
		}
	}
	return Entry{}, ErrNotFound
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := min(max(limit, 0), len(m.entries))
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
