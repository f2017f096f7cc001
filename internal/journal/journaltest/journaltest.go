// Package journaltest holds a behavioural test suite shared by all
// journal.Store backends.
package journaltest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/hearken/internal/journal"
)

// Run exercises a fresh, empty store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) journal.Store) {
	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := journal.Entry{
			ID:        "0b7f5a5e-6d2c-4c43-9a47-1a2b3c4d5e6f",
			Mode:      "wake",
			Outcome:   "detected",
			Text:      "hey computer",
			WakeRule:  "substring",
			Elapsed:   1500 * time.Millisecond,
			Dropped:   2,
			StartedAt: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		}
		if err := s.Record(ctx, want); err != nil {
			t.Fatalf("Record: %v", err)
		}
		got, err := s.Get(ctx, want.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !got.StartedAt.Equal(want.StartedAt) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
		}
		got.StartedAt = want.StartedAt
		if got != want {
			t.Errorf("Get = %+v, want %+v", got, want)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, journal.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("RecentOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		for i := range 4 {
			e := journal.Entry{
				ID:        fmt.Sprintf("ep-%d", i),
				Mode:      "command",
				Outcome:   "finished",
				StartedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := s.Record(ctx, e); err != nil {
				t.Fatalf("Record %d: %v", i, err)
			}
		}
		got, err := s.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(got) != 2 || got[0].ID != "ep-3" || got[1].ID != "ep-2" {
			t.Errorf("Recent(2) = %v", ids(got))
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func ids(es []journal.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
