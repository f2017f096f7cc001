package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/hearken/internal/journal"
	"github.com/MrWong99/hearken/internal/journal/journaltest"
	"github.com/MrWong99/hearken/internal/journal/postgres"
)

// testDSN skips the test unless HEARKEN_TEST_POSTGRES_DSN is set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("HEARKEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HEARKEN_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func dropSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS episodes"); err != nil {
		t.Fatalf("drop episodes: %v", err)
	}
}

func TestStore_Conformance(t *testing.T) {
	dsn := testDSN(t)
	journaltest.Run(t, func(t *testing.T) journal.Store {
		ctx := context.Background()
		dropSchema(t, ctx, dsn)
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpen_BadDSN(t *testing.T) {
	t.Parallel()
	if _, err := postgres.Open(context.Background(), "postgres://%zz"); err == nil {
		t.Error("expected parse error")
	}
}
