package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/shared-calendar/internal/adapter"
	"github.com/example/shared-calendar/internal/persistence/memory"
	"github.com/example/shared-calendar/internal/persistence/sqlite"
)

// Harness exposes one store both as raw repositories and through the
// application adapters.
type Harness struct {
	Backend      adapter.Backend
	Repositories adapter.Repositories
	Clock        *Clock

	watches func() int
	cleanup func()
}

// Watches reports the live subscriptions held by the store.
func (h *Harness) Watches() int {
	return h.watches()
}

// Close releases resources associated with the harness.
func (h *Harness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// HarnessFactory opens a fresh store for one test.
type HarnessFactory func(tb testing.TB) *Harness

// NewMemoryHarness returns a harness over an in-memory store stamped by a
// Clock at ReferenceTime.
func NewMemoryHarness(tb testing.TB) *Harness {
	tb.Helper()

	clock := NewClock(time.Time{})
	store := memory.New(memory.WithClock(clock.NowFunc()))
	backend := adapter.MemoryBackend(store)
	harness := &Harness{
		Backend:      backend,
		Repositories: adapter.Wrap(backend),
		Clock:        clock,
		watches:      store.Watches,
		cleanup:      func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}

// NewSQLiteHarness returns a harness over a migrated SQLite database in a
// temporary directory.
func NewSQLiteHarness(tb testing.TB) *Harness {
	tb.Helper()

	clock := NewClock(time.Time{})
	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "calendar.db")

	store, err := sqlite.Open(ctx, sqlite.Config{DSN: path}, sqlite.WithClock(clock.NowFunc()))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	backend := adapter.SQLiteBackend(store)
	harness := &Harness{
		Backend:      backend,
		Repositories: adapter.Wrap(backend),
		Clock:        clock,
		watches:      store.Watches,
		cleanup:      func() { _ = store.Close() },
	}
	tb.Cleanup(harness.Close)
	return harness
}
