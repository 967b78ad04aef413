package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/shared-calendar/internal/persistence/sqlite"
	"github.com/example/shared-calendar/internal/testfixtures"
)

func TestStoreRepositoryContract(t *testing.T) {
	testfixtures.RunRepositoryContract(t, func(tb testing.TB) *testfixtures.Harness {
		return testfixtures.NewSQLiteHarness(tb)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.Config{DSN: filepath.Join(t.TempDir(), "calendar.db")})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate returned error: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate returned error: %v", err)
	}
	status, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus returned error: %v", err)
	}
	if len(status.Pending) != 0 || len(status.Applied) == 0 {
		t.Fatalf("unexpected migration status: %+v", status)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := sqlite.Open(context.Background(), sqlite.Config{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
