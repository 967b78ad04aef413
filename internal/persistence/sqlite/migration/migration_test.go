package migration

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "migrations.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		file        string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid", file: "001_initial_schema.sql", wantVersion: 1},
		{name: "large version", file: "120_add-index.sql", wantVersion: 120},
		{name: "missing description", file: "002.sql", wantErr: true},
		{name: "zero version", file: "000_nothing.sql", wantErr: true},
		{name: "spaces", file: "003_bad name.sql", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			version, _, err := ParseFileName(tc.file)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMigrationFile) {
					t.Fatalf("expected ErrInvalidMigrationFile, got %v", err)
				}
				return
			}
			if err != nil || version != tc.wantVersion {
				t.Fatalf("expected version %d, got %d (%v)", tc.wantVersion, version, err)
			}
		})
	}
}

func TestScannerRejectsDuplicates(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id TEXT);")},
		"m/001_second.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
	}
	_, err := NewScanner(fsys, "m").Scan()
	if !errors.Is(err, ErrDuplicateVersion) {
		t.Fatalf("expected ErrDuplicateVersion, got %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := SplitStatements("-- header\nCREATE TABLE a (id TEXT);\n\n-- only a comment;\nCREATE INDEX idx ON a (id);\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[1] != "CREATE INDEX idx ON a (id)" {
		t.Fatalf("unexpected statement %q", got[1])
	}
}

func TestManagerRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_create_notes.sql": {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT NOT NULL);")},
		"m/002_add_index.sql":    {Data: []byte("CREATE INDEX idx_notes_body ON notes (body);")},
	}
	manager := NewManager(NewScanner(fsys, "m"), NewExecutor(db), quietLogger())

	applied, err := manager.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(applied) != 2 || applied[0] != 1 || applied[1] != 2 {
		t.Fatalf("expected versions [1 2], got %v", applied)
	}

	again, err := manager.Run(ctx)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected second run to be a no-op, got %v (%v)", again, err)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentVersion != 2 || len(status.Pending) != 0 || len(status.Applied) != 2 {
		t.Fatalf("unexpected status %+v", status)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO notes (id, body) VALUES ('n1', 'hello')"); err != nil {
		t.Fatalf("expected migrated table to accept rows: %v", err)
	}
}

func TestManagerRollsBackFailedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE broken (id TEXT);\nINSERT INTO missing_table VALUES (1);")},
	}
	manager := NewManager(NewScanner(fsys, "m"), NewExecutor(db), quietLogger())

	applied, err := manager.Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if len(applied) != 1 || applied[0] != 1 {
		t.Fatalf("expected only version 1 applied, got %v", applied)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'broken'").Scan(&count); err != nil {
		t.Fatalf("inspect schema: %v", err)
	}
	if count != 0 {
		t.Fatal("expected failed migration to be rolled back")
	}
}

func TestManagerDetectsEditedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	original := fstest.MapFS{"m/001_notes.sql": {Data: []byte("CREATE TABLE notes (id TEXT);")}}
	if _, err := NewManager(NewScanner(original, "m"), NewExecutor(db), quietLogger()).Run(ctx); err != nil {
		t.Fatalf("initial run failed: %v", err)
	}

	edited := fstest.MapFS{"m/001_notes.sql": {Data: []byte("CREATE TABLE notes (id TEXT, extra TEXT);")}}
	_, err := NewManager(NewScanner(edited, "m"), NewExecutor(db), quietLogger()).Run(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}
