package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/shared-calendar/internal/config"
	"github.com/example/shared-calendar/internal/jobs"
)

// isolateEnv hides every SHAREDCAL_* variable of the surrounding process.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, "SHAREDCAL_") {
			continue
		}
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAppServesRequests(t *testing.T) {
	cfg := config.Defaults()
	cfg.Driver = config.DriverMemory

	server, err := newApp(context.Background(), cfg, discardLogger(), appOptions{insecureCookies: true})
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	t.Cleanup(func() { server.close() })

	rec := httptest.NewRecorder()
	server.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from /healthz, got %d", rec.Code)
	}

	body := `{"email":"ada@example.com","password":"secret-pass","displayName":"Ada"}`
	rec = httptest.NewRecorder()
	server.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 from /register, got %d: %s", rec.Code, rec.Body.String())
	}
	cookie := rec.Result().Cookies()
	if len(cookie) != 1 || cookie[0].Secure {
		t.Fatalf("expected one insecure session cookie, got %+v", cookie)
	}

	scheduled := server.runner.Jobs()
	if _, ok := scheduled[jobs.SessionCleanup]; !ok {
		t.Fatalf("expected %s to be scheduled, got %v", jobs.SessionCleanup, scheduled)
	}
	if _, ok := scheduled[jobs.ReminderSweep]; ok {
		t.Fatalf("expected %s to be disabled by default", jobs.ReminderSweep)
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	cfg := config.Defaults()
	cfg.Driver = config.DriverMemory
	cfg.ReminderSweepSchedule = "every now and then"

	if _, err := newApp(context.Background(), cfg, discardLogger(), appOptions{}); err == nil {
		t.Fatal("expected an invalid schedule to fail")
	}
}

func TestOpenRepositoriesRejectsUnknownDriver(t *testing.T) {
	cfg := config.Defaults()
	cfg.Driver = "postgres"

	if _, _, err := openRepositories(context.Background(), cfg, nil, discardLogger()); err == nil {
		t.Fatal("expected an unknown driver to fail")
	}
}

func TestMigrateCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SHAREDCAL_STORAGE_DSN", "file:"+filepath.Join(t.TempDir(), "calendar.db"))
	t.Setenv("SHAREDCAL_LOG_LEVEL", "error")

	out, err := runCommand(t, "", "migrate", "--status")
	if err != nil {
		t.Fatalf("migrate --status returned error: %v", err)
	}
	if !strings.HasPrefix(out, "schema version 0, 0 applied, 1 pending") {
		t.Fatalf("unexpected status before migrating: %q", out)
	}

	out, err = runCommand(t, "", "migrate")
	if err != nil {
		t.Fatalf("migrate returned error: %v", err)
	}
	if !strings.HasPrefix(out, "schema version 1, 1 applied, 0 pending") {
		t.Fatalf("unexpected status after migrating: %q", out)
	}
}

func TestMigrateCommandRequiresSQLite(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SHAREDCAL_STORAGE_DRIVER", "memory")

	if _, err := runCommand(t, "", "migrate"); err == nil || !strings.Contains(err.Error(), "requires the sqlite driver") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestUserAddCommand(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SHAREDCAL_STORAGE_DSN", "file:"+filepath.Join(t.TempDir(), "calendar.db"))
	t.Setenv("SHAREDCAL_LOG_LEVEL", "error")

	out, err := runCommand(t, "long-enough-pass\n", "user", "add", "--email", "Ops@Example.com", "--name", "Ops")
	if err != nil {
		t.Fatalf("user add returned error: %v", err)
	}
	if !strings.Contains(out, "<ops@example.com>") {
		t.Fatalf("expected the normalized email in %q", out)
	}

	if _, err := runCommand(t, "long-enough-pass\n", "user", "add", "--email", "ops@example.com"); err == nil {
		t.Fatal("expected a duplicate email to fail")
	}

	_, err = runCommand(t, "abc\n", "user", "add", "--email", "short@example.com")
	if err == nil || !strings.Contains(err.Error(), "invalid account") {
		t.Fatalf("expected a validation error, got %v", err)
	}
}

func TestReadPassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "line", input: "secret-pass\nignored\n", want: "secret-pass"},
		{name: "windows line ending", input: "secret-pass\r\n", want: "secret-pass"},
		{name: "no trailing newline", input: "secret-pass", want: "secret-pass"},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := readPassword(strings.NewReader(tt.input), io.Discard)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
