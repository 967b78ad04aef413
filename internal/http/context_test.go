package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/example/shared-calendar/internal/application"
)

func TestHandlerLoggerTagsIdentityWithoutRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := ContextWithIdentity(context.Background(), application.Identity{UID: "alice"})

	handlerLogger(ctx, fallback, "EventHandler", "Grid", "view", "week").Info("grid served")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for key, want := range map[string]string{"handler": "EventHandler", "operation": "Grid", "view": "week", "user_id": "alice"} {
		if entry[key] != want {
			t.Errorf("expected %s=%q, got %v", key, want, entry[key])
		}
	}
}

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity on a bare context")
	}
	ctx := ContextWithIdentity(context.Background(), application.Identity{UID: "bob", Email: "bob@example.com"})
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.Email != "bob@example.com" {
		t.Fatalf("unexpected identity %+v (ok=%v)", identity, ok)
	}
}
