package application

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/example/shared-calendar/internal/logging"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var base, request bytes.Buffer
	baseLogger := slog.New(slog.NewJSONHandler(&base, nil))
	requestLogger := slog.New(slog.NewJSONHandler(&request, nil)).With("request_id", 7)
	ctx := logging.ContextWithLogger(context.Background(), requestLogger)

	serviceLogger(ctx, baseLogger, "CalendarService", "ShareCalendar", "calendar_id", "cal-1").
		ErrorContext(ctx, "failed to share calendar", errorKindAttr(ErrUnauthorized))

	if base.Len() != 0 {
		t.Fatalf("expected the base logger to stay silent, got %q", base.String())
	}
	entry := decodeLogLine(t, &request)
	want := map[string]any{
		"request_id":  float64(7),
		"service":     "CalendarService",
		"operation":   "ShareCalendar",
		"calendar_id": "cal-1",
		"error_kind":  "unauthorized",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("expected %s=%v, got %v", key, value, entry[key])
		}
	}
}

func TestServiceLoggerFallsBackToBase(t *testing.T) {
	t.Parallel()

	var base bytes.Buffer
	logger := serviceLogger(context.Background(), slog.New(slog.NewJSONHandler(&base, nil)), "EventFeed", "")
	logger.Info("subscribed")

	entry := decodeLogLine(t, &base)
	if entry["service"] != "EventFeed" {
		t.Fatalf("expected service attribute, got %v", entry)
	}
	if _, ok := entry["operation"]; ok {
		t.Fatalf("expected no operation attribute for an empty operation, got %v", entry)
	}
	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatal("expected slog.Default when no logger is given")
	}
}
