package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/shared-calendar/internal/application"
)

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "single field validation uses the field message",
			err:         &application.ValidationError{FieldErrors: map[string]string{"end": "End time must be after start time"}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "End time must be after start time",
		},
		{
			name:        "several fields use the generic message",
			err:         &application.ValidationError{FieldErrors: map[string]string{"title": "a", "end": "b"}},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "Please check the highlighted fields",
		},
		{name: "unauthorized", err: application.ErrUnauthorized, wantStatus: http.StatusForbidden, wantMessage: "You do not have permission to do that"},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", application.ErrNotFound), wantStatus: http.StatusNotFound, wantMessage: "The requested resource was not found"},
		{name: "default calendar", err: application.ErrDefaultCalendar, wantStatus: http.StatusConflict, wantMessage: "Cannot delete default calendar"},
		{name: "last calendar", err: application.ErrLastCalendar, wantStatus: http.StatusConflict, wantMessage: "Cannot delete your only calendar"},
		{name: "credentials", err: application.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantMessage: "Invalid email or password"},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantMessage: "Something went wrong. Please try again"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			newResponder(nil).handleServiceError(context.Background(), rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != tc.wantMessage {
				t.Fatalf("expected message %q, got %q", tc.wantMessage, resp.Message)
			}
		})
	}
}

func TestExportFilename(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Team Sync":   "Team-Sync.ics",
		"  ":          "calendar.ics",
		"Über/Ärger!": "berrger.ics",
	}
	for name, want := range cases {
		if got := exportFilename(name); got != want {
			t.Fatalf("exportFilename(%q) = %q, want %q", name, got, want)
		}
	}
}
