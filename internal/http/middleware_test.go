package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/logging"
)

type fakeSessionValidator struct {
	identity application.Identity
	err      error
	tokens   []string
}

func (f *fakeSessionValidator) ValidateSession(ctx context.Context, token string) (application.Identity, error) {
	f.tokens = append(f.tokens, token)
	return f.identity, f.err
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		cookie     *http.Cookie
		err        error
		wantStatus int
		wantToken  string
	}{
		{name: "missing credentials", wantStatus: http.StatusUnauthorized},
		{name: "non bearer header", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", err: application.ErrUnauthorized, wantStatus: http.StatusUnauthorized, wantToken: "nope"},
		{name: "expired session", cookie: &http.Cookie{Name: sessionCookieName, Value: "old"}, err: application.ErrSessionExpired, wantStatus: http.StatusUnauthorized, wantToken: "old"},
		{name: "store failure", header: "Bearer token", err: errors.New("disk full"), wantStatus: http.StatusInternalServerError, wantToken: "token"},
		{name: "valid bearer", header: "Bearer good", wantStatus: http.StatusOK, wantToken: "good"},
		{name: "valid cookie", cookie: &http.Cookie{Name: sessionCookieName, Value: "cookie"}, wantStatus: http.StatusOK, wantToken: "cookie"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			validator := &fakeSessionValidator{identity: application.Identity{UID: "user-1"}, err: tc.err}
			var seen application.Identity
			handler := RequireSession(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = IdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if tc.wantToken == "" && len(validator.tokens) != 0 {
				t.Fatalf("validator should not be called, got %v", validator.tokens)
			}
			if tc.wantToken != "" && (len(validator.tokens) != 1 || validator.tokens[0] != tc.wantToken) {
				t.Fatalf("expected token %q, got %v", tc.wantToken, validator.tokens)
			}
			if tc.wantStatus == http.StatusOK && seen.UID != "user-1" {
				t.Fatalf("expected identity in context, got %+v", seen)
			}
		})
	}
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var scoped bool
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = logging.FromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/calendars", nil))

	if !scoped {
		t.Fatal("expected a request scoped logger")
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":1`) || !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"path":"/calendars"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
