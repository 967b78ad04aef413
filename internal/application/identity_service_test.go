package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func plainHasher(password string) (string, error) { return "hash:" + password, nil }

func plainVerifier(hash, password string) error {
	if hash != "hash:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

func newTestIdentityService(users *userRepositoryStub, sessions *sessionRepositoryStub, now func() time.Time) *IdentityService {
	return NewIdentityService(users, sessions, IdentityOptions{
		HashPassword:   plainHasher,
		VerifyPassword: plainVerifier,
		IDGenerator:    sequence("user-1", "session-1", "session-2", "session-3"),
		TokenGenerator: sequence("token-1", "token-2", "token-3"),
		Now:            now,
		SessionTTL:     time.Hour,
	})
}

func TestIdentityService_RegisterAndLogin(t *testing.T) {
	t.Parallel()

	users := newUserRepositoryStub()
	sessions := newSessionRepositoryStub()
	svc := newTestIdentityService(users, sessions, fixedClock(testNow))
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterParams{Email: " Alice@Example.com ", Password: "secret1", DisplayName: " Alice "})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if registered.Identity.UID != "user-1" || registered.Identity.Email != "alice@example.com" || registered.Identity.DisplayName != "Alice" {
		t.Fatalf("unexpected identity %+v", registered.Identity)
	}
	if registered.Session.Token != "token-1" || !registered.Session.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected session %+v", registered.Session)
	}

	if _, err := svc.Register(ctx, RegisterParams{Email: "alice@example.com", Password: "secret1"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	logged, err := svc.Login(ctx, LoginParams{Email: "ALICE@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if logged.Identity.UID != "user-1" {
		t.Fatalf("unexpected login identity %+v", logged.Identity)
	}

	for _, params := range []LoginParams{
		{Email: "alice@example.com", Password: "wrong"},
		{Email: "nobody@example.com", Password: "secret1"},
		{Email: "", Password: ""},
	} {
		if _, err := svc.Login(ctx, params); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%+v): expected ErrInvalidCredentials, got %v", params, err)
		}
	}
}

func TestIdentityService_RegisterValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		params RegisterParams
		field  string
	}{
		{name: "missing email", params: RegisterParams{Password: "secret1"}, field: "email"},
		{name: "invalid email", params: RegisterParams{Email: "nope", Password: "secret1"}, field: "email"},
		{name: "short password", params: RegisterParams{Email: "a@example.com", Password: "12345"}, field: "password"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			users := newUserRepositoryStub()
			svc := newTestIdentityService(users, newSessionRepositoryStub(), fixedClock(testNow))

			_, err := svc.Register(context.Background(), tc.params)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
				t.Fatalf("expected %s validation error, got %v", tc.field, err)
			}
			if len(users.users) != 0 {
				t.Fatalf("expected no user stored")
			}
		})
	}
}

func TestIdentityService_ValidateSession(t *testing.T) {
	t.Parallel()

	current := testNow
	users := newUserRepositoryStub()
	sessions := newSessionRepositoryStub()
	svc := newTestIdentityService(users, sessions, func() time.Time { return current })
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{Email: "alice@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	identity, err := svc.ValidateSession(ctx, " "+result.Session.Token+" ")
	if err != nil || identity.UID != result.Identity.UID {
		t.Fatalf("expected session to resolve, got %+v, %v", identity, err)
	}

	if _, err := svc.ValidateSession(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
	if _, err := svc.ValidateSession(ctx, "unknown"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown token, got %v", err)
	}

	current = testNow.Add(2 * time.Hour)
	if _, err := svc.ValidateSession(ctx, result.Session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	removed, err := svc.PurgeSessions(ctx, current)
	if err != nil || removed != 1 {
		t.Fatalf("expected one purged session, got %d, %v", removed, err)
	}
}

func TestIdentityService_Logout(t *testing.T) {
	t.Parallel()

	users := newUserRepositoryStub()
	sessions := newSessionRepositoryStub()
	svc := newTestIdentityService(users, sessions, fixedClock(testNow))
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{Email: "alice@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if err := svc.Logout(ctx, result.Session.Token); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, err := svc.ValidateSession(ctx, result.Session.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
	if err := svc.Logout(ctx, "unknown"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIdentityService_ProfileAndPassword(t *testing.T) {
	t.Parallel()

	users := newUserRepositoryStub()
	svc := newTestIdentityService(users, newSessionRepositoryStub(), fixedClock(testNow))
	ctx := context.Background()

	result, err := svc.Register(ctx, RegisterParams{Email: "alice@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	updated, err := svc.UpdateProfile(ctx, UpdateProfileParams{Identity: result.Identity, DisplayName: " Alice A. ", PhotoURL: "https://example.com/a.png"})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.DisplayName != "Alice A." || updated.Email != "alice@example.com" {
		t.Fatalf("unexpected profile %+v", updated)
	}

	err = svc.ChangePassword(ctx, ChangePasswordParams{Identity: result.Identity, CurrentPassword: "wrong", NewPassword: "secret2"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	err = svc.ChangePassword(ctx, ChangePasswordParams{Identity: result.Identity, CurrentPassword: "secret1", NewPassword: "123"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || !strings.Contains(vErr.FieldErrors["newPassword"], "at least") {
		t.Fatalf("expected password length error, got %v", err)
	}
	if err := svc.ChangePassword(ctx, ChangePasswordParams{Identity: result.Identity, CurrentPassword: "secret1", NewPassword: "secret2"}); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := svc.Login(ctx, LoginParams{Email: "alice@example.com", Password: "secret2"}); err != nil {
		t.Fatalf("expected login with new password, got %v", err)
	}

	found, err := svc.FindUserByEmail(ctx, "ALICE@example.com")
	if err != nil || found.UID != result.Identity.UID {
		t.Fatalf("expected FindUserByEmail to resolve, got %+v, %v", found, err)
	}
}
