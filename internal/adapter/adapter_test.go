package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/persistence"
	"github.com/example/shared-calendar/internal/persistence/memory"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newRepositories(t *testing.T) Repositories {
	t.Helper()
	store := memory.New(memory.WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(func() { _ = store.Close() })
	return Wrap(MemoryBackend(store))
}

func TestMapError(t *testing.T) {
	t.Parallel()

	other := errors.New("boom")
	cases := map[string]struct {
		in   error
		want error
	}{
		"nil":         {in: nil, want: nil},
		"not found":   {in: fmt.Errorf("get: %w", persistence.ErrNotFound), want: application.ErrNotFound},
		"duplicate":   {in: persistence.ErrDuplicate, want: application.ErrAlreadyExists},
		"foreign key": {in: persistence.ErrForeignKeyViolation, want: application.ErrNotFound},
		"passthrough": {in: other, want: other},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := mapError(tc.in)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCalendarRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repos := newRepositories(t)
	ctx := context.Background()

	created, err := repos.Calendars.CreateCalendar(ctx, application.Calendar{
		ID:           "cal-1",
		Name:         "Team",
		Color:        "#4285F4",
		OwnerID:      "user-a",
		OwnerEmail:   "alice@example.com",
		IsDefault:    true,
		Members:      []string{"user-a", "bob@example.com"},
		SharedEmails: []string{"bob@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}
	if !created.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected server timestamp %v, got %v", fixedNow, created.CreatedAt)
	}

	shared, err := repos.Calendars.ListCalendarsBySharedEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("ListCalendarsBySharedEmail returned error: %v", err)
	}
	if len(shared) != 1 || shared[0].ID != "cal-1" || !shared[0].IsDefault {
		t.Fatalf("unexpected shared calendars: %+v", shared)
	}

	if _, err := repos.Calendars.CreateCalendar(ctx, application.Calendar{ID: "cal-1", OwnerID: "user-a"}); !errors.Is(err, application.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := repos.Calendars.GetCalendar(ctx, "missing"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCalendarWatchConvertsSnapshots(t *testing.T) {
	t.Parallel()

	repos := newRepositories(t)
	ctx := context.Background()

	snapshots := make(chan application.CalendarSnapshot, 4)
	cancel := repos.Calendars.WatchCalendarsByMember(ctx, "user-a", func(s application.CalendarSnapshot) {
		snapshots <- s
	})
	defer cancel()

	first := receiveCalendarSnapshot(t, snapshots)
	if len(first.Calendars) != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", first.Calendars)
	}

	if _, err := repos.Calendars.CreateCalendar(ctx, application.Calendar{ID: "cal-1", Name: "Home", OwnerID: "user-a", Members: []string{"user-a"}}); err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}
	next := receiveCalendarSnapshot(t, snapshots)
	if len(next.Calendars) != 1 || next.Calendars[0].Name != "Home" {
		t.Fatalf("unexpected snapshot after write: %+v", next.Calendars)
	}
}

func receiveCalendarSnapshot(t *testing.T, ch <-chan application.CalendarSnapshot) application.CalendarSnapshot {
	t.Helper()
	select {
	case s := <-ch:
		if s.Err != nil {
			t.Fatalf("snapshot carried error: %v", s.Err)
		}
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for calendar snapshot")
	}
	return application.CalendarSnapshot{}
}

func TestEventWatchRejectsOversizedFilter(t *testing.T) {
	t.Parallel()

	repos := newRepositories(t)
	ids := make([]string, persistence.MaxInFilterValues+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("cal-%d", i)
	}
	_, err := repos.Events.WatchEventsByCalendars(context.Background(), ids, func([]application.Event, error) {})
	if !errors.Is(err, persistence.ErrInFilterTooLarge) {
		t.Fatalf("expected ErrInFilterTooLarge, got %v", err)
	}
}

func TestEventRepositoryForeignKey(t *testing.T) {
	t.Parallel()

	repos := newRepositories(t)
	_, err := repos.Events.CreateEvent(context.Background(), application.Event{ID: "evt-1", CalendarID: "missing"})
	if !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserAndSessionRepositories(t *testing.T) {
	t.Parallel()

	repos := newRepositories(t)
	ctx := context.Background()

	user := application.UserCredentials{
		Identity:     application.Identity{UID: "user-a", Email: "Alice@Example.com", DisplayName: "Alice"},
		PasswordHash: "hash",
	}
	if err := repos.Users.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	byEmail, err := repos.Users.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail returned error: %v", err)
	}
	if byEmail.Identity.UID != "user-a" || byEmail.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", byEmail)
	}
	if err := repos.Users.CreateUser(ctx, application.UserCredentials{Identity: application.Identity{UID: "user-b", Email: "alice@example.com"}}); !errors.Is(err, application.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	session, err := repos.Sessions.CreateSession(ctx, application.Session{ID: "s-1", UserID: "user-a", Token: "tok", ExpiresAt: fixedNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if session.RevokedAt != nil {
		t.Fatalf("expected fresh session, got revoked at %v", session.RevokedAt)
	}
	if err := repos.Sessions.RevokeSession(ctx, "tok", fixedNow); err != nil {
		t.Fatalf("RevokeSession returned error: %v", err)
	}
	revoked, err := repos.Sessions.GetSession(ctx, "tok")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(fixedNow) {
		t.Fatalf("expected revocation at %v, got %v", fixedNow, revoked.RevokedAt)
	}
	removed, err := repos.Sessions.DeleteExpiredSessions(ctx, fixedNow)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 purged session, got %d (%v)", removed, err)
	}
	if err := repos.Sessions.RevokeSession(ctx, "tok", fixedNow); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after purge, got %v", err)
	}
}
