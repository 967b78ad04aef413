package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	testNow   = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	alice     = Identity{UID: "alice", Email: "alice@example.com", DisplayName: "Alice"}
	bob       = Identity{UID: "bob", Email: "bob@example.com"}
	aliceCal  = Calendar{ID: "cal-a", Name: "Work", OwnerID: "alice", OwnerEmail: "alice@example.com", Members: []string{"alice"}, SharedEmails: []string{}, CreatedAt: testNow}
	aliceHome = Calendar{ID: "cal-h", Name: "Home", OwnerID: "alice", IsDefault: true, Members: []string{"alice"}, CreatedAt: testNow.Add(time.Minute)}
)

func TestCalendarService_CreateCalendar(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty names before writing", func(t *testing.T) {
		t.Parallel()
		repo := newCalendarRepositoryStub()
		svc := NewCalendarService(repo, nil, nil, sequence("cal-1"), fixedClock(testNow))

		_, err := svc.CreateCalendar(context.Background(), CreateCalendarParams{Identity: alice, Input: CalendarInput{Name: "  "}})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["name"] != "Please enter a calendar name" {
			t.Fatalf("expected name validation error, got %v", err)
		}
		if repo.createCalls != 0 {
			t.Fatalf("expected no write, got %d", repo.createCalls)
		}
	})

	t.Run("stores the owner as member and applies defaults", func(t *testing.T) {
		t.Parallel()
		repo := newCalendarRepositoryStub()
		svc := NewCalendarService(repo, nil, nil, sequence("cal-1"), fixedClock(testNow))

		created, err := svc.CreateCalendar(context.Background(), CreateCalendarParams{Identity: alice, Input: CalendarInput{Name: " Team "}})
		if err != nil {
			t.Fatalf("CreateCalendar returned error: %v", err)
		}
		if created.ID != "cal-1" || created.Name != "Team" || created.Color != DefaultCalendarColor {
			t.Fatalf("unexpected calendar %+v", created)
		}
		if len(created.Members) != 1 || created.Members[0] != "alice" || created.OwnerName != "Alice" {
			t.Fatalf("expected alice as sole member and owner name, got %+v", created)
		}
	})

	t.Run("a new default calendar clears the previous default", func(t *testing.T) {
		t.Parallel()
		repo := newCalendarRepositoryStub(aliceHome)
		svc := NewCalendarService(repo, nil, nil, sequence("cal-2"), fixedClock(testNow))

		if _, err := svc.CreateCalendar(context.Background(), CreateCalendarParams{Identity: alice, Input: CalendarInput{Name: "New", IsDefault: true}}); err != nil {
			t.Fatalf("CreateCalendar returned error: %v", err)
		}
		home, _ := repo.GetCalendar(context.Background(), aliceHome.ID)
		if home.IsDefault {
			t.Fatalf("expected previous default to be cleared")
		}
	})
}

func TestCalendarService_DeleteCalendar(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		calendars []Calendar
		target    string
		actor     Identity
		want      error
	}{
		{name: "default calendar", calendars: []Calendar{aliceHome, aliceCal}, target: aliceHome.ID, actor: alice, want: ErrDefaultCalendar},
		{name: "last calendar", calendars: []Calendar{aliceCal}, target: aliceCal.ID, actor: alice, want: ErrLastCalendar},
		{name: "not the owner", calendars: []Calendar{sharedWith(aliceCal, bob.Email)}, target: aliceCal.ID, actor: bob, want: ErrUnauthorized},
		{name: "no access", calendars: []Calendar{aliceCal}, target: aliceCal.ID, actor: bob, want: ErrNotFound},
		{name: "missing", calendars: nil, target: "nope", actor: alice, want: ErrNotFound},
		{name: "allowed", calendars: []Calendar{aliceHome, aliceCal}, target: aliceCal.ID, actor: alice},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := newCalendarRepositoryStub(tc.calendars...)
			svc := NewCalendarService(repo, nil, nil, nil, fixedClock(testNow))

			err := svc.DeleteCalendar(context.Background(), tc.actor, tc.target)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected delete to succeed, got %v", err)
				}
				if len(repo.deleteCalls) != 1 {
					t.Fatalf("expected one delete, got %v", repo.deleteCalls)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(repo.deleteCalls) != 0 {
				t.Fatalf("expected nothing deleted, got %v", repo.deleteCalls)
			}
		})
	}
}

func TestCalendarService_ShareRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newCalendarRepositoryStub(aliceCal)
	notifier := &notifierStub{}
	inviter := &inviterStub{}
	svc := NewCalendarService(repo, notifier, inviter, nil, fixedClock(testNow))
	ctx := context.Background()

	shared, err := svc.ShareCalendar(ctx, ShareCalendarParams{Identity: alice, CalendarID: aliceCal.ID, Emails: []string{" Bob@Example.com "}})
	if err != nil {
		t.Fatalf("ShareCalendar returned error: %v", err)
	}
	if !containsString(shared.SharedEmails, "bob@example.com") || !containsString(shared.Members, "bob@example.com") {
		t.Fatalf("expected email in shared emails and members, got %+v", shared)
	}
	if len(notifier.shared) != 1 || len(inviter.invitations) != 1 {
		t.Fatalf("expected one notification and invitation, got %d/%d", len(notifier.shared), len(inviter.invitations))
	}
	if inviter.invitations[0].SharerName != "Alice" || inviter.invitations[0].CalendarName != "Work" {
		t.Fatalf("unexpected invitation %+v", inviter.invitations[0])
	}
	if !CanAccess(shared, bob) {
		t.Fatalf("expected bob to access the shared calendar")
	}

	unshared, err := svc.UnshareCalendar(ctx, UnshareCalendarParams{Identity: alice, CalendarID: aliceCal.ID, Email: "BOB@example.com"})
	if err != nil {
		t.Fatalf("UnshareCalendar returned error: %v", err)
	}
	if len(unshared.SharedEmails) != len(aliceCal.SharedEmails) || len(unshared.Members) != len(aliceCal.Members) {
		t.Fatalf("expected lists restored, got %+v", unshared)
	}
	if CanAccess(unshared, bob) {
		t.Fatalf("expected bob to lose access")
	}
}

func TestCalendarService_ShareValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		emails []string
		want   string
	}{
		{name: "empty", emails: nil, want: "Please enter an email address"},
		{name: "invalid", emails: []string{"not-an-email"}, want: "Please enter a valid email address"},
		{name: "already shared", emails: []string{"CAROL@example.com"}, want: "Calendar already shared with this email"},
		{name: "duplicate in request", emails: []string{"dan@example.com", "dan@example.com"}, want: "Calendar already shared with this email"},
		{name: "own email", emails: []string{"alice@example.com"}, want: "You already own this calendar"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := newCalendarRepositoryStub(sharedWith(aliceCal, "carol@example.com"))
			notifier := &notifierStub{}
			svc := NewCalendarService(repo, notifier, nil, nil, fixedClock(testNow))

			_, err := svc.ShareCalendar(context.Background(), ShareCalendarParams{Identity: alice, CalendarID: aliceCal.ID, Emails: tc.emails})
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors["email"] != tc.want {
				t.Fatalf("expected %q, got %v (%+v)", tc.want, err, vErr)
			}
			if repo.updateCalls != 0 || len(notifier.shared) != 0 {
				t.Fatalf("expected no write and no notification")
			}
		})
	}
}

func TestCalendarService_UnshareRejectsUnknownEmail(t *testing.T) {
	t.Parallel()

	repo := newCalendarRepositoryStub(aliceCal)
	svc := NewCalendarService(repo, nil, nil, nil, fixedClock(testNow))

	_, err := svc.UnshareCalendar(context.Background(), UnshareCalendarParams{Identity: alice, CalendarID: aliceCal.ID, Email: "bob@example.com"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["email"] != "Calendar is not shared with this email" {
		t.Fatalf("expected unshare validation error, got %v", err)
	}
}

func TestCalendarService_ShareFailuresInNotifierAreNotFatal(t *testing.T) {
	t.Parallel()

	repo := newCalendarRepositoryStub(aliceCal)
	svc := NewCalendarService(repo, &notifierStub{err: errors.New("down")}, &inviterStub{err: errors.New("smtp down")}, nil, fixedClock(testNow))

	if _, err := svc.ShareCalendar(context.Background(), ShareCalendarParams{Identity: alice, CalendarID: aliceCal.ID, Emails: []string{"bob@example.com"}}); err != nil {
		t.Fatalf("expected share to succeed despite notifier failures, got %v", err)
	}
}

func sharedWith(c Calendar, emails ...string) Calendar {
	c = cloneCalendar(c)
	c.SharedEmails = append(c.SharedEmails, emails...)
	c.Members = append(c.Members, emails...)
	return c
}
