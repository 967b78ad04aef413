package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/example/shared-calendar/internal/persistence"
)

// RunRepositoryContract checks the behavior every persistence store must
// share. open is called once per subtest.
func RunRepositoryContract(t *testing.T, open HarnessFactory) {
	t.Helper()

	t.Run("calendars", func(t *testing.T) { contractCalendars(t, open(t)) })
	t.Run("create if none owned", func(t *testing.T) { contractCreateIfNoneOwned(t, open(t)) })
	t.Run("events", func(t *testing.T) { contractEvents(t, open(t)) })
	t.Run("event watch", func(t *testing.T) { contractEventWatch(t, open(t)) })
	t.Run("calendar watch", func(t *testing.T) { contractCalendarWatch(t, open(t)) })
	t.Run("notifications", func(t *testing.T) { contractNotifications(t, open(t)) })
	t.Run("users and sessions", func(t *testing.T) { contractUsersAndSessions(t, open(t)) })
}

func contractCalendars(t *testing.T, h *Harness) {
	ctx := context.Background()
	repo := h.Backend.Calendars
	owner := NewUserFixture()
	home := NewCalendarFixture(owner, WithCalendarDefault())
	team := NewCalendarFixture(owner, WithCalendarSharedWith("Bob@Example.com"))

	created, err := repo.CreateCalendar(ctx, home.Persistence())
	if err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}
	if !created.CreatedAt.Equal(h.Clock.Now()) || !created.IsDefault {
		t.Fatalf("unexpected created calendar: %+v", created)
	}
	h.Clock.Advance(time.Minute)
	if _, err := repo.CreateCalendar(ctx, team.Persistence()); err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}
	if _, err := repo.CreateCalendar(ctx, home.Persistence()); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := repo.CreateCalendar(ctx, persistence.Calendar{ID: "", OwnerID: owner.ID}); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	member, err := repo.ListCalendarsByMember(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListCalendarsByMember returned error: %v", err)
	}
	if got := calendarIDs(member); fmt.Sprint(got) != fmt.Sprint([]string{home.ID, team.ID}) {
		t.Fatalf("expected creation order, got %v", got)
	}

	shared, err := repo.ListCalendarsBySharedEmail(ctx, "  BOB@example.com ")
	if err != nil {
		t.Fatalf("ListCalendarsBySharedEmail returned error: %v", err)
	}
	if len(shared) != 1 || shared[0].ID != team.ID {
		t.Fatalf("expected shared calendar %s, got %v", team.ID, calendarIDs(shared))
	}

	h.Clock.Advance(time.Minute)
	update := team.Persistence()
	update.Name = "Renamed"
	updated, err := repo.UpdateCalendar(ctx, update)
	if err != nil {
		t.Fatalf("UpdateCalendar returned error: %v", err)
	}
	if updated.Name != "Renamed" || !updated.UpdatedAt.Equal(h.Clock.Now()) || updated.CreatedAt.Equal(updated.UpdatedAt) {
		t.Fatalf("unexpected updated calendar: %+v", updated)
	}
	if _, err := repo.UpdateCalendar(ctx, persistence.Calendar{ID: "missing", OwnerID: owner.ID}); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	event := NewEventFixture(team, owner)
	if _, err := h.Backend.Events.CreateEvent(ctx, event.Persistence()); err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	if err := repo.DeleteCalendar(ctx, team.ID); err != nil {
		t.Fatalf("DeleteCalendar returned error: %v", err)
	}
	if _, err := h.Backend.Events.GetEvent(ctx, event.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected events to be removed with their calendar, got %v", err)
	}
	if err := repo.DeleteCalendar(ctx, team.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func contractCreateIfNoneOwned(t *testing.T, h *Harness) {
	ctx := context.Background()
	repo := h.Backend.Calendars
	owner := NewUserFixture()
	first := NewCalendarFixture(owner, WithCalendarDefault())
	second := NewCalendarFixture(owner, WithCalendarDefault())

	created, ok, err := repo.CreateCalendarIfNoneOwned(ctx, first.Persistence())
	if err != nil || !ok || created.ID != first.ID {
		t.Fatalf("expected first insert, got %+v ok=%v err=%v", created, ok, err)
	}
	existing, ok, err := repo.CreateCalendarIfNoneOwned(ctx, second.Persistence())
	if err != nil || ok || existing.ID != first.ID {
		t.Fatalf("expected existing calendar %s, got %+v ok=%v err=%v", first.ID, existing, ok, err)
	}
	all, err := repo.ListCalendarsByMember(ctx, owner.ID)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected exactly one calendar, got %d (%v)", len(all), err)
	}
}

func contractEvents(t *testing.T, h *Harness) {
	ctx := context.Background()
	owner := NewUserFixture()
	calA := NewCalendarFixture(owner)
	calB := NewCalendarFixture(owner)
	for _, c := range []CalendarFixture{calA, calB} {
		if _, err := h.Backend.Calendars.CreateCalendar(ctx, c.Persistence()); err != nil {
			t.Fatalf("CreateCalendar returned error: %v", err)
		}
	}
	repo := h.Backend.Events

	orphan := NewEventFixture(CalendarFixture{ID: "missing"}, owner)
	if _, err := repo.CreateEvent(ctx, orphan.Persistence()); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	start := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	inA := NewEventFixture(calA, owner, WithEventStartEnd(start, start.Add(time.Hour)), WithEventSharedWith("carol@example.com"))
	inB := NewEventFixture(calB, owner)
	for _, e := range []EventFixture{inA, inB} {
		if _, err := repo.CreateEvent(ctx, e.Persistence()); err != nil {
			t.Fatalf("CreateEvent returned error: %v", err)
		}
	}

	got, err := repo.GetEvent(ctx, inA.ID)
	if err != nil {
		t.Fatalf("GetEvent returned error: %v", err)
	}
	if !got.Start.Equal(start) || !got.End.Equal(start.Add(time.Hour)) || !got.IsShared || len(got.SharedWith) != 1 {
		t.Fatalf("unexpected stored event: %+v", got)
	}

	listed, err := repo.ListEventsByCalendars(ctx, []string{calA.ID})
	if err != nil || len(listed) != 1 || listed[0].ID != inA.ID {
		t.Fatalf("expected only %s, got %v (%v)", inA.ID, eventIDs(listed), err)
	}
	both, err := repo.ListEventsByCalendars(ctx, []string{calA.ID, calB.ID})
	if err != nil || len(both) != 2 {
		t.Fatalf("expected two events, got %v (%v)", eventIDs(both), err)
	}
	if _, err := repo.ListEventsByCalendars(ctx, oversizedIDs()); !errors.Is(err, persistence.ErrInFilterTooLarge) {
		t.Fatalf("expected ErrInFilterTooLarge, got %v", err)
	}

	update := inB.Persistence()
	update.CalendarID = calA.ID
	update.Title = "Moved"
	moved, err := repo.UpdateEvent(ctx, update)
	if err != nil || moved.CalendarID != calA.ID || moved.Title != "Moved" {
		t.Fatalf("unexpected moved event: %+v (%v)", moved, err)
	}
	update.CalendarID = "missing"
	if _, err := repo.UpdateEvent(ctx, update); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	if err := repo.DeleteEvent(ctx, inA.ID); err != nil {
		t.Fatalf("DeleteEvent returned error: %v", err)
	}
	if err := repo.DeleteEvent(ctx, inA.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func contractEventWatch(t *testing.T, h *Harness) {
	ctx := context.Background()
	owner := NewUserFixture()
	cal := NewCalendarFixture(owner)
	if _, err := h.Backend.Calendars.CreateCalendar(ctx, cal.Persistence()); err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}

	if _, err := h.Backend.Events.WatchEventsByCalendars(ctx, oversizedIDs(), func(persistence.EventSnapshot) {}); !errors.Is(err, persistence.ErrInFilterTooLarge) {
		t.Fatalf("expected ErrInFilterTooLarge, got %v", err)
	}

	snapshots := make(chan persistence.EventSnapshot, 8)
	cancel, err := h.Backend.Events.WatchEventsByCalendars(ctx, []string{cal.ID}, func(s persistence.EventSnapshot) {
		snapshots <- s
	})
	if err != nil {
		t.Fatalf("WatchEventsByCalendars returned error: %v", err)
	}
	if first := waitEventSnapshot(t, snapshots, 0); len(first.Events) != 0 {
		t.Fatalf("expected empty initial snapshot, got %v", eventIDs(first.Events))
	}

	event := NewEventFixture(cal, owner)
	if _, err := h.Backend.Events.CreateEvent(ctx, event.Persistence()); err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	waitEventSnapshot(t, snapshots, 1)

	if h.Watches() != 1 {
		t.Fatalf("expected one live watch, got %d", h.Watches())
	}
	cancel()
	cancel()
	if h.Watches() != 0 {
		t.Fatalf("expected cancel to release the watch, got %d", h.Watches())
	}
}

// waitEventSnapshot drains snapshots until one carries want events.
func waitEventSnapshot(t *testing.T, ch <-chan persistence.EventSnapshot, want int) persistence.EventSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Err != nil {
				t.Fatalf("snapshot carried error: %v", s.Err)
			}
			if len(s.Events) == want {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a snapshot with %d events", want)
		}
	}
}

func contractCalendarWatch(t *testing.T, h *Harness) {
	ctx := context.Background()
	owner := NewUserFixture()
	snapshots := make(chan persistence.CalendarSnapshot, 8)
	cancel := h.Backend.Calendars.WatchCalendarsByMember(ctx, owner.ID, func(s persistence.CalendarSnapshot) {
		snapshots <- s
	})
	defer cancel()

	if _, err := h.Backend.Calendars.CreateCalendar(ctx, NewCalendarFixture(owner).Persistence()); err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}
	// Unrelated calendars still trigger a refresh but never appear.
	if _, err := h.Backend.Calendars.CreateCalendar(ctx, NewCalendarFixture(NewUserFixture()).Persistence()); err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-snapshots:
			if s.Err != nil {
				t.Fatalf("snapshot carried error: %v", s.Err)
			}
			if len(s.Calendars) > 1 {
				t.Fatalf("snapshot leaked foreign calendars: %v", calendarIDs(s.Calendars))
			}
			if len(s.Calendars) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the owned calendar")
		}
	}
}

func contractNotifications(t *testing.T, h *Harness) {
	ctx := context.Background()
	repo := h.Backend.Notifications
	recipient := NewUserFixture()

	for i := 1; i <= 3; i++ {
		_, err := repo.CreateNotification(ctx, persistence.Notification{
			ID:     fmt.Sprintf("n-%d", i),
			UserID: recipient.ID,
			Title:  fmt.Sprintf("Notification %d", i),
			Type:   "event_reminder",
		})
		if err != nil {
			t.Fatalf("CreateNotification returned error: %v", err)
		}
		h.Clock.Advance(time.Second)
	}
	if _, err := repo.CreateNotification(ctx, persistence.Notification{ID: "n-x", UserID: "someone-else", Title: "x", Type: "new_event"}); err != nil {
		t.Fatalf("CreateNotification returned error: %v", err)
	}

	listed, err := repo.ListNotificationsByUser(ctx, recipient.ID)
	if err != nil {
		t.Fatalf("ListNotificationsByUser returned error: %v", err)
	}
	var ids []string
	for _, n := range listed {
		ids = append(ids, n.ID)
	}
	if fmt.Sprint(ids) != fmt.Sprint([]string{"n-3", "n-2", "n-1"}) {
		t.Fatalf("expected newest first, got %v", ids)
	}

	if err := repo.MarkNotificationRead(ctx, "n-2"); err != nil {
		t.Fatalf("MarkNotificationRead returned error: %v", err)
	}
	if n, err := repo.GetNotification(ctx, "n-2"); err != nil || !n.Read {
		t.Fatalf("expected n-2 read, got %+v (%v)", n, err)
	}
	if err := repo.MarkNotificationRead(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.MarkAllNotificationsRead(ctx, recipient.ID); err != nil {
		t.Fatalf("MarkAllNotificationsRead returned error: %v", err)
	}
	listed, _ = repo.ListNotificationsByUser(ctx, recipient.ID)
	for _, n := range listed {
		if !n.Read {
			t.Fatalf("expected %s read", n.ID)
		}
	}
	if other, err := repo.GetNotification(ctx, "n-x"); err != nil || other.Read {
		t.Fatalf("expected foreign notification untouched, got %+v (%v)", other, err)
	}
}

func contractUsersAndSessions(t *testing.T, h *Harness) {
	ctx := context.Background()
	users := h.Backend.Users
	sessions := h.Backend.Sessions

	alice := NewUserFixture(WithUserEmail("Alice@Example.com"))
	if err := users.CreateUser(ctx, alice.Persistence()); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	clash := NewUserFixture(WithUserEmail("alice@example.com"))
	if err := users.CreateUser(ctx, clash.Persistence()); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for case-insensitive email, got %v", err)
	}
	found, err := users.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil || found.ID != alice.ID {
		t.Fatalf("expected %s by email, got %+v (%v)", alice.ID, found, err)
	}

	renamed := alice.Persistence()
	renamed.DisplayName = "Alice A."
	if err := users.UpdateUser(ctx, renamed); err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if got, _ := users.GetUser(ctx, alice.ID); got.DisplayName != "Alice A." {
		t.Fatalf("expected updated display name, got %q", got.DisplayName)
	}
	if _, err := users.GetUser(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	orphan := NewSessionFixture(NewUserFixture())
	if _, err := sessions.CreateSession(ctx, orphan.Persistence()); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	live := NewSessionFixture(alice)
	revoked := NewSessionFixture(alice)
	expired := NewSessionFixture(alice)
	expired.ExpiresAt = h.Clock.Now().Add(-time.Minute)
	for _, s := range []SessionFixture{live, revoked, expired} {
		if _, err := sessions.CreateSession(ctx, s.Persistence()); err != nil {
			t.Fatalf("CreateSession returned error: %v", err)
		}
	}
	if err := sessions.RevokeSession(ctx, revoked.Token, h.Clock.Now()); err != nil {
		t.Fatalf("RevokeSession returned error: %v", err)
	}
	removed, err := sessions.DeleteExpiredSessions(ctx, h.Clock.Now())
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 purged sessions, got %d (%v)", removed, err)
	}
	if _, err := sessions.GetSession(ctx, live.Token); err != nil {
		t.Fatalf("expected live session to survive, got %v", err)
	}
	if _, err := sessions.GetSession(ctx, revoked.Token); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected revoked session purged, got %v", err)
	}
}

func oversizedIDs() []string {
	ids := make([]string, persistence.MaxInFilterValues+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("cal-%d", i)
	}
	return ids
}

func calendarIDs(calendars []persistence.Calendar) []string {
	ids := make([]string, len(calendars))
	for i, c := range calendars {
		ids[i] = c.ID
	}
	return ids
}

func eventIDs(events []persistence.Event) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	sort.Strings(ids)
	return ids
}
