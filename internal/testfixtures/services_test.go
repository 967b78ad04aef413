package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/shared-calendar/internal/application"
)

func TestServicesEndToEnd(t *testing.T) {
	ctx := context.Background()
	factory := NewServiceFactory()
	harness := NewMemoryHarness(t)
	svc := factory.Build(harness.Repositories, nil)

	alice, err := svc.Identity.Register(ctx, application.RegisterParams{Email: "alice@example.com", Password: "secret1", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("Register alice returned error: %v", err)
	}
	bob, err := svc.Identity.Register(ctx, application.RegisterParams{Email: "bob@example.com", Password: "secret2", DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("Register bob returned error: %v", err)
	}
	resolved, err := svc.Identity.ValidateSession(ctx, alice.Session.Token)
	if err != nil || resolved.UID != alice.Identity.UID {
		t.Fatalf("expected session to resolve to alice, got %+v (%v)", resolved, err)
	}

	team, err := svc.Calendars.CreateCalendar(ctx, application.CreateCalendarParams{
		Identity: alice.Identity,
		Input:    application.CalendarInput{Name: "Team"},
	})
	if err != nil {
		t.Fatalf("CreateCalendar returned error: %v", err)
	}
	if _, err := svc.Calendars.ShareCalendar(ctx, application.ShareCalendarParams{
		Identity:   alice.Identity,
		CalendarID: team.ID,
		Emails:     []string{"Bob@Example.com"},
	}); err != nil {
		t.Fatalf("ShareCalendar returned error: %v", err)
	}

	ids, err := svc.Aggregator.AccessibleCalendarIDs(ctx, bob.Identity)
	if err != nil {
		t.Fatalf("AccessibleCalendarIDs returned error: %v", err)
	}
	if len(ids) != 1 || ids[0] != team.ID {
		t.Fatalf("expected bob to see %s, got %v", team.ID, ids)
	}

	start := factory.Clock.Now().Add(10 * time.Minute)
	created, err := svc.Events.CreateEvent(ctx, application.CreateEventParams{
		Identity: alice.Identity,
		Input: application.EventInput{
			Title:      "Standup",
			Location:   "Room 4",
			Start:      start,
			End:        start.Add(15 * time.Minute),
			CalendarID: team.ID,
		},
	})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}

	listed, err := svc.Events.ListEvents(ctx, application.ListEventsParams{Identity: bob.Identity})
	if err != nil || len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("expected bob to list %s, got %+v (%v)", created.ID, listed, err)
	}
	if _, err := svc.Events.UpdateEvent(ctx, application.UpdateEventParams{
		Identity: bob.Identity,
		EventID:  created.ID,
		Input:    application.EventInput{Title: "Hijack", Start: start, End: start.Add(time.Hour), CalendarID: team.ID},
	}); err == nil {
		t.Fatal("expected bob to be refused editing alice's event")
	}

	found, err := svc.Search.Search(ctx, bob.Identity, "room")
	if err != nil || len(found) != 1 {
		t.Fatalf("expected one search hit, got %+v (%v)", found, err)
	}

	snapshots := make(chan application.EventSnapshot, 4)
	sub := svc.Feed.Subscribe(ctx, bob.Identity, ids, func(s application.EventSnapshot) { snapshots <- s })
	defer sub.Close()
	select {
	case s := <-snapshots:
		if s.Err != nil || len(s.Events) != 1 {
			t.Fatalf("unexpected feed snapshot: %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed snapshot")
	}

	inbox, err := svc.Notifications.List(ctx, bob.Identity)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	var shared, reminders int
	for _, n := range inbox.Items {
		switch n.Type {
		case application.NotificationSharedCalendar:
			shared++
		case application.NotificationEventReminder:
			reminders++
		}
	}
	if shared != 1 || reminders != 1 {
		t.Fatalf("expected one share and one reminder notification, got %+v", inbox.Items)
	}
}

func TestServiceFactoryDefaults(t *testing.T) {
	factory := NewServiceFactory(WithClock(nil), WithIDGenerator(nil))
	if factory.Clock == nil || factory.IDGenerator == nil {
		t.Fatal("expected defaults to replace nil overrides")
	}
	if got := factory.IDGenerator.Next(); got != "id-1" {
		t.Fatalf("expected id-1, got %q", got)
	}
}
