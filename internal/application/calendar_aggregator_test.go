package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalendarAggregator_AccessibleCalendarsIsOrderIndependent(t *testing.T) {
	t.Parallel()

	owned := Calendar{ID: "A", OwnerID: "alice", Members: []string{"alice"}, CreatedAt: testNow}
	shared := Calendar{ID: "B", OwnerID: "bob", Members: []string{"bob", "alice@example.com"}, SharedEmails: []string{"alice@example.com"}, CreatedAt: testNow.Add(-time.Hour)}
	both := Calendar{ID: "A", OwnerID: "alice", Members: []string{"alice"}, SharedEmails: []string{"alice@example.com"}, CreatedAt: testNow}

	delays := map[string]func(repo *calendarRepositoryStub){
		"member query slower": func(repo *calendarRepositoryStub) {
			repo.beforeMember = func() { time.Sleep(20 * time.Millisecond) }
		},
		"shared query slower": func(repo *calendarRepositoryStub) {
			repo.beforeShared = func() { time.Sleep(20 * time.Millisecond) }
		},
	}
	for name, configure := range delays {
		configure := configure
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			repo := newCalendarRepositoryStub(shared, both)
			configure(repo)
			agg := NewCalendarAggregator(repo, nil)

			calendars, err := agg.AccessibleCalendars(context.Background(), alice)
			if err != nil {
				t.Fatalf("AccessibleCalendars returned error: %v", err)
			}
			if got := calendarIDs(calendars); len(got) != 2 || got[0] != owned.ID || got[1] != shared.ID {
				t.Fatalf("expected [A B], got %v", got)
			}
			if len(calendars[0].SharedEmails) != 1 {
				t.Fatalf("expected merged record to keep shared emails, got %+v", calendars[0])
			}
		})
	}
}

func TestCalendarAggregator_PartialFailures(t *testing.T) {
	t.Parallel()

	owned := Calendar{ID: "A", OwnerID: "alice", Members: []string{"alice"}}
	shared := Calendar{ID: "B", OwnerID: "bob", Members: []string{"bob", "alice@example.com"}, SharedEmails: []string{"alice@example.com"}}

	t.Run("shared failure keeps owned calendars", func(t *testing.T) {
		t.Parallel()
		repo := newCalendarRepositoryStub(owned, shared)
		repo.sharedErr = errors.New("unavailable")
		agg := NewCalendarAggregator(repo, nil)

		calendars, err := agg.AccessibleCalendars(context.Background(), alice)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := calendarIDs(calendars); len(got) != 1 || got[0] != "A" {
			t.Fatalf("expected [A], got %v", got)
		}
	})

	t.Run("both failing resolve to empty", func(t *testing.T) {
		t.Parallel()
		repo := newCalendarRepositoryStub(owned, shared)
		repo.memberErr = errors.New("unavailable")
		repo.sharedErr = errors.New("unavailable")
		agg := NewCalendarAggregator(repo, nil)

		calendars, err := agg.AccessibleCalendars(context.Background(), alice)
		if err != nil || len(calendars) != 0 {
			t.Fatalf("expected empty result without error, got %v / %v", calendars, err)
		}
		if _, err := agg.AccessibleCalendarsStrict(context.Background(), alice); err == nil {
			t.Fatalf("expected strict variant to report the failure")
		}
	})

	t.Run("shared query uses the normalized email", func(t *testing.T) {
		t.Parallel()
		repo := newCalendarRepositoryStub(shared)
		agg := NewCalendarAggregator(repo, nil)

		calendars, _ := agg.AccessibleCalendars(context.Background(), Identity{UID: "alice", Email: " Alice@Example.COM "})
		if len(calendars) != 1 || repo.sharedQueriedEmails[0] != "alice@example.com" {
			t.Fatalf("expected shared calendar via normalized email, got %v (%v)", calendarIDs(calendars), repo.sharedQueriedEmails)
		}
	})
}

func TestMergeCalendarPrefersNewerScalars(t *testing.T) {
	t.Parallel()

	older := Calendar{ID: "A", Name: "Old", Color: "#111111", OwnerEmail: "a@example.com", Members: []string{"alice"}, UpdatedAt: testNow}
	newer := Calendar{ID: "A", Name: "New", Members: []string{"bob@example.com"}, UpdatedAt: testNow.Add(time.Minute)}

	merged := mergeCalendar(older, newer)
	if merged.Name != "New" || merged.Color != "#111111" || merged.OwnerEmail != "a@example.com" {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if len(merged.Members) != 2 {
		t.Fatalf("expected members unioned, got %v", merged.Members)
	}
}

func calendarIDs(calendars []Calendar) []string {
	ids := make([]string, len(calendars))
	for i, c := range calendars {
		ids[i] = c.ID
	}
	return ids
}
