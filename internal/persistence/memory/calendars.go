package memory

import (
	"context"
	"strings"

	"github.com/example/shared-calendar/internal/persistence"
)

// CreateCalendar stores a new calendar with server-assigned timestamps.
func (s *Store) CreateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	s.mu.Lock()
	created, err := s.createCalendarLocked(calendar)
	s.mu.Unlock()
	if err != nil {
		return persistence.Calendar{}, err
	}
	s.watcher.Notify(persistence.CollectionCalendars)
	return created, nil
}

// CreateCalendarIfNoneOwned inserts calendar unless its owner is already a
// member of some calendar. The check and the insert share one lock.
func (s *Store) CreateCalendarIfNoneOwned(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, bool, error) {
	s.mu.Lock()
	owned, err := s.queryLocked(persistence.CollectionCalendars, Filter{Field: "members", Op: OpArrayContains, Value: calendar.OwnerID})
	if err != nil {
		s.mu.Unlock()
		return persistence.Calendar{}, false, err
	}
	if len(owned) > 0 {
		existing, err := persistence.DecodeCalendar(owned[0].id, owned[0].doc)
		s.mu.Unlock()
		return existing, false, err
	}
	created, err := s.createCalendarLocked(calendar)
	s.mu.Unlock()
	if err != nil {
		return persistence.Calendar{}, false, err
	}
	s.watcher.Notify(persistence.CollectionCalendars)
	return created, true, nil
}

func (s *Store) createCalendarLocked(calendar persistence.Calendar) (persistence.Calendar, error) {
	if strings.TrimSpace(calendar.ID) == "" || strings.TrimSpace(calendar.OwnerID) == "" {
		return persistence.Calendar{}, persistence.ErrConstraintViolation
	}
	if _, ok := s.docs[persistence.CollectionCalendars][calendar.ID]; ok {
		return persistence.Calendar{}, persistence.ErrDuplicate
	}
	now := s.timestamp()
	calendar.CreatedAt = now
	calendar.UpdatedAt = now
	s.docs[persistence.CollectionCalendars][calendar.ID] = persistence.EncodeCalendar(calendar)
	return persistence.DecodeCalendar(calendar.ID, s.docs[persistence.CollectionCalendars][calendar.ID])
}

// UpdateCalendar replaces the mutable fields of an existing calendar.
func (s *Store) UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	s.mu.Lock()
	stored, ok := s.docs[persistence.CollectionCalendars][calendar.ID]
	if !ok {
		s.mu.Unlock()
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	existing, err := persistence.DecodeCalendar(calendar.ID, stored)
	if err != nil {
		s.mu.Unlock()
		return persistence.Calendar{}, err
	}
	calendar.CreatedAt = existing.CreatedAt
	calendar.UpdatedAt = s.timestamp()
	doc := persistence.EncodeCalendar(calendar)
	s.docs[persistence.CollectionCalendars][calendar.ID] = doc
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionCalendars)
	return persistence.DecodeCalendar(calendar.ID, doc)
}

// GetCalendar retrieves a calendar by ID.
func (s *Store) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[persistence.CollectionCalendars][id]
	if !ok {
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	return persistence.DecodeCalendar(id, doc)
}

// DeleteCalendar removes a calendar together with its events.
func (s *Store) DeleteCalendar(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.docs[persistence.CollectionCalendars][id]; !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	delete(s.docs[persistence.CollectionCalendars], id)
	removedEvents := false
	for eventID, doc := range s.docs[persistence.CollectionEvents] {
		if doc["calendarId"] == id {
			delete(s.docs[persistence.CollectionEvents], eventID)
			removedEvents = true
		}
	}
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionCalendars)
	if removedEvents {
		s.watcher.Notify(persistence.CollectionEvents)
	}
	return nil
}

// ListCalendarsByMember returns calendars whose members include userID.
func (s *Store) ListCalendarsByMember(ctx context.Context, userID string) ([]persistence.Calendar, error) {
	return s.listCalendars(Filter{Field: "members", Op: OpArrayContains, Value: userID})
}

// ListCalendarsBySharedEmail returns calendars shared with email.
func (s *Store) ListCalendarsBySharedEmail(ctx context.Context, email string) ([]persistence.Calendar, error) {
	return s.listCalendars(Filter{Field: "sharedEmails", Op: OpArrayContains, Value: normalizeEmail(email)})
}

// WatchCalendarsByMember pushes the member query result after every calendar write.
func (s *Store) WatchCalendarsByMember(ctx context.Context, userID string, fn func(persistence.CalendarSnapshot)) persistence.CancelFunc {
	return s.watcher.Watch(ctx, persistence.CollectionCalendars, func(context.Context) {
		calendars, err := s.ListCalendarsByMember(ctx, userID)
		fn(persistence.CalendarSnapshot{Calendars: calendars, Err: err})
	})
}

func (s *Store) listCalendars(filters ...Filter) ([]persistence.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryLocked(persistence.CollectionCalendars, filters...)
	if err != nil {
		return nil, err
	}
	calendars := make([]persistence.Calendar, 0, len(entries))
	for _, e := range entries {
		c, err := persistence.DecodeCalendar(e.id, e.doc)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, c)
	}
	return calendars, nil
}
