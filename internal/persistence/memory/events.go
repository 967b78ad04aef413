package memory

import (
	"context"
	"strings"

	"github.com/example/shared-calendar/internal/persistence"
)

// CreateEvent stores a new event. The parent calendar must exist.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.CalendarID) == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	if _, ok := s.docs[persistence.CollectionCalendars][event.CalendarID]; !ok {
		s.mu.Unlock()
		return persistence.Event{}, persistence.ErrForeignKeyViolation
	}
	if _, ok := s.docs[persistence.CollectionEvents][event.ID]; ok {
		s.mu.Unlock()
		return persistence.Event{}, persistence.ErrDuplicate
	}
	now := s.timestamp()
	event.CreatedAt = now
	event.UpdatedAt = now
	doc := persistence.EncodeEvent(event)
	s.docs[persistence.CollectionEvents][event.ID] = doc
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionEvents)
	return persistence.DecodeEvent(event.ID, doc)
}

// UpdateEvent replaces the mutable fields of an existing event.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	s.mu.Lock()
	stored, ok := s.docs[persistence.CollectionEvents][event.ID]
	if !ok {
		s.mu.Unlock()
		return persistence.Event{}, persistence.ErrNotFound
	}
	if _, ok := s.docs[persistence.CollectionCalendars][event.CalendarID]; !ok {
		s.mu.Unlock()
		return persistence.Event{}, persistence.ErrForeignKeyViolation
	}
	existing, err := persistence.DecodeEvent(event.ID, stored)
	if err != nil {
		s.mu.Unlock()
		return persistence.Event{}, err
	}
	event.CreatedAt = existing.CreatedAt
	event.UpdatedAt = s.timestamp()
	doc := persistence.EncodeEvent(event)
	s.docs[persistence.CollectionEvents][event.ID] = doc
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionEvents)
	return persistence.DecodeEvent(event.ID, doc)
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[persistence.CollectionEvents][id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return persistence.DecodeEvent(id, doc)
}

// DeleteEvent removes an event by ID.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.docs[persistence.CollectionEvents][id]; !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	delete(s.docs[persistence.CollectionEvents], id)
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionEvents)
	return nil
}

// ListEventsByCalendars returns events whose calendar is one of calendarIDs.
// At most persistence.MaxInFilterValues ids are accepted.
func (s *Store) ListEventsByCalendars(ctx context.Context, calendarIDs []string) ([]persistence.Event, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryLocked(persistence.CollectionEvents, Filter{Field: "calendarId", Op: OpIn, Value: calendarIDs})
	if err != nil {
		return nil, err
	}
	events := make([]persistence.Event, 0, len(entries))
	for _, e := range entries {
		ev, err := persistence.DecodeEvent(e.id, e.doc)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// WatchEventsByCalendars pushes the event query result after every event write.
func (s *Store) WatchEventsByCalendars(ctx context.Context, calendarIDs []string, fn func(persistence.EventSnapshot)) (persistence.CancelFunc, error) {
	if len(calendarIDs) > persistence.MaxInFilterValues {
		return nil, persistence.ErrInFilterTooLarge
	}
	ids := make([]string, len(calendarIDs))
	copy(ids, calendarIDs)
	return s.watcher.Watch(ctx, persistence.CollectionEvents, func(context.Context) {
		events, err := s.ListEventsByCalendars(ctx, ids)
		fn(persistence.EventSnapshot{Events: events, Err: err})
	}), nil
}
