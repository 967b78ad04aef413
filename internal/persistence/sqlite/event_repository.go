package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/shared-calendar/internal/persistence"
)

// EventRepository implements persistence.EventRepository.
type EventRepository struct {
	*repository
}

var _ persistence.EventRepository = (*EventRepository)(nil)

const eventColumns = `id, schema_version, calendar_id, title, description, location, start_at, end_at, color, user_id, is_shared, shared_with, created_at, updated_at`

// CreateEvent stores a new event. The parent calendar must exist.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.CalendarID) == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	sharedWith, err := encodeStringList(event.SharedWith)
	if err != nil {
		return persistence.Event{}, err
	}
	now := r.timestamp()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err = r.pool.DB().ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, persistence.SchemaVersion, event.CalendarID, event.Title, event.Description, event.Location,
		formatTime(event.Start), formatTime(event.End), event.Color, event.UserID, boolToInt(event.IsShared),
		sharedWith, formatTime(now), formatTime(now),
	)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	r.watcher.Notify(persistence.CollectionEvents)
	return r.GetEvent(ctx, event.ID)
}

// UpdateEvent replaces the mutable fields of an existing event.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	sharedWith, err := encodeStringList(event.SharedWith)
	if err != nil {
		return persistence.Event{}, err
	}

	var updated persistence.Event
	err = r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE events
			SET schema_version = ?, calendar_id = ?, title = ?, description = ?, location = ?,
			    start_at = ?, end_at = ?, color = ?, user_id = ?, is_shared = ?, shared_with = ?, updated_at = ?
			WHERE id = ?`,
			persistence.SchemaVersion, event.CalendarID, event.Title, event.Description, event.Location,
			formatTime(event.Start), formatTime(event.End), event.Color, event.UserID, boolToInt(event.IsShared),
			sharedWith, formatTime(r.timestamp()), event.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return persistence.ErrNotFound
		}
		updated, err = r.get(ctx, tx, event.ID)
		return err
	})
	if err != nil {
		return persistence.Event{}, err
	}
	r.watcher.Notify(persistence.CollectionEvents)
	return updated, nil
}

// GetEvent retrieves an event by ID.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	return r.get(ctx, r.pool.DB(), id)
}

func (r *EventRepository) get(ctx context.Context, q queryer, id string) (persistence.Event, error) {
	events, err := r.queryEvents(ctx, q, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return persistence.Event{}, err
	}
	if len(events) == 0 {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return events[0], nil
}

// DeleteEvent removes an event by ID.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.pool.DB().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	r.watcher.Notify(persistence.CollectionEvents)
	return nil
}

// ListEventsByCalendars returns events whose calendar is one of calendarIDs.
// At most persistence.MaxInFilterValues ids are accepted.
func (r *EventRepository) ListEventsByCalendars(ctx context.Context, calendarIDs []string) ([]persistence.Event, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}
	if len(calendarIDs) > persistence.MaxInFilterValues {
		return nil, persistence.ErrInFilterTooLarge
	}
	args := make([]any, len(calendarIDs))
	for i, id := range calendarIDs {
		args[i] = id
	}
	return r.queryEvents(ctx, r.pool.DB(), `
		SELECT `+eventColumns+` FROM events
		WHERE calendar_id IN (`+placeholders(len(calendarIDs))+`)
		ORDER BY created_at, id`, args...)
}

// WatchEventsByCalendars pushes the event query result after every event write.
func (r *EventRepository) WatchEventsByCalendars(ctx context.Context, calendarIDs []string, fn func(persistence.EventSnapshot)) (persistence.CancelFunc, error) {
	if len(calendarIDs) > persistence.MaxInFilterValues {
		return nil, persistence.ErrInFilterTooLarge
	}
	ids := append([]string(nil), calendarIDs...)
	return r.watcher.Watch(ctx, persistence.CollectionEvents, func(ctx context.Context) {
		events, err := r.ListEventsByCalendars(ctx, ids)
		fn(persistence.EventSnapshot{Events: events, Err: err})
	}), nil
}

func (r *EventRepository) queryEvents(ctx context.Context, q queryer, query string, args ...any) ([]persistence.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		var (
			e                    persistence.Event
			version, isShared    int
			start, end           string
			sharedWith           string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &version, &e.CalendarID, &e.Title, &e.Description, &e.Location,
			&start, &end, &e.Color, &e.UserID, &isShared, &sharedWith, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := persistence.CheckSchemaVersion(persistence.CollectionEvents, e.ID, version); err != nil {
			return nil, err
		}
		e.IsShared = isShared != 0
		if e.SharedWith, err = decodeStringList(persistence.CollectionEvents, e.ID, "sharedWith", sharedWith); err != nil {
			return nil, err
		}
		if e.Start, err = decodeTime(persistence.CollectionEvents, e.ID, "start", start); err != nil {
			return nil, err
		}
		if e.End, err = decodeTime(persistence.CollectionEvents, e.ID, "end", end); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = decodeTime(persistence.CollectionEvents, e.ID, "createdAt", createdAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = decodeTime(persistence.CollectionEvents, e.ID, "updatedAt", updatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
