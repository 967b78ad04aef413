package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/persistence"
)

// CalendarRepository implements persistence.CalendarRepository.
type CalendarRepository struct {
	*repository
}

var _ persistence.CalendarRepository = (*CalendarRepository)(nil)

const calendarColumns = `id, schema_version, name, color, owner_id, owner_email, owner_name, is_default, members, shared_emails, created_at, updated_at`

// CreateCalendar stores a new calendar with server-assigned timestamps.
func (r *CalendarRepository) CreateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	var created persistence.Calendar
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = r.insert(ctx, tx, calendar)
		return err
	})
	if err != nil {
		return persistence.Calendar{}, err
	}
	r.watcher.Notify(persistence.CollectionCalendars)
	return created, nil
}

// CreateCalendarIfNoneOwned inserts calendar unless its owner is already a
// member of some calendar. The check and the insert share one transaction.
func (r *CalendarRepository) CreateCalendarIfNoneOwned(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, bool, error) {
	var (
		result  persistence.Calendar
		created bool
	)
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		existing, err := r.queryCalendars(ctx, tx, `
			SELECT `+calendarColumns+` FROM calendars
			WHERE EXISTS (SELECT 1 FROM json_each(calendars.members) WHERE value = ?)
			ORDER BY created_at, id LIMIT 1`, calendar.OwnerID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			result = existing[0]
			return nil
		}
		result, err = r.insert(ctx, tx, calendar)
		created = err == nil
		return err
	})
	if err != nil {
		return persistence.Calendar{}, false, err
	}
	if created {
		r.watcher.Notify(persistence.CollectionCalendars)
	}
	return result, created, nil
}

func (r *CalendarRepository) insert(ctx context.Context, q queryer, calendar persistence.Calendar) (persistence.Calendar, error) {
	if strings.TrimSpace(calendar.ID) == "" || strings.TrimSpace(calendar.OwnerID) == "" {
		return persistence.Calendar{}, persistence.ErrConstraintViolation
	}
	members, shared, err := encodeCalendarLists(calendar)
	if err != nil {
		return persistence.Calendar{}, err
	}
	now := r.timestamp()
	calendar.CreatedAt = now
	calendar.UpdatedAt = now

	_, err = q.ExecContext(ctx, `
		INSERT INTO calendars (`+calendarColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		calendar.ID, persistence.SchemaVersion, calendar.Name, calendar.Color,
		calendar.OwnerID, calendar.OwnerEmail, calendar.OwnerName, boolToInt(calendar.IsDefault),
		members, shared, formatTime(now), formatTime(now),
	)
	if err != nil {
		return persistence.Calendar{}, r.mapper.MapError(err)
	}
	calendar.Members = append([]string(nil), calendar.Members...)
	calendar.SharedEmails = append([]string(nil), calendar.SharedEmails...)
	return calendar, nil
}

// UpdateCalendar replaces the mutable fields of an existing calendar.
func (r *CalendarRepository) UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	members, shared, err := encodeCalendarLists(calendar)
	if err != nil {
		return persistence.Calendar{}, err
	}

	var updated persistence.Calendar
	err = r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE calendars
			SET schema_version = ?, name = ?, color = ?, owner_id = ?, owner_email = ?, owner_name = ?,
			    is_default = ?, members = ?, shared_emails = ?, updated_at = ?
			WHERE id = ?`,
			persistence.SchemaVersion, calendar.Name, calendar.Color, calendar.OwnerID,
			calendar.OwnerEmail, calendar.OwnerName, boolToInt(calendar.IsDefault),
			members, shared, formatTime(r.timestamp()), calendar.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return persistence.ErrNotFound
		}
		updated, err = r.get(ctx, tx, calendar.ID)
		return err
	})
	if err != nil {
		return persistence.Calendar{}, err
	}
	r.watcher.Notify(persistence.CollectionCalendars)
	return updated, nil
}

// GetCalendar retrieves a calendar by ID.
func (r *CalendarRepository) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	return r.get(ctx, r.pool.DB(), id)
}

func (r *CalendarRepository) get(ctx context.Context, q queryer, id string) (persistence.Calendar, error) {
	calendars, err := r.queryCalendars(ctx, q, `SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id)
	if err != nil {
		return persistence.Calendar{}, err
	}
	if len(calendars) == 0 {
		return persistence.Calendar{}, persistence.ErrNotFound
	}
	return calendars[0], nil
}

// DeleteCalendar removes a calendar. Its events go with it through the
// foreign key cascade.
func (r *CalendarRepository) DeleteCalendar(ctx context.Context, id string) error {
	res, err := r.pool.DB().ExecContext(ctx, `DELETE FROM calendars WHERE id = ?`, id)
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
	r.watcher.Notify(persistence.CollectionCalendars)
	r.watcher.Notify(persistence.CollectionEvents)
	return nil
}

// ListCalendarsByMember returns calendars whose members include userID.
func (r *CalendarRepository) ListCalendarsByMember(ctx context.Context, userID string) ([]persistence.Calendar, error) {
	return r.queryCalendars(ctx, r.pool.DB(), `
		SELECT `+calendarColumns+` FROM calendars
		WHERE EXISTS (SELECT 1 FROM json_each(calendars.members) WHERE value = ?)
		ORDER BY created_at, id`, userID)
}

// ListCalendarsBySharedEmail returns calendars shared with email, ignoring case.
func (r *CalendarRepository) ListCalendarsBySharedEmail(ctx context.Context, email string) ([]persistence.Calendar, error) {
	return r.queryCalendars(ctx, r.pool.DB(), `
		SELECT `+calendarColumns+` FROM calendars
		WHERE EXISTS (SELECT 1 FROM json_each(calendars.shared_emails) WHERE lower(value) = ?)
		ORDER BY created_at, id`, strings.ToLower(strings.TrimSpace(email)))
}

// WatchCalendarsByMember pushes the member query result after every calendar write.
func (r *CalendarRepository) WatchCalendarsByMember(ctx context.Context, userID string, fn func(persistence.CalendarSnapshot)) persistence.CancelFunc {
	return r.watcher.Watch(ctx, persistence.CollectionCalendars, func(ctx context.Context) {
		calendars, err := r.ListCalendarsByMember(ctx, userID)
		fn(persistence.CalendarSnapshot{Calendars: calendars, Err: err})
	})
}

func (r *CalendarRepository) queryCalendars(ctx context.Context, q queryer, query string, args ...any) ([]persistence.Calendar, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var calendars []persistence.Calendar
	for rows.Next() {
		var (
			c                    persistence.Calendar
			version, isDefault   int
			members, shared      string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &version, &c.Name, &c.Color, &c.OwnerID, &c.OwnerEmail, &c.OwnerName,
			&isDefault, &members, &shared, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calendar: %w", err)
		}
		if err := persistence.CheckSchemaVersion(persistence.CollectionCalendars, c.ID, version); err != nil {
			return nil, err
		}
		c.IsDefault = isDefault != 0
		if c.Members, err = decodeStringList(persistence.CollectionCalendars, c.ID, "members", members); err != nil {
			return nil, err
		}
		if c.SharedEmails, err = decodeStringList(persistence.CollectionCalendars, c.ID, "sharedEmails", shared); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = decodeTime(persistence.CollectionCalendars, c.ID, "createdAt", createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = decodeTime(persistence.CollectionCalendars, c.ID, "updatedAt", updatedAt); err != nil {
			return nil, err
		}
		calendars = append(calendars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calendars: %w", err)
	}
	return calendars, nil
}

func encodeCalendarLists(calendar persistence.Calendar) (string, string, error) {
	members, err := encodeStringList(calendar.Members)
	if err != nil {
		return "", "", err
	}
	shared, err := encodeStringList(calendar.SharedEmails)
	if err != nil {
		return "", "", err
	}
	return members, shared, nil
}

func encodeStringList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(data), nil
}

func decodeStringList(collection, id, field, raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, &persistence.DecodeError{Collection: collection, ID: id, Field: field, Reason: "expected a JSON array of strings"}
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func decodeTime(collection, id, field, raw string) (time.Time, error) {
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, &persistence.DecodeError{Collection: collection, ID: id, Field: field, Reason: "expected a timestamp"}
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
