package persistence

import (
	"context"
	"time"
)

// MaxInFilterValues is the largest value set a single "in" query may carry.
// Callers with more ids split them with BatchIDs.
const MaxInFilterValues = 30

// CalendarSnapshot is a full result set pushed by a calendar watch.
type CalendarSnapshot struct {
	Calendars []Calendar
	Err       error
}

// EventSnapshot is a full result set pushed by an event watch.
type EventSnapshot struct {
	Events []Event
	Err    error
}

// CancelFunc stops a watch. It is safe to call more than once.
type CancelFunc func()

// CalendarRepository stores calendars and answers the membership queries.
type CalendarRepository interface {
	CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	// CreateCalendarIfNoneOwned inserts calendar only when no calendar lists
	// calendar.OwnerID as a member. The boolean reports whether it was created.
	CreateCalendarIfNoneOwned(ctx context.Context, calendar Calendar) (Calendar, bool, error)
	UpdateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
	ListCalendarsByMember(ctx context.Context, userID string) ([]Calendar, error)
	ListCalendarsBySharedEmail(ctx context.Context, email string) ([]Calendar, error)
	WatchCalendarsByMember(ctx context.Context, userID string, fn func(CalendarSnapshot)) CancelFunc
}

// EventRepository stores events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEventsByCalendars(ctx context.Context, calendarIDs []string) ([]Event, error)
	WatchEventsByCalendars(ctx context.Context, calendarIDs []string, fn func(EventSnapshot)) (CancelFunc, error)
}

// NotificationRepository stores notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification Notification) (Notification, error)
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// UserRepository stores identity accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// SessionRepository stores login sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}

// BatchIDs splits ids into consecutive chunks no larger than size.
func BatchIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxInFilterValues
	}
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]string, end-start)
		copy(batch, ids[start:end])
		batches = append(batches, batch)
	}
	return batches
}
