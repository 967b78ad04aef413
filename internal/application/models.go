package application

import "time"

// Identity is the signed-in user on whose behalf a service method runs.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Calendar is a named, colored container of events. Members holds the owner
// uid plus every email the calendar was shared with; SharedEmails holds the
// shared emails only.
type Calendar struct {
	ID           string
	Name         string
	Color        string
	OwnerID      string
	OwnerEmail   string
	OwnerName    string
	IsDefault    bool
	Members      []string
	SharedEmails []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnedBy reports whether uid owns the calendar.
func (c Calendar) OwnedBy(uid string) bool {
	return uid != "" && c.OwnerID == uid
}

// CalendarInput captures caller provided calendar fields.
type CalendarInput struct {
	Name      string
	Color     string
	IsDefault bool
}

// CreateCalendarParams wraps the data required to create a calendar.
type CreateCalendarParams struct {
	Identity Identity
	Input    CalendarInput
}

// UpdateCalendarParams wraps the data required to update a calendar.
type UpdateCalendarParams struct {
	Identity   Identity
	CalendarID string
	Input      CalendarInput
}

// ShareCalendarParams wraps the emails a calendar should be shared with.
type ShareCalendarParams struct {
	Identity   Identity
	CalendarID string
	Emails     []string
}

// UnshareCalendarParams identifies the email to remove from a calendar.
type UnshareCalendarParams struct {
	Identity   Identity
	CalendarID string
	Email      string
}

// CalendarSnapshot is one push of a live owned-calendars query.
type CalendarSnapshot struct {
	Calendars []Calendar
	Err       error
}

// Event is a single timed entry in a calendar.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Color       string
	CalendarID  string
	UserID      string
	IsShared    bool
	SharedWith  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Color       string
	CalendarID  string
	IsShared    bool
	SharedWith  []string
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Identity Identity
	Input    EventInput
}

// UpdateEventParams wraps the data required to update an event.
type UpdateEventParams struct {
	Identity Identity
	EventID  string
	Input    EventInput
}

// ListEventsParams selects the events of the given calendars overlapping
// [From, To). Empty CalendarIDs means every accessible calendar; a zero
// bound leaves that side open.
type ListEventsParams struct {
	Identity    Identity
	CalendarIDs []string
	From        time.Time
	To          time.Time
}

// EventSnapshot is one delivery of the event feed. Err reports a store
// failure; Events is empty in that case.
type EventSnapshot struct {
	Events     []Event
	Err        error
	Generation uint64
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationEventReminder  NotificationType = "event_reminder"
	NotificationSharedCalendar NotificationType = "shared_calendar"
	NotificationNewEvent       NotificationType = "new_event"
)

// Notification is a message addressed to a single recipient.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	EventID   string
	Read      bool
	CreatedAt time.Time
}

// NotificationList is the dropdown view of a recipient's notifications.
type NotificationList struct {
	Items       []Notification
	UnreadCount int
}

// UserCredentials models the authentication attributes stored for a user.
type UserCredentials struct {
	Identity     Identity
	PasswordHash string
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// RegisterParams captures the data required to create an account.
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginParams captures the data required to authenticate a user.
type LoginParams struct {
	Email    string
	Password string
}

// LoginResult captures the outcome of a successful authentication attempt.
type LoginResult struct {
	Identity Identity
	Session  Session
}

// UpdateProfileParams captures editable profile fields.
type UpdateProfileParams struct {
	Identity    Identity
	DisplayName string
	PhotoURL    string
}

// ChangePasswordParams captures a password rotation request.
type ChangePasswordParams struct {
	Identity        Identity
	CurrentPassword string
	NewPassword     string
}
