package persistence

import "time"

// Collection names shared by every store implementation.
const (
	CollectionCalendars     = "calendars"
	CollectionEvents        = "events"
	CollectionNotifications = "notifications"
	CollectionUsers         = "users"
	CollectionSessions      = "sessions"
)

// Calendar is a named, colored container of events that can be shared by email.
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

// Event is a single entry in a calendar.
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

// Notification is a message delivered to a single recipient.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      string
	EventID   string
	Read      bool
	CreatedAt time.Time
}

// User is a registered account of the identity provider.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoURL     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is an issued login token.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}
