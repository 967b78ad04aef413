package testfixtures

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/persistence"
)

var (
	userCounter     uint64
	calendarCounter uint64
	eventCounter    uint64
	sessionCounter  uint64
)

var referenceTime = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic account.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoURL     string
	PasswordHash string
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) { f.DisplayName = name }
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) { f.PasswordHash = hash }
}

// Identity returns the fixture as the acting application.Identity.
func (f UserFixture) Identity() application.Identity {
	return application.Identity{
		UID:         f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		PhotoURL:    f.PhotoURL,
	}
}

// Credentials returns the fixture as application.UserCredentials.
func (f UserFixture) Credentials() application.UserCredentials {
	return application.UserCredentials{Identity: f.Identity(), PasswordHash: f.PasswordHash}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PhotoURL:     f.PhotoURL,
		PasswordHash: f.PasswordHash,
	}
}

// ----------------------------- Calendar fixtures -----------------------------

// CalendarFixture represents a deterministic calendar owned by a user.
type CalendarFixture struct {
	ID           string
	Name         string
	Color        string
	OwnerID      string
	OwnerEmail   string
	OwnerName    string
	IsDefault    bool
	SharedEmails []string
}

// CalendarOption configures the generated calendar fixture.
type CalendarOption func(*CalendarFixture)

// NewCalendarFixture returns a calendar owned by owner.
func NewCalendarFixture(owner UserFixture, opts ...CalendarOption) CalendarFixture {
	idx := atomic.AddUint64(&calendarCounter, 1)
	fixture := CalendarFixture{
		ID:         fmt.Sprintf("cal-%03d", idx),
		Name:       fmt.Sprintf("Calendar %03d", idx),
		Color:      application.DefaultCalendarColor,
		OwnerID:    owner.ID,
		OwnerEmail: owner.Email,
		OwnerName:  owner.DisplayName,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithCalendarID overrides the generated calendar ID.
func WithCalendarID(id string) CalendarOption {
	return func(f *CalendarFixture) { f.ID = id }
}

// WithCalendarName overrides the generated name.
func WithCalendarName(name string) CalendarOption {
	return func(f *CalendarFixture) { f.Name = name }
}

// WithCalendarDefault flags the calendar as the owner's default.
func WithCalendarDefault() CalendarOption {
	return func(f *CalendarFixture) { f.IsDefault = true }
}

// WithCalendarSharedWith shares the calendar with the given emails.
func WithCalendarSharedWith(emails ...string) CalendarOption {
	return func(f *CalendarFixture) {
		for _, email := range emails {
			f.SharedEmails = append(f.SharedEmails, strings.ToLower(strings.TrimSpace(email)))
		}
	}
}

// members lists the owner uid followed by the shared emails.
func (f CalendarFixture) members() []string {
	members := make([]string, 0, len(f.SharedEmails)+1)
	members = append(members, f.OwnerID)
	return append(members, f.SharedEmails...)
}

// Application returns the fixture as an application.Calendar value.
func (f CalendarFixture) Application() application.Calendar {
	return application.Calendar{
		ID:           f.ID,
		Name:         f.Name,
		Color:        f.Color,
		OwnerID:      f.OwnerID,
		OwnerEmail:   f.OwnerEmail,
		OwnerName:    f.OwnerName,
		IsDefault:    f.IsDefault,
		Members:      f.members(),
		SharedEmails: append([]string(nil), f.SharedEmails...),
	}
}

// Persistence returns the fixture as a persistence.Calendar value.
func (f CalendarFixture) Persistence() persistence.Calendar {
	return persistence.Calendar{
		ID:           f.ID,
		Name:         f.Name,
		Color:        f.Color,
		OwnerID:      f.OwnerID,
		OwnerEmail:   f.OwnerEmail,
		OwnerName:    f.OwnerName,
		IsDefault:    f.IsDefault,
		Members:      f.members(),
		SharedEmails: append([]string(nil), f.SharedEmails...),
	}
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic one hour event.
type EventFixture struct {
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
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns an event in calendar created by creator. Successive
// fixtures start an hour apart from ReferenceTime.
func NewEventFixture(calendar CalendarFixture, creator UserFixture, opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := EventFixture{
		ID:         fmt.Sprintf("evt-%03d", idx),
		Title:      fmt.Sprintf("Event %03d", idx),
		Start:      start,
		End:        start.Add(time.Hour),
		Color:      application.DefaultEventColor,
		CalendarID: calendar.ID,
		UserID:     creator.ID,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.ID = id }
}

// WithEventTitle overrides the generated title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) { f.Title = title }
}

// WithEventDescription sets the description.
func WithEventDescription(description string) EventOption {
	return func(f *EventFixture) { f.Description = description }
}

// WithEventLocation sets the location.
func WithEventLocation(location string) EventOption {
	return func(f *EventFixture) { f.Location = location }
}

// WithEventStartEnd overrides the generated schedule.
func WithEventStartEnd(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEventSharedWith marks the event shared with the given emails.
func WithEventSharedWith(emails ...string) EventOption {
	return func(f *EventFixture) {
		f.IsShared = true
		f.SharedWith = append([]string(nil), emails...)
	}
}

// Application returns the fixture as an application.Event value.
func (f EventFixture) Application() application.Event {
	return application.Event{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		Start:       f.Start,
		End:         f.End,
		Color:       f.Color,
		CalendarID:  f.CalendarID,
		UserID:      f.UserID,
		IsShared:    f.IsShared,
		SharedWith:  append([]string(nil), f.SharedWith...),
	}
}

// Input returns the caller supplied fields of the fixture.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		Start:       f.Start,
		End:         f.End,
		Color:       f.Color,
		CalendarID:  f.CalendarID,
		IsShared:    f.IsShared,
		SharedWith:  append([]string(nil), f.SharedWith...),
	}
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		Start:       f.Start,
		End:         f.End,
		Color:       f.Color,
		CalendarID:  f.CalendarID,
		UserID:      f.UserID,
		IsShared:    f.IsShared,
		SharedWith:  append([]string(nil), f.SharedWith...),
	}
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture represents a deterministic session token.
type SessionFixture struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// NewSessionFixture returns a session for user that expires a day after
// ReferenceTime.
func NewSessionFixture(user UserFixture) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	return SessionFixture{
		ID:        fmt.Sprintf("session-%03d", idx),
		UserID:    user.ID,
		Token:     fmt.Sprintf("token-%03d", idx),
		ExpiresAt: referenceTime.Add(24 * time.Hour),
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:        f.ID,
		UserID:    f.UserID,
		Token:     f.Token,
		ExpiresAt: f.ExpiresAt,
	}
}
