// Package adapter binds the persistence repositories to the ports declared by
// package application. It converts models in both directions and maps storage
// sentinels onto application sentinels, so services never see a
// persistence error value.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/persistence"
)

// Backend is the full set of repositories a store provides.
type Backend struct {
	Calendars     persistence.CalendarRepository
	Events        persistence.EventRepository
	Notifications persistence.NotificationRepository
	Users         persistence.UserRepository
	Sessions      persistence.SessionRepository
}

// Repositories holds the application-facing views of a Backend.
type Repositories struct {
	Calendars     application.CalendarRepository
	Events        application.EventRepository
	Notifications application.NotificationRepository
	Users         application.UserRepository
	Sessions      application.SessionRepository
}

// Wrap adapts every repository of backend.
func Wrap(backend Backend) Repositories {
	return Repositories{
		Calendars:     NewCalendarRepository(backend.Calendars),
		Events:        NewEventRepository(backend.Events),
		Notifications: NewNotificationRepository(backend.Notifications),
		Users:         NewUserRepository(backend.Users),
		Sessions:      NewSessionRepository(backend.Sessions),
	}
}

// mapError translates persistence sentinels. Other errors pass through.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return application.ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return application.ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", application.ErrNotFound, err)
	}
	return err
}

// ----------------------------- Calendars -----------------------------

type calendarRepository struct {
	repo persistence.CalendarRepository
}

// NewCalendarRepository adapts a persistence calendar repository.
func NewCalendarRepository(repo persistence.CalendarRepository) application.CalendarRepository {
	return &calendarRepository{repo: repo}
}

func (a *calendarRepository) CreateCalendar(ctx context.Context, calendar application.Calendar) (application.Calendar, error) {
	stored, err := a.repo.CreateCalendar(ctx, toPersistenceCalendar(calendar))
	if err != nil {
		return application.Calendar{}, mapError(err)
	}
	return toApplicationCalendar(stored), nil
}

func (a *calendarRepository) CreateCalendarIfNoneOwned(ctx context.Context, calendar application.Calendar) (application.Calendar, bool, error) {
	stored, created, err := a.repo.CreateCalendarIfNoneOwned(ctx, toPersistenceCalendar(calendar))
	if err != nil {
		return application.Calendar{}, false, mapError(err)
	}
	return toApplicationCalendar(stored), created, nil
}

func (a *calendarRepository) UpdateCalendar(ctx context.Context, calendar application.Calendar) (application.Calendar, error) {
	stored, err := a.repo.UpdateCalendar(ctx, toPersistenceCalendar(calendar))
	if err != nil {
		return application.Calendar{}, mapError(err)
	}
	return toApplicationCalendar(stored), nil
}

func (a *calendarRepository) GetCalendar(ctx context.Context, id string) (application.Calendar, error) {
	stored, err := a.repo.GetCalendar(ctx, id)
	if err != nil {
		return application.Calendar{}, mapError(err)
	}
	return toApplicationCalendar(stored), nil
}

func (a *calendarRepository) DeleteCalendar(ctx context.Context, id string) error {
	return mapError(a.repo.DeleteCalendar(ctx, id))
}

func (a *calendarRepository) ListCalendarsByMember(ctx context.Context, userID string) ([]application.Calendar, error) {
	stored, err := a.repo.ListCalendarsByMember(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationCalendars(stored), nil
}

func (a *calendarRepository) ListCalendarsBySharedEmail(ctx context.Context, email string) ([]application.Calendar, error) {
	stored, err := a.repo.ListCalendarsBySharedEmail(ctx, email)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationCalendars(stored), nil
}

func (a *calendarRepository) WatchCalendarsByMember(ctx context.Context, userID string, fn func(application.CalendarSnapshot)) func() {
	cancel := a.repo.WatchCalendarsByMember(ctx, userID, func(snapshot persistence.CalendarSnapshot) {
		fn(application.CalendarSnapshot{
			Calendars: toApplicationCalendars(snapshot.Calendars),
			Err:       mapError(snapshot.Err),
		})
	})
	return cancel
}

// ----------------------------- Events -----------------------------

type eventRepository struct {
	repo persistence.EventRepository
}

// NewEventRepository adapts a persistence event repository.
func NewEventRepository(repo persistence.EventRepository) application.EventRepository {
	return &eventRepository{repo: repo}
}

func (a *eventRepository) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	stored, err := a.repo.CreateEvent(ctx, toPersistenceEvent(event))
	if err != nil {
		return application.Event{}, mapError(err)
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepository) UpdateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	stored, err := a.repo.UpdateEvent(ctx, toPersistenceEvent(event))
	if err != nil {
		return application.Event{}, mapError(err)
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepository) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, mapError(err)
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepository) DeleteEvent(ctx context.Context, id string) error {
	return mapError(a.repo.DeleteEvent(ctx, id))
}

func (a *eventRepository) ListEventsByCalendars(ctx context.Context, calendarIDs []string) ([]application.Event, error) {
	stored, err := a.repo.ListEventsByCalendars(ctx, calendarIDs)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationEvents(stored), nil
}

func (a *eventRepository) WatchEventsByCalendars(ctx context.Context, calendarIDs []string, fn func([]application.Event, error)) (func(), error) {
	cancel, err := a.repo.WatchEventsByCalendars(ctx, calendarIDs, func(snapshot persistence.EventSnapshot) {
		if snapshot.Err != nil {
			fn(nil, mapError(snapshot.Err))
			return
		}
		fn(toApplicationEvents(snapshot.Events), nil)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return cancel, nil
}

// ----------------------------- Notifications -----------------------------

type notificationRepository struct {
	repo persistence.NotificationRepository
}

// NewNotificationRepository adapts a persistence notification repository.
func NewNotificationRepository(repo persistence.NotificationRepository) application.NotificationRepository {
	return &notificationRepository{repo: repo}
}

func (a *notificationRepository) CreateNotification(ctx context.Context, notification application.Notification) (application.Notification, error) {
	stored, err := a.repo.CreateNotification(ctx, toPersistenceNotification(notification))
	if err != nil {
		return application.Notification{}, mapError(err)
	}
	return toApplicationNotification(stored), nil
}

func (a *notificationRepository) GetNotification(ctx context.Context, id string) (application.Notification, error) {
	stored, err := a.repo.GetNotification(ctx, id)
	if err != nil {
		return application.Notification{}, mapError(err)
	}
	return toApplicationNotification(stored), nil
}

func (a *notificationRepository) ListNotificationsByUser(ctx context.Context, userID string) ([]application.Notification, error) {
	stored, err := a.repo.ListNotificationsByUser(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]application.Notification, len(stored))
	for i, n := range stored {
		out[i] = toApplicationNotification(n)
	}
	return out, nil
}

func (a *notificationRepository) MarkNotificationRead(ctx context.Context, id string) error {
	return mapError(a.repo.MarkNotificationRead(ctx, id))
}

func (a *notificationRepository) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	return mapError(a.repo.MarkAllNotificationsRead(ctx, userID))
}

// ----------------------------- Users and sessions -----------------------------

type userRepository struct {
	repo persistence.UserRepository
}

// NewUserRepository adapts a persistence user repository.
func NewUserRepository(repo persistence.UserRepository) application.UserRepository {
	return &userRepository{repo: repo}
}

func (a *userRepository) CreateUser(ctx context.Context, user application.UserCredentials) error {
	return mapError(a.repo.CreateUser(ctx, toPersistenceUser(user)))
}

func (a *userRepository) UpdateUser(ctx context.Context, user application.UserCredentials) error {
	return mapError(a.repo.UpdateUser(ctx, toPersistenceUser(user)))
}

func (a *userRepository) GetUser(ctx context.Context, id string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.UserCredentials{}, mapError(err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepository) GetUserByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, mapError(err)
	}
	return toApplicationUser(stored), nil
}

type sessionRepository struct {
	repo persistence.SessionRepository
}

// NewSessionRepository adapts a persistence session repository.
func NewSessionRepository(repo persistence.SessionRepository) application.SessionRepository {
	return &sessionRepository{repo: repo}
}

func (a *sessionRepository) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, mapError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepository) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, mapError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	return mapError(a.repo.RevokeSession(ctx, token, revokedAt))
}

func (a *sessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	removed, err := a.repo.DeleteExpiredSessions(ctx, reference)
	return removed, mapError(err)
}

// ----------------------------- Conversions -----------------------------

func toApplicationCalendar(model persistence.Calendar) application.Calendar {
	return application.Calendar{
		ID:           model.ID,
		Name:         model.Name,
		Color:        model.Color,
		OwnerID:      model.OwnerID,
		OwnerEmail:   model.OwnerEmail,
		OwnerName:    model.OwnerName,
		IsDefault:    model.IsDefault,
		Members:      cloneStrings(model.Members),
		SharedEmails: cloneStrings(model.SharedEmails),
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

func toApplicationCalendars(models []persistence.Calendar) []application.Calendar {
	if models == nil {
		return nil
	}
	out := make([]application.Calendar, len(models))
	for i, m := range models {
		out[i] = toApplicationCalendar(m)
	}
	return out
}

func toPersistenceCalendar(calendar application.Calendar) persistence.Calendar {
	return persistence.Calendar{
		ID:           calendar.ID,
		Name:         calendar.Name,
		Color:        calendar.Color,
		OwnerID:      calendar.OwnerID,
		OwnerEmail:   calendar.OwnerEmail,
		OwnerName:    calendar.OwnerName,
		IsDefault:    calendar.IsDefault,
		Members:      cloneStrings(calendar.Members),
		SharedEmails: cloneStrings(calendar.SharedEmails),
		CreatedAt:    calendar.CreatedAt,
		UpdatedAt:    calendar.UpdatedAt,
	}
}

func toApplicationEvent(model persistence.Event) application.Event {
	return application.Event{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
		Location:    model.Location,
		Start:       model.Start,
		End:         model.End,
		Color:       model.Color,
		CalendarID:  model.CalendarID,
		UserID:      model.UserID,
		IsShared:    model.IsShared,
		SharedWith:  cloneStrings(model.SharedWith),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toApplicationEvents(models []persistence.Event) []application.Event {
	out := make([]application.Event, len(models))
	for i, m := range models {
		out[i] = toApplicationEvent(m)
	}
	return out
}

func toPersistenceEvent(event application.Event) persistence.Event {
	return persistence.Event{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       event.Start,
		End:         event.End,
		Color:       event.Color,
		CalendarID:  event.CalendarID,
		UserID:      event.UserID,
		IsShared:    event.IsShared,
		SharedWith:  cloneStrings(event.SharedWith),
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
}

func toApplicationNotification(model persistence.Notification) application.Notification {
	return application.Notification{
		ID:        model.ID,
		UserID:    model.UserID,
		Title:     model.Title,
		Message:   model.Message,
		Type:      application.NotificationType(model.Type),
		EventID:   model.EventID,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

func toPersistenceNotification(notification application.Notification) persistence.Notification {
	return persistence.Notification{
		ID:        notification.ID,
		UserID:    notification.UserID,
		Title:     notification.Title,
		Message:   notification.Message,
		Type:      string(notification.Type),
		EventID:   notification.EventID,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt,
	}
}

func toApplicationUser(model persistence.User) application.UserCredentials {
	return application.UserCredentials{
		Identity: application.Identity{
			UID:         model.ID,
			Email:       model.Email,
			DisplayName: model.DisplayName,
			PhotoURL:    model.PhotoURL,
		},
		PasswordHash: model.PasswordHash,
	}
}

func toPersistenceUser(user application.UserCredentials) persistence.User {
	return persistence.User{
		ID:           user.Identity.UID,
		Email:        user.Identity.Email,
		DisplayName:  user.Identity.DisplayName,
		PhotoURL:     user.Identity.PhotoURL,
		PasswordHash: user.PasswordHash,
	}
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:        model.ID,
		UserID:    model.UserID,
		Token:     model.Token,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		RevokedAt: cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		RevokedAt: cloneTime(session.RevokedAt),
	}
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
