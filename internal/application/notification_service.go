package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// NotificationListLimit is how many notifications the dropdown shows.
const NotificationListLimit = 10

// NotificationRepository captures the persistence operations needed by the notification service.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification Notification) (Notification, error)
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotificationsByUser(ctx context.Context, userID string) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// UserDirectory resolves registered users by email.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (Identity, error)
}

// Notifier is the subset of NotificationService other services emit through.
type Notifier interface {
	NotifyReminder(ctx context.Context, recipientID string, event Event) (Notification, error)
	NotifyNewEvent(ctx context.Context, recipientID string, event Event) (Notification, error)
	NotifyCalendarShared(ctx context.Context, sharer Identity, recipientEmail, calendarName string) (Notification, error)
}

// NotificationService creates, lists and acknowledges notifications.
type NotificationService struct {
	notifications NotificationRepository
	users         UserDirectory
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService wires dependencies for the notification service.
func NewNotificationService(notifications NotificationRepository, users UserDirectory, idGenerator func() string, now func() time.Time) *NotificationService {
	return NewNotificationServiceWithLogger(notifications, users, idGenerator, now, nil)
}

// NewNotificationServiceWithLogger wires dependencies with a specific logger.
func NewNotificationServiceWithLogger(notifications NotificationRepository, users UserDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *NotificationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifications: notifications,
		users:         users,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

// NotifyReminder records an "Upcoming Event Reminder" for recipientID.
func (s *NotificationService) NotifyReminder(ctx context.Context, recipientID string, event Event) (Notification, error) {
	return s.create(ctx, "NotifyReminder", Notification{
		UserID:  recipientID,
		Title:   "Upcoming Event Reminder",
		Message: fmt.Sprintf(`Your event "%s" is coming up soon.`, event.Title),
		Type:    NotificationEventReminder,
		EventID: event.ID,
	})
}

// NotifyNewEvent records a "New Event Added" notification for recipientID.
func (s *NotificationService) NotifyNewEvent(ctx context.Context, recipientID string, event Event) (Notification, error) {
	return s.create(ctx, "NotifyNewEvent", Notification{
		UserID:  recipientID,
		Title:   "New Event Added",
		Message: fmt.Sprintf(`A new event "%s" has been added to your calendar.`, event.Title),
		Type:    NotificationNewEvent,
		EventID: event.ID,
	})
}

// NotifyCalendarShared tells the owner of recipientEmail that sharer shared a
// calendar. Unregistered recipients are addressed by the email itself so the
// notification is waiting once they sign up with it.
func (s *NotificationService) NotifyCalendarShared(ctx context.Context, sharer Identity, recipientEmail, calendarName string) (Notification, error) {
	if s == nil {
		return Notification{}, fmt.Errorf("NotificationService is nil")
	}
	recipient := normalizeEmail(recipientEmail)
	if s.users != nil {
		user, err := s.users.FindUserByEmail(ctx, recipient)
		switch {
		case err == nil && user.UID != "":
			recipient = user.UID
		case err != nil && !errors.Is(err, ErrNotFound):
			return Notification{}, err
		}
	}

	return s.create(ctx, "NotifyCalendarShared", Notification{
		UserID:  recipient,
		Title:   "Calendar Shared With You",
		Message: fmt.Sprintf(`%s has shared their "%s" calendar with you.`, sharerLabel(sharer), calendarName),
		Type:    NotificationSharedCalendar,
	})
}

func (s *NotificationService) create(ctx context.Context, operation string, notification Notification) (created Notification, err error) {
	if s == nil || s.notifications == nil {
		return Notification{}, fmt.Errorf("notification repository not configured")
	}
	logger := s.loggerWith(ctx, operation, "recipient_id", notification.UserID, "type", string(notification.Type))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create notification", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "notification created", "notification_id", created.ID)
	}()

	if strings.TrimSpace(notification.UserID) == "" {
		return Notification{}, newFieldError("userId", "recipient is required")
	}
	notification.ID = s.idGenerator()
	notification.Read = false
	notification.CreatedAt = s.now()
	return s.notifications.CreateNotification(ctx, notification)
}

// List returns the newest notifications of identity and the unread total.
func (s *NotificationService) List(ctx context.Context, identity Identity) (NotificationList, error) {
	if s == nil || s.notifications == nil {
		return NotificationList{}, fmt.Errorf("notification repository not configured")
	}
	if identity.UID == "" {
		return NotificationList{}, ErrUnauthorized
	}

	var items []Notification
	seen := make(map[string]struct{})
	for _, recipient := range recipientKeys(identity) {
		batch, err := s.notifications.ListNotificationsByUser(ctx, recipient)
		if err != nil {
			s.loggerWith(ctx, "List", "user_id", identity.UID).
				ErrorContext(ctx, "failed to list notifications", "error", err, errorKindAttr(err))
			return NotificationList{}, err
		}
		for _, n := range batch {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			items = append(items, n)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	list := NotificationList{}
	for _, n := range items {
		if !n.Read {
			list.UnreadCount++
		}
	}
	if len(items) > NotificationListLimit {
		items = items[:NotificationListLimit]
	}
	list.Items = items
	return list, nil
}

// MarkRead acknowledges one notification of identity.
func (s *NotificationService) MarkRead(ctx context.Context, identity Identity, id string) error {
	if s == nil || s.notifications == nil {
		return fmt.Errorf("notification repository not configured")
	}
	logger := s.loggerWith(ctx, "MarkRead", "user_id", identity.UID, "notification_id", id)

	notification, err := s.notifications.GetNotification(ctx, id)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load notification", "error", err, errorKindAttr(err))
		return err
	}
	// Someone else's notification looks the same as a missing one.
	if !addressedTo(notification, identity) {
		return ErrNotFound
	}
	if notification.Read {
		return nil
	}
	if err := s.notifications.MarkNotificationRead(ctx, id); err != nil {
		logger.ErrorContext(ctx, "failed to mark notification read", "error", err, errorKindAttr(err))
		return err
	}
	return nil
}

// MarkAllRead acknowledges every notification of identity.
func (s *NotificationService) MarkAllRead(ctx context.Context, identity Identity) error {
	if s == nil || s.notifications == nil {
		return fmt.Errorf("notification repository not configured")
	}
	if identity.UID == "" {
		return ErrUnauthorized
	}
	for _, recipient := range recipientKeys(identity) {
		if err := s.notifications.MarkAllNotificationsRead(ctx, recipient); err != nil {
			s.loggerWith(ctx, "MarkAllRead", "user_id", identity.UID).
				ErrorContext(ctx, "failed to mark notifications read", "error", err, errorKindAttr(err))
			return err
		}
	}
	return nil
}

// recipientKeys lists the ids a notification for identity may be stored
// under: the uid, and the email used before the account existed.
func recipientKeys(identity Identity) []string {
	keys := []string{identity.UID}
	if email := normalizeEmail(identity.Email); email != "" && email != identity.UID {
		keys = append(keys, email)
	}
	return keys
}

func addressedTo(notification Notification, identity Identity) bool {
	for _, key := range recipientKeys(identity) {
		if notification.UserID == key {
			return true
		}
	}
	return false
}

func sharerLabel(identity Identity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	return identity.Email
}
