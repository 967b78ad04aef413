package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/shared-calendar/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository.
type NotificationRepository struct {
	*repository
}

var _ persistence.NotificationRepository = (*NotificationRepository)(nil)

const notificationColumns = `id, schema_version, user_id, title, message, type, event_id, is_read, created_at`

// CreateNotification stores a new notification.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notification persistence.Notification) (persistence.Notification, error) {
	if strings.TrimSpace(notification.ID) == "" || strings.TrimSpace(notification.UserID) == "" {
		return persistence.Notification{}, persistence.ErrConstraintViolation
	}
	notification.CreatedAt = r.timestamp()
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID, persistence.SchemaVersion, notification.UserID, notification.Title, notification.Message,
		notification.Type, notification.EventID, boolToInt(notification.Read), formatTime(notification.CreatedAt),
	)
	if err != nil {
		return persistence.Notification{}, r.mapper.MapError(err)
	}
	r.watcher.Notify(persistence.CollectionNotifications)
	return notification, nil
}

// GetNotification retrieves a notification by ID.
func (r *NotificationRepository) GetNotification(ctx context.Context, id string) (persistence.Notification, error) {
	notifications, err := r.query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if err != nil {
		return persistence.Notification{}, err
	}
	if len(notifications) == 0 {
		return persistence.Notification{}, persistence.ErrNotFound
	}
	return notifications[0], nil
}

// ListNotificationsByUser returns a recipient's notifications, newest first.
func (r *NotificationRepository) ListNotificationsByUser(ctx context.Context, userID string) ([]persistence.Notification, error) {
	return r.query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
}

// MarkNotificationRead sets the read flag of one notification.
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := r.pool.DB().ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	r.watcher.Notify(persistence.CollectionNotifications)
	return nil
}

// MarkAllNotificationsRead sets the read flag on every unread notification of userID.
func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	res, err := r.pool.DB().ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.watcher.Notify(persistence.CollectionNotifications)
	}
	return nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...any) ([]persistence.Notification, error) {
	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var notifications []persistence.Notification
	for rows.Next() {
		var (
			n             persistence.Notification
			version, read int
			createdAt     string
		)
		if err := rows.Scan(&n.ID, &version, &n.UserID, &n.Title, &n.Message, &n.Type, &n.EventID, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := persistence.CheckSchemaVersion(persistence.CollectionNotifications, n.ID, version); err != nil {
			return nil, err
		}
		n.Read = read != 0
		if n.CreatedAt, err = decodeTime(persistence.CollectionNotifications, n.ID, "createdAt", createdAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, nil
}
