package memory

import (
	"context"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/persistence"
)

// --- NotificationRepository implementation ---

// CreateNotification stores a new notification.
func (s *Store) CreateNotification(ctx context.Context, notification persistence.Notification) (persistence.Notification, error) {
	if strings.TrimSpace(notification.ID) == "" || strings.TrimSpace(notification.UserID) == "" {
		return persistence.Notification{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	if _, ok := s.docs[persistence.CollectionNotifications][notification.ID]; ok {
		s.mu.Unlock()
		return persistence.Notification{}, persistence.ErrDuplicate
	}
	notification.CreatedAt = s.timestamp()
	doc := persistence.EncodeNotification(notification)
	s.docs[persistence.CollectionNotifications][notification.ID] = doc
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionNotifications)
	return persistence.DecodeNotification(notification.ID, doc)
}

// GetNotification retrieves a notification by ID.
func (s *Store) GetNotification(ctx context.Context, id string) (persistence.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[persistence.CollectionNotifications][id]
	if !ok {
		return persistence.Notification{}, persistence.ErrNotFound
	}
	return persistence.DecodeNotification(id, doc)
}

// ListNotificationsByUser returns a recipient's notifications, newest first.
func (s *Store) ListNotificationsByUser(ctx context.Context, userID string) ([]persistence.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryLocked(persistence.CollectionNotifications, Filter{Field: "userId", Op: OpEqual, Value: userID})
	if err != nil {
		return nil, err
	}
	out := make([]persistence.Notification, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		n, err := persistence.DecodeNotification(entries[i].id, entries[i].doc)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead sets the read flag of one notification.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	doc, ok := s.docs[persistence.CollectionNotifications][id]
	if !ok {
		s.mu.Unlock()
		return persistence.ErrNotFound
	}
	updated := doc.Clone()
	updated["read"] = true
	s.docs[persistence.CollectionNotifications][id] = updated
	s.mu.Unlock()

	s.watcher.Notify(persistence.CollectionNotifications)
	return nil
}

// MarkAllNotificationsRead sets the read flag on every unread notification of userID.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	entries, err := s.queryLocked(persistence.CollectionNotifications,
		Filter{Field: "userId", Op: OpEqual, Value: userID},
		Filter{Field: "read", Op: OpEqual, Value: false},
	)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	for _, e := range entries {
		updated := e.doc.Clone()
		updated["read"] = true
		s.docs[persistence.CollectionNotifications][e.id] = updated
	}
	s.mu.Unlock()

	if len(entries) > 0 {
		s.watcher.Notify(persistence.CollectionNotifications)
	}
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user. Email uniqueness ignores case.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return persistence.ErrDuplicate
	}
	if err := s.ensureUniqueEmailLocked(user.ID, user.Email); err != nil {
		return err
	}

	now := s.timestamp()
	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = user
	return nil
}

// UpdateUser updates an existing user.
func (s *Store) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueEmailLocked(user.ID, user.Email); err != nil {
		return err
	}

	user.Email = normalizeEmail(user.Email)
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = s.timestamp()
	s.users[user.ID] = user
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := normalizeEmail(email)
	for _, user := range s.users {
		if normalizeEmail(user.Email) == lower {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

func (s *Store) ensureUniqueEmailLocked(id, email string) error {
	lower := normalizeEmail(email)
	for existingID, user := range s.users {
		if existingID != id && normalizeEmail(user.Email) == lower {
			return persistence.ErrDuplicate
		}
	}
	return nil
}

// --- SessionRepository implementation ---

// CreateSession stores a new session keyed by token.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == "" || strings.TrimSpace(session.Token) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[session.UserID]; !ok {
		return persistence.Session{}, persistence.ErrForeignKeyViolation
	}
	if _, ok := s.sessions[session.Token]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}
	session.CreatedAt = s.timestamp()
	s.sessions[session.Token] = cloneSession(session)
	return cloneSession(session), nil
}

// GetSession retrieves a session by its token value.
func (s *Store) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[strings.TrimSpace(token)]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

// RevokeSession marks a session as revoked.
func (s *Store) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(token)
	session, ok := s.sessions[key]
	if !ok {
		return persistence.ErrNotFound
	}
	at := revokedAt.UTC()
	session.RevokedAt = &at
	s.sessions[key] = session
	return nil
}

// DeleteExpiredSessions removes sessions that expired or were revoked before reference.
func (s *Store) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if !session.ExpiresAt.After(reference) || (session.RevokedAt != nil && !session.RevokedAt.After(reference)) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func cloneSession(session persistence.Session) persistence.Session {
	if session.RevokedAt != nil {
		at := *session.RevokedAt
		session.RevokedAt = &at
	}
	return session
}
