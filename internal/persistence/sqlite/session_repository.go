package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository.
type SessionRepository struct {
	*repository
}

var _ persistence.SessionRepository = (*SessionRepository)(nil)

// CreateSession stores a new session. The user must exist.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	if session.ID == "" || session.UserID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	session.CreatedAt = r.timestamp()
	session.ExpiresAt = session.ExpiresAt.UTC()

	var revokedAt any
	if session.RevokedAt != nil {
		at := session.RevokedAt.UTC()
		session.RevokedAt = &at
		revokedAt = formatTime(at)
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Token, formatTime(session.ExpiresAt), formatTime(session.CreatedAt), revokedAt,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by its token value.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	var (
		session              persistence.Session
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := r.pool.DB().QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at, revoked_at
		FROM sessions WHERE token = ?`, strings.TrimSpace(token),
	).Scan(&session.ID, &session.UserID, &session.Token, &expiresAt, &createdAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	if session.ExpiresAt, err = decodeTime(persistence.CollectionSessions, session.ID, "expiresAt", expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = decodeTime(persistence.CollectionSessions, session.ID, "createdAt", createdAt); err != nil {
		return persistence.Session{}, err
	}
	if revokedAt.Valid {
		at, err := decodeTime(persistence.CollectionSessions, session.ID, "revokedAt", revokedAt.String)
		if err != nil {
			return persistence.Session{}, err
		}
		session.RevokedAt = &at
	}
	return session, nil
}

// RevokeSession marks a session as revoked.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	res, err := r.pool.DB().ExecContext(ctx, `UPDATE sessions SET revoked_at = ? WHERE token = ?`,
		formatTime(revokedAt), strings.TrimSpace(token))
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
	return nil
}

// DeleteExpiredSessions removes sessions that expired or were revoked at or
// before reference and reports how many were removed.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	ref := formatTime(reference)
	res, err := r.pool.DB().ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at <= ? OR (revoked_at IS NOT NULL AND revoked_at <= ?)`, ref, ref)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
