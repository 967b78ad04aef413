package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/shared-calendar/internal/persistence"
)

// UserRepository implements persistence.UserRepository.
type UserRepository struct {
	*repository
}

var _ persistence.UserRepository = (*UserRepository)(nil)

// CreateUser inserts a new user. Email uniqueness ignores case.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}
	now := r.timestamp()
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, photo_url, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, normalizeEmail(user.Email), user.DisplayName, user.PhotoURL, user.PasswordHash,
		formatTime(now), formatTime(now),
	)
	return r.mapper.MapError(err)
}

// UpdateUser updates an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}
	res, err := r.pool.DB().ExecContext(ctx, `
		UPDATE users
		SET email = ?, display_name = ?, photo_url = ?, password_hash = ?, updated_at = ?
		WHERE id = ?`,
		normalizeEmail(user.Email), user.DisplayName, user.PhotoURL, user.PasswordHash,
		formatTime(r.timestamp()), user.ID,
	)
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

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.scanUser(r.pool.DB().QueryRowContext(ctx, `
		SELECT id, email, display_name, photo_url, password_hash, created_at, updated_at
		FROM users WHERE id = ?`, id))
}

// GetUserByEmail retrieves a user by email address, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.scanUser(r.pool.DB().QueryRowContext(ctx, `
		SELECT id, email, display_name, photo_url, password_hash, created_at, updated_at
		FROM users WHERE email = ?`, normalized))
}

func (r *UserRepository) scanUser(row *sql.Row) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PhotoURL, &user.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.User{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	if user.CreatedAt, err = decodeTime(persistence.CollectionUsers, user.ID, "createdAt", createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = decodeTime(persistence.CollectionUsers, user.ID, "updatedAt", updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
