package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultSessionTTL is the lifetime of a login session when none is configured.
const DefaultSessionTTL = 24 * time.Hour

// UserRepository captures the persistence operations for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user UserCredentials) error
	UpdateUser(ctx context.Context, user UserCredentials) error
	GetUser(ctx context.Context, id string) (UserCredentials, error)
	GetUserByEmail(ctx context.Context, email string) (UserCredentials, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error)
}

// IdentityService registers accounts and issues the session tokens that
// resolve to an Identity on every request.
type IdentityService struct {
	users          UserRepository
	sessions       SessionRepository
	hashPassword   PasswordHasher
	verifyPassword PasswordVerifier
	idGenerator    func() string
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

var _ UserDirectory = (*IdentityService)(nil)

// IdentityOptions overrides IdentityService defaults.
type IdentityOptions struct {
	HashPassword   PasswordHasher
	VerifyPassword PasswordVerifier
	IDGenerator    func() string
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(users UserRepository, sessions SessionRepository, opts IdentityOptions) *IdentityService {
	if opts.HashPassword == nil {
		opts.HashPassword = HashPassword
	}
	if opts.VerifyPassword == nil {
		opts.VerifyPassword = VerifyPassword
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = func() string { return "" }
	}
	if opts.TokenGenerator == nil {
		opts.TokenGenerator = opts.IDGenerator
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &IdentityService{
		users:          users,
		sessions:       sessions,
		hashPassword:   opts.HashPassword,
		verifyPassword: opts.VerifyPassword,
		idGenerator:    opts.IDGenerator,
		tokenGenerator: opts.TokenGenerator,
		now:            opts.Now,
		sessionTTL:     opts.SessionTTL,
		logger:         defaultLogger(opts.Logger),
	}
}

func (s *IdentityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "IdentityService", operation, attrs...)
}

func (s *IdentityService) configured() error {
	if s == nil {
		return fmt.Errorf("IdentityService is nil")
	}
	if s.users == nil || s.sessions == nil {
		return fmt.Errorf("identity repositories not configured")
	}
	return nil
}

// Register creates an account and signs it in.
func (s *IdentityService) Register(ctx context.Context, params RegisterParams) (result LoginResult, err error) {
	if err = s.configured(); err != nil {
		return LoginResult{}, err
	}
	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "user registered", "user_id", result.Identity.UID)
	}()

	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "Please enter an email address")
	} else if !emailPattern.MatchString(email) {
		vErr.add("email", "Please enter a valid email address")
	}
	validateNewPassword(vErr, "password", params.Password)
	if vErr.HasErrors() {
		return LoginResult{}, vErr
	}

	if _, lookupErr := s.users.GetUserByEmail(ctx, email); lookupErr == nil {
		return LoginResult{}, ErrAlreadyExists
	} else if !errors.Is(lookupErr, ErrNotFound) {
		return LoginResult{}, lookupErr
	}

	hash, err := s.hashPassword(params.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash password: %w", err)
	}
	user := UserCredentials{
		Identity: Identity{
			UID:         s.idGenerator(),
			Email:       email,
			DisplayName: strings.TrimSpace(params.DisplayName),
		},
		PasswordHash: hash,
	}
	if err = s.users.CreateUser(ctx, user); err != nil {
		return LoginResult{}, err
	}

	session, err := s.issueSession(ctx, user.Identity.UID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Identity: user.Identity, Session: session}, nil
}

// Login validates credentials and issues a new session token. Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *IdentityService) Login(ctx context.Context, params LoginParams) (result LoginResult, err error) {
	if err = s.configured(); err != nil {
		return LoginResult{}, err
	}
	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Login", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, errorKindAttr(err))
			return
		}
		logger.With("user_id", result.Identity.UID, "session_id", result.Session.ID).
			InfoContext(ctx, "login succeeded")
	}()

	if email == "" || params.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err = s.verifyPassword(user.PasswordHash, params.Password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	session, err := s.issueSession(ctx, user.Identity.UID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Identity: user.Identity, Session: session}, nil
}

func (s *IdentityService) issueSession(ctx context.Context, userID string) (Session, error) {
	now := s.now()
	id := s.idGenerator()
	token := s.tokenGenerator()
	if token == "" {
		token = id
	}
	return s.sessions.CreateSession(ctx, Session{
		ID:        id,
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	})
}

// Logout revokes the session behind token.
func (s *IdentityService) Logout(ctx context.Context, token string) error {
	if err := s.configured(); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}
	logger := s.loggerWith(ctx, "Logout")
	if err := s.sessions.RevokeSession(ctx, trimmed, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrInvalidCredentials
		}
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, errorKindAttr(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked")
	return nil
}

// ValidateSession resolves token to the identity it was issued for.
func (s *IdentityService) ValidateSession(ctx context.Context, token string) (identity Identity, err error) {
	if err = s.configured(); err != nil {
		return Identity{}, err
	}
	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, errorKindAttr(err))
		}
	}()

	if trimmed == "" {
		return Identity{}, ErrUnauthorized
	}
	session, err := s.sessions.GetSession(ctx, trimmed)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, err
	}
	now := s.now()
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return Identity{}, ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(now) {
		return Identity{}, ErrSessionExpired
	}

	user, err := s.users.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, err
	}
	return user.Identity, nil
}

// UpdateProfile changes the display name and photo of the caller.
func (s *IdentityService) UpdateProfile(ctx context.Context, params UpdateProfileParams) (identity Identity, err error) {
	if err = s.configured(); err != nil {
		return Identity{}, err
	}
	logger := s.loggerWith(ctx, "UpdateProfile", "user_id", params.Identity.UID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update profile", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	user, err := s.currentUser(ctx, params.Identity)
	if err != nil {
		return Identity{}, err
	}
	user.Identity.DisplayName = strings.TrimSpace(params.DisplayName)
	user.Identity.PhotoURL = strings.TrimSpace(params.PhotoURL)
	if err = s.users.UpdateUser(ctx, user); err != nil {
		return Identity{}, err
	}
	return user.Identity, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *IdentityService) ChangePassword(ctx context.Context, params ChangePasswordParams) (err error) {
	if err = s.configured(); err != nil {
		return err
	}
	logger := s.loggerWith(ctx, "ChangePassword", "user_id", params.Identity.UID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change password", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "password changed")
	}()

	vErr := &ValidationError{}
	validateNewPassword(vErr, "newPassword", params.NewPassword)
	if vErr.HasErrors() {
		return vErr
	}
	user, err := s.currentUser(ctx, params.Identity)
	if err != nil {
		return err
	}
	if err = s.verifyPassword(user.PasswordHash, params.CurrentPassword); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hashPassword(params.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	return s.users.UpdateUser(ctx, user)
}

// FindUserByEmail resolves a registered account by email.
func (s *IdentityService) FindUserByEmail(ctx context.Context, email string) (Identity, error) {
	if err := s.configured(); err != nil {
		return Identity{}, err
	}
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Identity{}, err
	}
	return user.Identity, nil
}

// PurgeSessions deletes sessions that expired or were revoked before reference.
func (s *IdentityService) PurgeSessions(ctx context.Context, reference time.Time) (int, error) {
	if err := s.configured(); err != nil {
		return 0, err
	}
	removed, err := s.sessions.DeleteExpiredSessions(ctx, reference)
	if err != nil {
		s.loggerWith(ctx, "PurgeSessions").ErrorContext(ctx, "failed to purge sessions", "error", err, errorKindAttr(err))
		return 0, err
	}
	return removed, nil
}

func (s *IdentityService) currentUser(ctx context.Context, identity Identity) (UserCredentials, error) {
	if identity.UID == "" {
		return UserCredentials{}, ErrUnauthorized
	}
	user, err := s.users.GetUser(ctx, identity.UID)
	if errors.Is(err, ErrNotFound) {
		return UserCredentials{}, ErrUnauthorized
	}
	return user, err
}

func validateNewPassword(vErr *ValidationError, field, password string) {
	if len([]rune(password)) < MinPasswordLength {
		vErr.add(field, fmt.Sprintf("Password should be at least %d characters", MinPasswordLength))
	}
}
