// Package sqlite implements the persistence repositories on SQLite through
// modernc.org/sqlite. Live watches are driven by this process's own writes,
// so several processes sharing one database file do not see each other's
// changes until their next write or query.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/shared-calendar/internal/persistence"
	"github.com/example/shared-calendar/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles the SQLite repositories that share one connection pool and
// one change watcher.
type Store struct {
	pool    *ConnectionPool
	watcher *persistence.Watcher
	logger  *slog.Logger

	Calendars     *CalendarRepository
	Events        *EventRepository
	Notifications *NotificationRepository
	Users         *UserRepository
	Sessions      *SessionRepository
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	now    func() time.Time
	logger *slog.Logger
}

// WithClock sets the source of server-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger used for migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	options := storeOptions{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	base := &repository{pool: pool, watcher: persistence.NewWatcher(), now: options.now}
	return &Store{
		pool:          pool,
		watcher:       base.watcher,
		logger:        options.logger,
		Calendars:     &CalendarRepository{repository: base},
		Events:        &EventRepository{repository: base},
		Notifications: &NotificationRepository{repository: base},
		Users:         &UserRepository{repository: base},
		Sessions:      &SessionRepository{repository: base},
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewExecutor(s.pool.DB()),
		s.logger,
	)
	if _, err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

// MigrationStatus reports applied and pending schema migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewExecutor(s.pool.DB()),
		s.logger,
	)
	return manager.Status(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Watches reports the number of live subscriptions.
func (s *Store) Watches() int {
	return s.watcher.Len()
}

// repository carries what every SQLite repository needs.
type repository struct {
	pool    *ConnectionPool
	watcher *persistence.Watcher
	mapper  ErrorMapper
	now     func() time.Time
}

func (r *repository) timestamp() time.Time {
	return r.now().UTC()
}
