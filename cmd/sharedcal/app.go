package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/shared-calendar/internal/adapter"
	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/config"
	httptransport "github.com/example/shared-calendar/internal/http"
	"github.com/example/shared-calendar/internal/ical"
	"github.com/example/shared-calendar/internal/jobs"
	"github.com/example/shared-calendar/internal/mail"
	"github.com/example/shared-calendar/internal/persistence"
	"github.com/example/shared-calendar/internal/persistence/memory"
	"github.com/example/shared-calendar/internal/persistence/sqlite"
)

// accessCacheTTL bounds how long search reuses a user's calendar id set.
const accessCacheTTL = time.Minute

type appOptions struct {
	insecureCookies bool
	now             func() time.Time
}

// app is a fully wired server: the HTTP handler plus the jobs that keep the
// store tidy.
type app struct {
	handler  http.Handler
	runner   *jobs.Runner
	services services
	close    func() error
}

type services struct {
	identity      *application.IdentityService
	notifications *application.NotificationService
	calendars     *application.CalendarService
	events        *application.EventService
	aggregator    *application.CalendarAggregator
	feed          *application.EventFeed
	search        *application.SearchService
}

// openRepositories opens the configured store. The returned function closes it.
func openRepositories(ctx context.Context, cfg config.Config, now func() time.Time, logger *slog.Logger) (adapter.Repositories, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.New(memory.WithClock(now))
		return adapter.Wrap(adapter.MemoryBackend(store)), store.Close, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{DSN: cfg.SQLiteDSN}, sqlite.WithClock(now), sqlite.WithLogger(logger))
		if err != nil {
			return adapter.Repositories{}, nil, fmt.Errorf("open storage: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return adapter.Repositories{}, nil, err
		}
		return adapter.Wrap(adapter.SQLiteBackend(store)), store.Close, nil
	}
	return adapter.Repositories{}, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

func buildServices(repos adapter.Repositories, cfg config.Config, inviter application.Inviter, now func() time.Time, logger *slog.Logger) services {
	ids := uuid.NewString

	identity := application.NewIdentityService(repos.Users, repos.Sessions, application.IdentityOptions{
		IDGenerator:    ids,
		TokenGenerator: func() string { return randomHex(32) },
		Now:            now,
		SessionTTL:     cfg.SessionTTL,
		Logger:         logger,
	})
	notifications := application.NewNotificationServiceWithLogger(repos.Notifications, identity, ids, now, logger)
	events := application.NewEventServiceWithLogger(repos.Events, repos.Calendars, notifications, ids, now, logger)
	events.SetBatchSize(persistence.MaxInFilterValues)
	aggregator := application.NewCalendarAggregator(repos.Calendars, logger)

	return services{
		identity:      identity,
		notifications: notifications,
		calendars:     application.NewCalendarServiceWithLogger(repos.Calendars, notifications, inviter, ids, now, logger),
		events:        events,
		aggregator:    aggregator,
		feed: application.NewEventFeed(repos.Events, notifications, application.EventFeedConfig{
			BatchSize:      persistence.MaxInFilterValues,
			ReminderWindow: cfg.ReminderWindow,
			Location:       cfg.Location,
			Access:         aggregator,
		}, now, logger),
		search: application.NewSearchService(repos.Events, repos.Calendars, application.SearchOptions{
			AccessTTL: accessCacheTTL,
			BatchSize: persistence.MaxInFilterValues,
			Now:       now,
			Logger:    logger,
		}),
	}
}

// newInviter returns nil when SMTP is not configured, so sharing skips the
// invitation mail.
func newInviter(cfg config.SMTPConfig, logger *slog.Logger) (application.Inviter, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	inviter, err := mail.NewInviter(mail.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		BaseURL:  cfg.BaseURL,
	}, logger)
	if err != nil {
		return nil, err
	}
	return inviter, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	now := opts.now
	if now == nil {
		now = time.Now
	}

	repos, closeStore, err := openRepositories(ctx, cfg, now, logger)
	if err != nil {
		return nil, err
	}
	inviter, err := newInviter(cfg.SMTP, logger)
	if err != nil {
		closeStore()
		return nil, err
	}
	svc := buildServices(repos, cfg, inviter, now, logger)

	var authOpts []httptransport.AuthOption
	if opts.insecureCookies {
		authOpts = append(authOpts, httptransport.WithInsecureCookies())
	}
	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth: httptransport.NewAuthHandler(svc.identity, logger, authOpts...),
		Calendars: httptransport.NewCalendarHandler(httptransport.CalendarConfig{
			Calendars:   svc.calendars,
			Sessions:    svc.aggregator,
			Events:      svc.events,
			Importer:    ical.NewImporter(svc.events, now, logger),
			Access:      svc.search,
			IDGenerator: uuid.NewString,
			Now:         now,
			Location:    cfg.Location,
			Logger:      logger,
		}),
		Events: httptransport.NewEventHandler(httptransport.EventConfig{
			Events:       svc.events,
			Calendars:    svc.aggregator,
			Feed:         svc.feed,
			Location:     cfg.Location,
			WeekStartsOn: cfg.WeekStartsOn,
			Now:          now,
			Logger:       logger,
		}),
		Search:        httptransport.NewSearchHandler(svc.search, cfg.Location, logger),
		Notifications: httptransport.NewNotificationHandler(svc.notifications, logger),
		Sessions:      svc.identity,
		Logger:        logger,
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	runner := jobs.NewRunner(jobs.WithLocation(cfg.Location), jobs.WithLogger(logger))
	for _, job := range []jobs.Job{
		jobs.SessionCleanupJob(cfg.SessionCleanupSchedule, svc.identity, now, logger),
		jobs.ReminderSweepJob(cfg.ReminderSweepSchedule, svc.feed, logger),
	} {
		if err := runner.Add(job); err != nil {
			closeStore()
			return nil, err
		}
	}

	return &app{handler: handler, runner: runner, services: svc, close: closeStore}, nil
}

// serve runs the HTTP server until ctx is cancelled, then drains it and the
// job runner.
func (a *app) serve(ctx context.Context, addr string, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Event streams end with ctx instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	a.runner.Start()
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
		if err := a.runner.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop jobs", "error", err)
		}
	}()

	logger.Info("shared calendar API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	<-shutdownDone
	return nil
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
