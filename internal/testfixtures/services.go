package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/shared-calendar/internal/adapter"
	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/persistence"
)

// FastPasswordParams keeps argon2id cheap enough for tests.
var FastPasswordParams = application.Argon2idParams{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  8,
	KeyLength:   16,
}

// FastHashPassword hashes with FastPasswordParams. application.VerifyPassword
// reads the parameters back from the hash.
func FastHashPassword(password string) (string, error) {
	return application.CreatePasswordHash(password, FastPasswordParams)
}

// ServiceFactory constructs application services with deterministic
// identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Clock = clock }
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.IDGenerator = generator }
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) { factory.Logger = logger }
}

// Services is a fully wired application layer.
type Services struct {
	Identity      *application.IdentityService
	Notifications *application.NotificationService
	Calendars     *application.CalendarService
	Events        *application.EventService
	Aggregator    *application.CalendarAggregator
	Feed          *application.EventFeed
	Search        *application.SearchService
}

// Build wires every service over repos. inviter may be nil.
func (f *ServiceFactory) Build(repos adapter.Repositories, inviter application.Inviter) Services {
	ids := f.IDGenerator.NextFunc()
	now := f.Clock.NowFunc()

	identity := application.NewIdentityService(repos.Users, repos.Sessions, application.IdentityOptions{
		HashPassword: FastHashPassword,
		IDGenerator:  ids,
		Now:          now,
		Logger:       f.Logger,
	})
	notifications := application.NewNotificationServiceWithLogger(repos.Notifications, identity, ids, now, f.Logger)
	events := application.NewEventServiceWithLogger(repos.Events, repos.Calendars, notifications, ids, now, f.Logger)
	events.SetBatchSize(persistence.MaxInFilterValues)
	aggregator := application.NewCalendarAggregator(repos.Calendars, f.Logger)

	return Services{
		Identity:      identity,
		Notifications: notifications,
		Calendars:     application.NewCalendarServiceWithLogger(repos.Calendars, notifications, inviter, ids, now, f.Logger),
		Events:        events,
		Aggregator:    aggregator,
		Feed: application.NewEventFeed(repos.Events, notifications, application.EventFeedConfig{
			BatchSize: persistence.MaxInFilterValues,
			Access:    aggregator,
		}, now, f.Logger),
		Search: application.NewSearchService(repos.Events, repos.Calendars, application.SearchOptions{
			BatchSize: persistence.MaxInFilterValues,
			Now:       now,
			Logger:    f.Logger,
		}),
	}
}
