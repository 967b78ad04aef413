package jobs

import (
	"context"
	"log/slog"
	"time"
)

// Names of the built-in jobs.
const (
	SessionCleanup = "session-cleanup"
	ReminderSweep  = "reminder-sweep"
)

// SessionPurger deletes expired sessions.
type SessionPurger interface {
	PurgeSessions(ctx context.Context, now time.Time) (int, error)
}

// ReminderSweeper re-evaluates reminders for live subscriptions.
type ReminderSweeper interface {
	Sweep(ctx context.Context) int
}

// SessionCleanupJob purges sessions that expired before now().
func SessionCleanupJob(schedule string, purger SessionPurger, now func() time.Time, logger *slog.Logger) Job {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     SessionCleanup,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			removed, err := purger.PurgeSessions(ctx, now())
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.InfoContext(ctx, "expired sessions purged", "job", SessionCleanup, "removed", removed)
			}
			return nil
		},
	}
}

// ReminderSweepJob reminds subscribers of events that entered the reminder
// window since their last snapshot.
func ReminderSweepJob(schedule string, sweeper ReminderSweeper, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     ReminderSweep,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if swept := sweeper.Sweep(ctx); swept > 0 {
				logger.DebugContext(ctx, "reminders swept", "job", ReminderSweep, "subscriptions", swept)
			}
			return nil
		},
	}
}
