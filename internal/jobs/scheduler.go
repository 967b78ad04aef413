// Package jobs runs the periodic maintenance of a running server on cron
// schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Runner schedules Jobs on a cron.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// Option configures a Runner.
type Option func(*options)

type options struct {
	location *time.Location
	logger   *slog.Logger
}

// WithLocation evaluates schedules in loc.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger routes job logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewRunner builds an idle Runner. Schedules use the standard five field
// syntax plus descriptors such as @every 5m.
func NewRunner(opts ...Option) *Runner {
	o := options{location: time.UTC, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:    cron.New(cron.WithLocation(o.location), cron.WithChain(cron.Recover(cron.DiscardLogger))),
		logger:  o.logger.With("component", "jobs"),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job. An empty schedule disables it.
func (r *Runner) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("jobs: job requires a name and a run function")
	}
	if job.Schedule == "" {
		r.logger.Info("job disabled", "job", job.Name)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[job.Name]; exists {
		return fmt.Errorf("jobs: %q already registered", job.Name)
	}
	id, err := r.cron.AddFunc(job.Schedule, func() { r.execute(job) })
	if err != nil {
		return fmt.Errorf("jobs: schedule %q for %s: %w", job.Schedule, job.Name, err)
	}
	r.entries[job.Name] = id
	return nil
}

// RunNow executes the named job synchronously.
func (r *Runner) RunNow(name string, run func(ctx context.Context) error) error {
	return r.execute(Job{Name: name, Run: run})
}

func (r *Runner) execute(job Job) error {
	logger := r.logger.With("job", job.Name)
	started := time.Now()
	err := job.Run(r.ctx)
	if err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(started))
		return err
	}
	logger.Debug("job completed", "duration", time.Since(started))
	return nil
}

// Jobs lists the registered job names with their next activation.
func (r *Runner) Jobs() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.entries))
	for name, id := range r.entries {
		out[name] = r.cron.Entry(id).Next
	}
	return out
}

// Start begins running schedules in the background.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them until ctx
// expires.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	r.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
