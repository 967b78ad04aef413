package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultReminderWindow is how far ahead an event triggers a reminder.
const DefaultReminderWindow = 30 * time.Minute

// EventFeedConfig tunes an EventFeed.
type EventFeedConfig struct {
	// BatchSize caps the calendar ids per store subscription.
	BatchSize int
	// ReminderWindow is the look-ahead of the reminder evaluator.
	ReminderWindow time.Duration
	// Location converts event times before delivery. Nil keeps them as stored.
	Location *time.Location
	// Access restricts every id set to the calendars the subscriber can
	// access. Nil trusts the ids as given.
	Access CalendarAccess
}

// CalendarAccess resolves the calendar ids an identity may read.
type CalendarAccess interface {
	AccessibleCalendarIDs(ctx context.Context, identity Identity) ([]string, error)
}

// EventFeed turns store watches into merged event snapshots and evaluates
// reminders on every delivery.
type EventFeed struct {
	events   EventRepository
	notifier Notifier
	cfg      EventFeedConfig
	now      func() time.Time
	logger   *slog.Logger

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}
}

// NewEventFeed wires the feed. notifier is optional; without it no reminders
// are recorded.
func NewEventFeed(events EventRepository, notifier Notifier, cfg EventFeedConfig, now func() time.Time, logger *slog.Logger) *EventFeed {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = DefaultReminderWindow
	}
	if now == nil {
		now = time.Now
	}
	return &EventFeed{
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		now:      now,
		logger:   defaultLogger(logger),
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscription is a live view over the events of a calendar id set.
type Subscription struct {
	feed     *EventFeed
	ctx      context.Context
	identity Identity
	onUpdate func(EventSnapshot)

	deliverMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	cancels    []func()
	results    [][]Event
	reported   []bool
	latest     []Event
	closed     bool
}

// Subscribe opens a subscription for identity over calendarIDs. onUpdate
// receives a snapshot after every change; an empty id set yields a single
// empty snapshot and no store watch. onUpdate may call SetCalendars or Close.
func (f *EventFeed) Subscribe(ctx context.Context, identity Identity, calendarIDs []string, onUpdate func(EventSnapshot)) *Subscription {
	if ctx == nil {
		ctx = context.Background()
	}
	if onUpdate == nil {
		onUpdate = func(EventSnapshot) {}
	}
	s := &Subscription{
		feed:     f,
		ctx:      ctx,
		identity: identity,
		onUpdate: onUpdate,
	}
	f.subsMu.Lock()
	f.subs[s] = struct{}{}
	f.subsMu.Unlock()
	s.SetCalendars(calendarIDs)
	return s
}

// Sweep re-evaluates reminders against the last snapshot of every open
// subscription, so events drifting into the window are reminded without a
// store change. It returns the number of subscriptions evaluated.
func (f *EventFeed) Sweep(ctx context.Context) int {
	f.subsMu.Lock()
	subs := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.subsMu.Unlock()

	swept := 0
	for _, s := range subs {
		s.mu.Lock()
		events := s.latest
		closed := s.closed
		s.mu.Unlock()
		if closed || events == nil {
			continue
		}
		f.remind(ctx, s.identity, events)
		swept++
	}
	return swept
}

// Open reports the number of live subscriptions.
func (f *EventFeed) Open() int {
	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	return len(f.subs)
}

// SetCalendars replaces the watched id set. Ids the subscriber cannot access
// are dropped. Deliveries of the previous set that are still in flight are
// discarded.
func (s *Subscription) SetCalendars(calendarIDs []string) {
	calendarIDs, accessErr := s.permitted(calendarIDs)
	batches := chunkIDs(calendarIDs, s.feed.cfg.BatchSize)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	old := s.cancels
	s.cancels = nil
	s.latest = nil
	s.results = make([][]Event, len(batches))
	s.reported = make([]bool, len(batches))
	s.mu.Unlock()

	for _, cancel := range old {
		cancel()
	}

	if len(batches) == 0 {
		s.onUpdate(EventSnapshot{Events: []Event{}, Err: accessErr, Generation: gen})
		return
	}

	logger := s.loggerWith("SetCalendars", "generation", gen, "batches", len(batches))
	cancels := make([]func(), 0, len(batches))
	for i, batch := range batches {
		index := i
		cancel, err := s.feed.events.WatchEventsByCalendars(s.ctx, batch, func(events []Event, err error) {
			s.receive(gen, index, events, err)
		})
		if err != nil {
			// The batch counts as reported and empty so the others still deliver.
			logger.ErrorContext(s.ctx, "failed to open event watch", "error", err, errorKindAttr(err))
			s.mu.Lock()
			current := !s.closed && s.generation == gen
			if current {
				s.reported[index] = true
			}
			s.mu.Unlock()
			if current {
				s.onUpdate(EventSnapshot{Events: []Event{}, Err: fmt.Errorf("watch events: %w", err), Generation: gen})
			}
			continue
		}
		cancels = append(cancels, cancel)
	}

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
		return
	}
	s.cancels = cancels
	s.mu.Unlock()
}

// Generation reports the token of the current id set.
func (s *Subscription) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Close stops every store watch. Later deliveries are dropped.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	cancels := s.cancels
	s.cancels = nil
	s.latest = nil
	s.mu.Unlock()

	s.feed.subsMu.Lock()
	delete(s.feed.subs, s)
	s.feed.subsMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// permitted intersects ids with the subscriber's accessible calendars. A
// failed lookup permits nothing.
func (s *Subscription) permitted(ids []string) ([]string, error) {
	access := s.feed.cfg.Access
	if access == nil || len(ids) == 0 {
		return ids, nil
	}
	if s.identity.UID == "" {
		return nil, ErrUnauthorized
	}
	accessible, err := access.AccessibleCalendarIDs(s.ctx, s.identity)
	if err != nil {
		s.loggerWith("SetCalendars").WarnContext(s.ctx, "failed to resolve accessible calendars", "error", err, errorKindAttr(err))
		return nil, fmt.Errorf("resolve calendars: %w", err)
	}
	allowed := intersectIDs(ids, accessible)
	if dropped := len(ids) - len(allowed); dropped > 0 {
		s.loggerWith("SetCalendars", "dropped", dropped).DebugContext(s.ctx, "ignored inaccessible calendars")
	}
	return allowed, nil
}

func (s *Subscription) loggerWith(operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"user_id", s.identity.UID}, attrs...)
	return serviceLogger(s.ctx, s.feed.logger, "EventFeed", operation, pairs...)
}

// receive records the result of one batch and delivers the merged snapshot
// once every batch of the generation has reported.
func (s *Subscription) receive(gen uint64, index int, events []Event, err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.generation || index >= len(s.results) {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.loggerWith("receive", "generation", gen, "batch", index).
			WarnContext(s.ctx, "event watch failed", "error", err, errorKindAttr(err))
		s.onUpdate(EventSnapshot{Events: []Event{}, Err: fmt.Errorf("watch events: %w", err), Generation: gen})
		return
	}
	s.results[index] = s.feed.localize(events)
	s.reported[index] = true
	for _, ok := range s.reported {
		if !ok {
			s.mu.Unlock()
			return
		}
	}
	merged := make([]Event, 0)
	for _, batch := range s.results {
		merged = append(merged, batch...)
	}
	s.latest = merged
	s.mu.Unlock()

	s.feed.remind(s.ctx, s.identity, merged)
	s.onUpdate(EventSnapshot{Events: merged, Generation: gen})
}

func (f *EventFeed) localize(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	if f.cfg.Location == nil {
		return out
	}
	for i := range out {
		out[i].Start = out[i].Start.In(f.cfg.Location)
		out[i].End = out[i].End.In(f.cfg.Location)
	}
	return out
}

// remind records one reminder per due event. Repeated snapshots repeat the
// reminders; nothing remembers earlier evaluations.
func (f *EventFeed) remind(ctx context.Context, identity Identity, events []Event) {
	if f.notifier == nil || identity.UID == "" {
		return
	}
	for _, event := range DueReminders(events, f.now(), f.cfg.ReminderWindow) {
		if _, err := f.notifier.NotifyReminder(ctx, identity.UID, event); err != nil {
			serviceLogger(ctx, f.logger, "EventFeed", "remind", "user_id", identity.UID, "event_id", event.ID).
				WarnContext(ctx, "failed to record reminder", "error", err, errorKindAttr(err))
		}
	}
}

// DueReminders returns the events starting strictly inside (now, now+window),
// in input order.
func DueReminders(events []Event, now time.Time, window time.Duration) []Event {
	limit := now.Add(window)
	var due []Event
	for _, e := range events {
		if e.Start.After(now) && e.Start.Before(limit) {
			due = append(due, e)
		}
	}
	return due
}
