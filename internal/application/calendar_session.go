package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SessionState is what a calendar view renders: the accessible calendars,
// the selected calendar and the calendars switched on.
type SessionState struct {
	Calendars  []Calendar
	SelectedID string
	ActiveIDs  []string
}

// CalendarSession tracks one signed-in view: it watches the owned calendars,
// bootstraps a default calendar for users with none, keeps the selection and
// the active calendar set.
type CalendarSession struct {
	aggregator  *CalendarAggregator
	calendars   CalendarRepository
	identity    Identity
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	onChange    func(SessionState)

	bootstrapping atomic.Bool

	// deliverMu keeps onChange calls in the order the states were computed.
	deliverMu sync.Mutex

	mu       sync.Mutex
	list     []Calendar
	selected string
	active   map[string]bool
	seeded   bool
	cancel   func()
}

// OpenSession starts a session for identity. onChange, when set, receives the
// state after every refresh, one call at a time and in refresh order; it must
// not call Refresh itself. The session ends with Close or when ctx is done.
func (a *CalendarAggregator) OpenSession(ctx context.Context, identity Identity, idGenerator func() string, now func() time.Time, onChange func(SessionState)) *CalendarSession {
	s := a.NewSession(identity, idGenerator, now, onChange)
	cancel := a.calendars.WatchCalendarsByMember(ctx, identity.UID, func(snapshot CalendarSnapshot) {
		s.HandleOwnedSnapshot(ctx, snapshot)
	})

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	return s
}

// NewSession returns a session that is fed manually through
// HandleOwnedSnapshot and Refresh.
func (a *CalendarAggregator) NewSession(identity Identity, idGenerator func() string, now func() time.Time, onChange func(SessionState)) *CalendarSession {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarSession{
		aggregator:  a,
		calendars:   a.calendars,
		identity:    identity,
		idGenerator: idGenerator,
		now:         now,
		logger:      a.logger,
		onChange:    onChange,
		active:      make(map[string]bool),
	}
}

func (s *CalendarSession) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"user_id", s.identity.UID}, attrs...)
	return serviceLogger(ctx, s.logger, "CalendarSession", operation, pairs...)
}

// HandleOwnedSnapshot reacts to a push of the owned-calendars query. An
// empty snapshot bootstraps the default calendar once per session; any other
// snapshot refreshes the aggregate.
func (s *CalendarSession) HandleOwnedSnapshot(ctx context.Context, snapshot CalendarSnapshot) {
	if snapshot.Err != nil {
		s.loggerWith(ctx, "HandleOwnedSnapshot").
			WarnContext(ctx, "owned calendar snapshot failed", "error", snapshot.Err, errorKindAttr(snapshot.Err))
		return
	}
	if len(snapshot.Calendars) == 0 {
		if err := s.bootstrapDefault(ctx); err != nil {
			s.loggerWith(ctx, "HandleOwnedSnapshot").
				ErrorContext(ctx, "failed to create default calendar", "error", err, errorKindAttr(err))
		}
	}
	s.Refresh(ctx)
}

// bootstrapDefault creates the default calendar unless a bootstrap already
// ran in this session. The repository re-checks ownership in the same
// transaction, so concurrent sessions of one user still create one calendar.
func (s *CalendarSession) bootstrapDefault(ctx context.Context) error {
	if s.identity.UID == "" {
		return ErrUnauthorized
	}
	if !s.bootstrapping.CompareAndSwap(false, true) {
		return nil
	}

	calendar := newOwnedCalendar(s.idGenerator(), s.identity, CalendarInput{
		Name:      DefaultCalendarName,
		Color:     DefaultCalendarColor,
		IsDefault: true,
	})
	calendar.CreatedAt = s.now()
	calendar.UpdatedAt = calendar.CreatedAt

	created, inserted, err := s.calendars.CreateCalendarIfNoneOwned(ctx, calendar)
	if err != nil {
		return err
	}
	if inserted {
		s.loggerWith(ctx, "bootstrapDefault").InfoContext(ctx, "default calendar created", "calendar_id", created.ID)
	}
	return nil
}

// Refresh recomputes the accessible calendars and applies the selection and
// active-set rules.
func (s *CalendarSession) Refresh(ctx context.Context) SessionState {
	calendars, err := s.aggregator.AccessibleCalendars(ctx, s.identity)
	if err != nil {
		s.loggerWith(ctx, "Refresh").ErrorContext(ctx, "failed to load calendars", "error", err, errorKindAttr(err))
	}
	return s.apply(calendars)
}

func (s *CalendarSession) apply(calendars []Calendar) SessionState {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	present := make(map[string]bool, len(calendars))
	for _, c := range calendars {
		present[c.ID] = true
	}

	prev := make(map[string]bool, len(s.list))
	for _, c := range s.list {
		prev[c.ID] = true
	}
	for _, c := range calendars {
		if !s.seeded || !prev[c.ID] {
			s.active[c.ID] = true
		}
	}
	for id := range s.active {
		if !present[id] {
			delete(s.active, id)
		}
	}
	s.seeded = s.seeded || len(calendars) > 0
	s.list = calendars

	if s.selected != "" && !present[s.selected] {
		s.selected = ""
	}
	if s.selected == "" {
		s.selected = firstOwnedID(calendars, s.identity.UID)
	}

	state := s.stateLocked()
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
	return state
}

func firstOwnedID(calendars []Calendar, uid string) string {
	for _, c := range calendars {
		if c.OwnedBy(uid) {
			return c.ID
		}
	}
	return ""
}

// Select makes calendarID the selected calendar.
func (s *CalendarSession) Select(calendarID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.list {
		if c.ID == calendarID {
			s.selected = calendarID
			return nil
		}
	}
	return fmt.Errorf("select calendar %q: %w", calendarID, ErrNotFound)
}

// Toggle flips calendarID in the active set and reports its new state.
func (s *CalendarSession) Toggle(calendarID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[calendarID] {
		delete(s.active, calendarID)
		return false
	}
	for _, c := range s.list {
		if c.ID == calendarID {
			s.active[calendarID] = true
			return true
		}
	}
	return false
}

// SetActive replaces the active set with the known calendars among ids.
func (s *CalendarSession) SetActive(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	s.active = make(map[string]bool, len(ids))
	for _, c := range s.list {
		if wanted[c.ID] {
			s.active[c.ID] = true
		}
	}
}

// Active lists the active calendar ids in aggregate order.
func (s *CalendarSession) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// State returns a copy of the current session state.
func (s *CalendarSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *CalendarSession) activeLocked() []string {
	ids := make([]string, 0, len(s.active))
	for _, c := range s.list {
		if s.active[c.ID] {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (s *CalendarSession) stateLocked() SessionState {
	calendars := make([]Calendar, len(s.list))
	copy(calendars, s.list)
	return SessionState{
		Calendars:  calendars,
		SelectedID: s.selected,
		ActiveIDs:  s.activeLocked(),
	}
}

// Close stops the owned-calendar watch and re-arms the bootstrap guard.
func (s *CalendarSession) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.bootstrapping.Store(false)
}
