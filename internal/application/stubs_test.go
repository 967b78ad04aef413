package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// calendarRepositoryStub implements CalendarRepository for tests.
type calendarRepositoryStub struct {
	mu        sync.Mutex
	calendars map[string]Calendar
	order     []string

	memberErr    error
	sharedErr    error
	beforeMember func()
	beforeShared func()

	createCalls         int
	createIfNoneCalls   int
	updateCalls         int
	watchFns            []func(CalendarSnapshot)
	watchCancelled      int
	deleteCalls         []string
	sharedQueriedEmails []string
}

func newCalendarRepositoryStub(calendars ...Calendar) *calendarRepositoryStub {
	stub := &calendarRepositoryStub{calendars: make(map[string]Calendar)}
	for _, c := range calendars {
		stub.put(c)
	}
	return stub
}

func (s *calendarRepositoryStub) put(c Calendar) {
	if _, ok := s.calendars[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.calendars[c.ID] = cloneCalendar(c)
}

func (s *calendarRepositoryStub) CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if _, ok := s.calendars[calendar.ID]; ok {
		return Calendar{}, ErrAlreadyExists
	}
	s.put(calendar)
	return cloneCalendar(calendar), nil
}

func (s *calendarRepositoryStub) CreateCalendarIfNoneOwned(ctx context.Context, calendar Calendar) (Calendar, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createIfNoneCalls++
	for _, id := range s.order {
		if containsString(s.calendars[id].Members, calendar.OwnerID) {
			return cloneCalendar(s.calendars[id]), false, nil
		}
	}
	s.put(calendar)
	return cloneCalendar(calendar), true, nil
}

func (s *calendarRepositoryStub) UpdateCalendar(ctx context.Context, calendar Calendar) (Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if _, ok := s.calendars[calendar.ID]; !ok {
		return Calendar{}, ErrNotFound
	}
	s.put(calendar)
	return cloneCalendar(calendar), nil
}

func (s *calendarRepositoryStub) GetCalendar(ctx context.Context, id string) (Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calendars[id]
	if !ok {
		return Calendar{}, ErrNotFound
	}
	return cloneCalendar(c), nil
}

func (s *calendarRepositoryStub) DeleteCalendar(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[id]; !ok {
		return ErrNotFound
	}
	delete(s.calendars, id)
	s.deleteCalls = append(s.deleteCalls, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *calendarRepositoryStub) ListCalendarsByMember(ctx context.Context, userID string) ([]Calendar, error) {
	if s.beforeMember != nil {
		s.beforeMember()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	var out []Calendar
	for _, id := range s.order {
		if containsString(s.calendars[id].Members, userID) {
			out = append(out, cloneCalendar(s.calendars[id]))
		}
	}
	return out, nil
}

func (s *calendarRepositoryStub) ListCalendarsBySharedEmail(ctx context.Context, email string) ([]Calendar, error) {
	if s.beforeShared != nil {
		s.beforeShared()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedQueriedEmails = append(s.sharedQueriedEmails, email)
	if s.sharedErr != nil {
		return nil, s.sharedErr
	}
	var out []Calendar
	for _, id := range s.order {
		if containsFold(s.calendars[id].SharedEmails, email) {
			out = append(out, cloneCalendar(s.calendars[id]))
		}
	}
	return out, nil
}

func (s *calendarRepositoryStub) WatchCalendarsByMember(ctx context.Context, userID string, fn func(CalendarSnapshot)) func() {
	s.mu.Lock()
	s.watchFns = append(s.watchFns, fn)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.watchCancelled++
		s.mu.Unlock()
	}
}

func (s *calendarRepositoryStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calendars)
}

func cloneCalendar(c Calendar) Calendar {
	c.Members = append([]string(nil), c.Members...)
	c.SharedEmails = append([]string(nil), c.SharedEmails...)
	return c
}

// eventWatchStub is one watch opened through eventRepositoryStub.
type eventWatchStub struct {
	ids       []string
	fn        func([]Event, error)
	cancelled bool
}

// eventRepositoryStub implements EventRepository for tests.
type eventRepositoryStub struct {
	mu        sync.Mutex
	events    map[string]Event
	order     []string
	maxIn     int
	failBatch func(ids []string) error
	watchErr  error

	createCalls int
	listBatches [][]string
	watches     []*eventWatchStub
}

func newEventRepositoryStub(events ...Event) *eventRepositoryStub {
	stub := &eventRepositoryStub{events: make(map[string]Event), maxIn: 30}
	for _, e := range events {
		stub.events[e.ID] = e
		stub.order = append(stub.order, e.ID)
	}
	return stub
}

func (s *eventRepositoryStub) CreateEvent(ctx context.Context, event Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if _, ok := s.events[event.ID]; ok {
		return Event{}, ErrAlreadyExists
	}
	s.events[event.ID] = event
	s.order = append(s.order, event.ID)
	return event, nil
}

func (s *eventRepositoryStub) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; !ok {
		return Event{}, ErrNotFound
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *eventRepositoryStub) GetEvent(ctx context.Context, id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (s *eventRepositoryStub) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *eventRepositoryStub) ListEventsByCalendars(ctx context.Context, calendarIDs []string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listBatches = append(s.listBatches, append([]string(nil), calendarIDs...))
	if len(calendarIDs) > s.maxIn {
		return nil, fmt.Errorf("in filter of %d values", len(calendarIDs))
	}
	if s.failBatch != nil {
		if err := s.failBatch(calendarIDs); err != nil {
			return nil, err
		}
	}
	return s.matchLocked(calendarIDs), nil
}

func (s *eventRepositoryStub) matchLocked(calendarIDs []string) []Event {
	var out []Event
	for _, id := range s.order {
		e, ok := s.events[id]
		if ok && containsString(calendarIDs, e.CalendarID) {
			out = append(out, e)
		}
	}
	return out
}

func (s *eventRepositoryStub) WatchEventsByCalendars(ctx context.Context, calendarIDs []string, fn func([]Event, error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	if len(calendarIDs) > s.maxIn {
		return nil, fmt.Errorf("in filter of %d values", len(calendarIDs))
	}
	w := &eventWatchStub{ids: append([]string(nil), calendarIDs...), fn: fn}
	s.watches = append(s.watches, w)
	return func() {
		s.mu.Lock()
		w.cancelled = true
		s.mu.Unlock()
	}, nil
}

// push delivers the current matching events to watch i.
func (s *eventRepositoryStub) push(i int) {
	s.mu.Lock()
	w := s.watches[i]
	events := s.matchLocked(w.ids)
	s.mu.Unlock()
	w.fn(events, nil)
}

func (s *eventRepositoryStub) liveWatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := 0
	for _, w := range s.watches {
		if !w.cancelled {
			live++
		}
	}
	return live
}

// calendarAccessStub answers AccessibleCalendarIDs from a fixed map.
type calendarAccessStub struct {
	mu    sync.Mutex
	ids   map[string][]string
	err   error
	calls int
}

func (a *calendarAccessStub) AccessibleCalendarIDs(ctx context.Context, identity Identity) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.ids[identity.UID], nil
}

// notifierStub records every notification request.
type notifierStub struct {
	mu        sync.Mutex
	reminders []Event
	newEvents []Event
	shared    []string
	err       error
}

func (n *notifierStub) NotifyReminder(ctx context.Context, recipientID string, event Event) (Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, event)
	return Notification{UserID: recipientID, Type: NotificationEventReminder}, n.err
}

func (n *notifierStub) NotifyNewEvent(ctx context.Context, recipientID string, event Event) (Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newEvents = append(n.newEvents, event)
	return Notification{UserID: recipientID, Type: NotificationNewEvent}, n.err
}

func (n *notifierStub) NotifyCalendarShared(ctx context.Context, sharer Identity, recipientEmail, calendarName string) (Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shared = append(n.shared, recipientEmail)
	return Notification{UserID: recipientEmail, Type: NotificationSharedCalendar}, n.err
}

func (n *notifierStub) reminderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reminders)
}

// inviterStub records share invitations.
type inviterStub struct {
	invitations []ShareInvitation
	err         error
}

func (i *inviterStub) SendShareInvitation(ctx context.Context, invitation ShareInvitation) error {
	i.invitations = append(i.invitations, invitation)
	return i.err
}

// notificationRepositoryStub implements NotificationRepository for tests.
type notificationRepositoryStub struct {
	items map[string]Notification
}

func newNotificationRepositoryStub() *notificationRepositoryStub {
	return &notificationRepositoryStub{items: make(map[string]Notification)}
}

func (r *notificationRepositoryStub) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	r.items[n.ID] = n
	return n, nil
}

func (r *notificationRepositoryStub) GetNotification(ctx context.Context, id string) (Notification, error) {
	n, ok := r.items[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (r *notificationRepositoryStub) ListNotificationsByUser(ctx context.Context, userID string) ([]Notification, error) {
	var out []Notification
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *notificationRepositoryStub) MarkNotificationRead(ctx context.Context, id string) error {
	n, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	r.items[id] = n
	return nil
}

func (r *notificationRepositoryStub) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	for id, n := range r.items {
		if n.UserID == userID {
			n.Read = true
			r.items[id] = n
		}
	}
	return nil
}

// userDirectoryStub resolves emails from a fixed map.
type userDirectoryStub map[string]Identity

func (d userDirectoryStub) FindUserByEmail(ctx context.Context, email string) (Identity, error) {
	if id, ok := d[email]; ok {
		return id, nil
	}
	return Identity{}, ErrNotFound
}

// userRepositoryStub implements UserRepository for tests.
type userRepositoryStub struct {
	users map[string]UserCredentials
}

func newUserRepositoryStub() *userRepositoryStub {
	return &userRepositoryStub{users: make(map[string]UserCredentials)}
}

func (r *userRepositoryStub) CreateUser(ctx context.Context, user UserCredentials) error {
	if _, ok := r.users[user.Identity.UID]; ok {
		return ErrAlreadyExists
	}
	r.users[user.Identity.UID] = user
	return nil
}

func (r *userRepositoryStub) UpdateUser(ctx context.Context, user UserCredentials) error {
	if _, ok := r.users[user.Identity.UID]; !ok {
		return ErrNotFound
	}
	r.users[user.Identity.UID] = user
	return nil
}

func (r *userRepositoryStub) GetUser(ctx context.Context, id string) (UserCredentials, error) {
	u, ok := r.users[id]
	if !ok {
		return UserCredentials{}, ErrNotFound
	}
	return u, nil
}

func (r *userRepositoryStub) GetUserByEmail(ctx context.Context, email string) (UserCredentials, error) {
	for _, u := range r.users {
		if u.Identity.Email == email {
			return u, nil
		}
	}
	return UserCredentials{}, ErrNotFound
}

// sessionRepositoryStub implements SessionRepository for tests.
type sessionRepositoryStub struct {
	sessions    map[string]Session
	deleteCalls []time.Time
}

func newSessionRepositoryStub() *sessionRepositoryStub {
	return &sessionRepositoryStub{sessions: make(map[string]Session)}
}

func (r *sessionRepositoryStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	r.sessions[session.Token] = session
	return session, nil
}

func (r *sessionRepositoryStub) GetSession(ctx context.Context, token string) (Session, error) {
	s, ok := r.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *sessionRepositoryStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	s, ok := r.sessions[token]
	if !ok {
		return ErrNotFound
	}
	at := revokedAt
	s.RevokedAt = &at
	r.sessions[token] = s
	return nil
}

func (r *sessionRepositoryStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	r.deleteCalls = append(r.deleteCalls, reference)
	removed := 0
	for token, s := range r.sessions {
		if !s.ExpiresAt.After(reference) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func sequence(values ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(values) {
			i++
			return fmt.Sprintf("generated-%d", i)
		}
		v := values[i]
		i++
		return v
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
