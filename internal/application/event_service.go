package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultEventColor is used when an event is created without a color.
	DefaultEventColor = "#6366f1"
	// DefaultBatchSize is the largest calendar id set sent in one query.
	DefaultBatchSize = 30
)

// EventRepository captures the persistence operations needed for events.
// ListEventsByCalendars and WatchEventsByCalendars accept at most the store's
// "in" filter limit of calendar ids.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEventsByCalendars(ctx context.Context, calendarIDs []string) ([]Event, error)
	WatchEventsByCalendars(ctx context.Context, calendarIDs []string, fn func(events []Event, err error)) (cancel func(), err error)
}

// EventService orchestrates validation, authorization and persistence for events.
type EventService struct {
	events      EventRepository
	calendars   CalendarRepository
	aggregator  *CalendarAggregator
	notifier    Notifier
	batchSize   int
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService wires dependencies for the event service. notifier is optional.
func NewEventService(events EventRepository, calendars CalendarRepository, notifier Notifier, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, calendars, notifier, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies with a specific logger.
func NewEventServiceWithLogger(events EventRepository, calendars CalendarRepository, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	logger = defaultLogger(logger)
	return &EventService{
		events:      events,
		calendars:   calendars,
		aggregator:  NewCalendarAggregator(calendars, logger),
		notifier:    notifier,
		batchSize:   DefaultBatchSize,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// SetBatchSize overrides the number of calendar ids sent per query.
func (s *EventService) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates input, stores the event and emits the new-event and
// share notifications. Nothing is written when validation fails.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (created Event, err error) {
	if s == nil || s.events == nil || s.calendars == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	logger := s.loggerWith(ctx, "CreateEvent", "user_id", params.Identity.UID, "calendar_id", params.Input.CalendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "event created", "event_id", created.ID)
	}()

	if params.Identity.UID == "" {
		return Event{}, ErrUnauthorized
	}
	input := normalizeEventInput(params.Input)
	vErr := validateEventInput(input)
	calendar, calErr := s.eventCalendar(ctx, params.Identity, input.CalendarID, vErr)
	if vErr.HasErrors() {
		return Event{}, vErr
	}
	if calErr != nil {
		return Event{}, calErr
	}

	now := s.now()
	event := Event{
		ID:          s.idGenerator(),
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Start:       input.Start,
		End:         input.End,
		Color:       input.Color,
		CalendarID:  calendar.ID,
		UserID:      params.Identity.UID,
		IsShared:    input.IsShared,
		SharedWith:  input.SharedWith,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err = s.events.CreateEvent(ctx, event)
	if err != nil {
		return Event{}, err
	}

	if s.notifier != nil {
		if _, nErr := s.notifier.NotifyNewEvent(ctx, params.Identity.UID, created); nErr != nil {
			logger.WarnContext(ctx, "failed to record new event notification", "error", nErr, errorKindAttr(nErr))
		}
		if created.IsShared {
			for _, email := range created.SharedWith {
				if _, nErr := s.notifier.NotifyCalendarShared(ctx, params.Identity, email, calendar.Name); nErr != nil {
					logger.WarnContext(ctx, "failed to notify event recipient", "recipient", email, "error", nErr, errorKindAttr(nErr))
				}
			}
		}
	}
	return created, nil
}

// UpdateEvent replaces the editable fields of an event. Only the event's
// creator and the calendar owner may edit it.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (updated Event, err error) {
	if s == nil || s.events == nil || s.calendars == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	logger := s.loggerWith(ctx, "UpdateEvent", "user_id", params.Identity.UID, "event_id", params.EventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	existing, err := s.editableEvent(ctx, params.Identity, params.EventID)
	if err != nil {
		return Event{}, err
	}

	input := normalizeEventInput(params.Input)
	if input.CalendarID == "" {
		input.CalendarID = existing.CalendarID
	}
	vErr := validateEventInput(input)
	calendar, calErr := s.eventCalendar(ctx, params.Identity, input.CalendarID, vErr)
	if vErr.HasErrors() {
		return Event{}, vErr
	}
	if calErr != nil {
		return Event{}, calErr
	}

	existing.Title = input.Title
	existing.Description = input.Description
	existing.Location = input.Location
	existing.Start = input.Start
	existing.End = input.End
	existing.Color = input.Color
	existing.CalendarID = calendar.ID
	existing.IsShared = input.IsShared
	existing.SharedWith = input.SharedWith
	existing.UpdatedAt = s.now()

	return s.events.UpdateEvent(ctx, existing)
}

// DeleteEvent removes an event. Only the event's creator and the calendar
// owner may delete it.
func (s *EventService) DeleteEvent(ctx context.Context, identity Identity, eventID string) (err error) {
	if s == nil || s.events == nil || s.calendars == nil {
		return fmt.Errorf("event repository not configured")
	}
	logger := s.loggerWith(ctx, "DeleteEvent", "user_id", identity.UID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete event", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if _, err = s.editableEvent(ctx, identity, eventID); err != nil {
		return err
	}
	return s.events.DeleteEvent(ctx, eventID)
}

// GetEvent returns an event from a calendar the caller can access.
func (s *EventService) GetEvent(ctx context.Context, identity Identity, eventID string) (Event, error) {
	if s == nil || s.events == nil || s.calendars == nil {
		return Event{}, fmt.Errorf("event repository not configured")
	}
	event, _, err := s.accessibleEvent(ctx, identity, eventID)
	return event, err
}

// ListEvents returns events of the requested calendars overlapping
// [From, To), sorted by start. Calendars the caller cannot access are
// ignored; a failing batch is logged and skipped.
func (s *EventService) ListEvents(ctx context.Context, params ListEventsParams) ([]Event, error) {
	if s == nil || s.events == nil || s.calendars == nil {
		return nil, fmt.Errorf("event repository not configured")
	}
	if params.Identity.UID == "" {
		return nil, ErrUnauthorized
	}

	accessible, err := s.aggregator.AccessibleCalendarIDs(ctx, params.Identity)
	if err != nil {
		return nil, err
	}
	ids := accessible
	if len(params.CalendarIDs) > 0 {
		ids = intersectIDs(params.CalendarIDs, accessible)
	}

	events := listEventsBatched(ctx, s.events, ids, s.batchSize, s.loggerWith(ctx, "ListEvents", "user_id", params.Identity.UID))
	out := events[:0]
	for _, e := range events {
		if !params.To.IsZero() && !e.Start.Before(params.To) {
			continue
		}
		if !params.From.IsZero() && !e.End.After(params.From) {
			continue
		}
		out = append(out, e)
	}
	sortEventsByStart(out)
	return out, nil
}

func (s *EventService) eventCalendar(ctx context.Context, identity Identity, calendarID string, vErr *ValidationError) (Calendar, error) {
	if calendarID == "" {
		return Calendar{}, nil
	}
	calendar, err := s.calendars.GetCalendar(ctx, calendarID)
	if errors.Is(err, ErrNotFound) {
		vErr.add("calendarId", "Calendar not found")
		return Calendar{}, nil
	}
	if err != nil {
		return Calendar{}, err
	}
	if !CanAccess(calendar, identity) {
		return Calendar{}, ErrUnauthorized
	}
	return calendar, nil
}

func (s *EventService) accessibleEvent(ctx context.Context, identity Identity, eventID string) (Event, Calendar, error) {
	if identity.UID == "" {
		return Event{}, Calendar{}, ErrUnauthorized
	}
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, Calendar{}, err
	}
	calendar, err := s.calendars.GetCalendar(ctx, event.CalendarID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Event{}, Calendar{}, ErrNotFound
		}
		return Event{}, Calendar{}, err
	}
	if !CanAccess(calendar, identity) {
		return Event{}, Calendar{}, ErrNotFound
	}
	return event, calendar, nil
}

func (s *EventService) editableEvent(ctx context.Context, identity Identity, eventID string) (Event, error) {
	event, calendar, err := s.accessibleEvent(ctx, identity, eventID)
	if err != nil {
		return Event{}, err
	}
	if event.UserID != identity.UID && !calendar.OwnedBy(identity.UID) {
		return Event{}, ErrUnauthorized
	}
	return event, nil
}

func normalizeEventInput(input EventInput) EventInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Location = strings.TrimSpace(input.Location)
	input.CalendarID = strings.TrimSpace(input.CalendarID)
	input.Color = strings.TrimSpace(input.Color)
	if input.Color == "" {
		input.Color = DefaultEventColor
	}
	var shared []string
	for _, email := range input.SharedWith {
		if e := normalizeEmail(email); e != "" && !containsString(shared, e) {
			shared = append(shared, e)
		}
	}
	input.SharedWith = shared
	return input
}

func validateEventInput(input EventInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Title == "" {
		vErr.add("title", "Please enter an event title")
	}
	if input.CalendarID == "" {
		vErr.add("calendarId", "Please select a calendar")
	}
	switch {
	case input.Start.IsZero():
		vErr.add("start", "Start time is required")
	case input.End.IsZero():
		vErr.add("end", "End time is required")
	case !input.Start.Before(input.End):
		vErr.add("end", "End time must be after start time")
	}
	for _, email := range input.SharedWith {
		if !emailPattern.MatchString(email) {
			vErr.add("sharedWith", "Please enter a valid email address")
			break
		}
	}
	return vErr
}

// listEventsBatched reads the events of ids in batches of at most size ids.
// A failing batch is logged and contributes nothing.
func listEventsBatched(ctx context.Context, repo EventRepository, ids []string, size int, logger *slog.Logger) []Event {
	var out []Event
	for _, batch := range chunkIDs(ids, size) {
		events, err := repo.ListEventsByCalendars(ctx, batch)
		if err != nil {
			logger.WarnContext(ctx, "event batch query failed", "batch_size", len(batch), "error", err, errorKindAttr(err))
			continue
		}
		out = append(out, events...)
	}
	return out
}

// chunkIDs de-duplicates ids, keeping first occurrences, and splits them into
// slices of at most size entries.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	var chunks [][]string
	for start := 0; start < len(unique); start += size {
		end := start + size
		if end > len(unique) {
			end = len(unique)
		}
		chunks = append(chunks, unique[start:end])
	}
	return chunks
}

func intersectIDs(requested, allowed []string) []string {
	ok := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		ok[id] = struct{}{}
	}
	var out []string
	for _, id := range requested {
		if _, found := ok[id]; found && !containsString(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func sortEventsByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}
