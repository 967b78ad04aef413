package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/layout"
	"github.com/example/shared-calendar/internal/timerange"
)

// DefaultKeepAlive is the comment interval of an idle event stream.
const DefaultKeepAlive = 25 * time.Second

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	DeleteEvent(ctx context.Context, identity application.Identity, eventID string) error
	GetEvent(ctx context.Context, identity application.Identity, eventID string) (application.Event, error)
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]application.Event, error)
}

type calendarIDResolver interface {
	AccessibleCalendarIDs(ctx context.Context, identity application.Identity) ([]string, error)
}

type eventSubscriber interface {
	Subscribe(ctx context.Context, identity application.Identity, calendarIDs []string, onUpdate func(application.EventSnapshot)) *application.Subscription
}

// EventConfig wires an EventHandler.
type EventConfig struct {
	Events    eventService
	Calendars calendarIDResolver
	Feed      eventSubscriber
	// Location is the display zone of the grid; nil means UTC.
	Location     *time.Location
	WeekStartsOn time.Weekday
	Now          func() time.Time
	KeepAlive    time.Duration
	Logger       *slog.Logger
}

// EventHandler serves events, the calendar grid and the live stream.
type EventHandler struct {
	cfg       EventConfig
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(cfg EventConfig) *EventHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	base := defaultLogger(cfg.Logger)
	return &EventHandler{cfg: cfg, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.cfg.Events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// Views accepted by Grid.
const (
	ViewDay   = "day"
	ViewWeek  = "week"
	ViewMonth = "month"
)

// Grid returns the events of the requested view laid out for display.
func (h *EventHandler) Grid(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	query := r.URL.Query()
	view := strings.ToLower(strings.TrimSpace(query.Get("view")))
	if view == "" {
		view = ViewMonth
	}
	now := h.cfg.Now().In(h.cfg.Location)
	ref := now
	if raw := strings.TrimSpace(query.Get("date")); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, h.cfg.Location)
		if err != nil {
			h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{
				Message: "Invalid date",
				Errors:  map[string]string{"date": "Use the YYYY-MM-DD format"},
			})
			return
		}
		ref = parsed
	}

	var bounds timerange.Range
	switch view {
	case ViewDay:
		bounds = timerange.DayBounds(ref)
	case ViewWeek:
		bounds = timerange.WeekBounds(ref, h.cfg.WeekStartsOn)
	case ViewMonth:
		bounds = timerange.MonthGridBounds(ref, h.cfg.WeekStartsOn)
	default:
		h.responder.writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{
			Message: "Invalid view",
			Errors:  map[string]string{"view": "Use day, week or month"},
		})
		return
	}

	identity, _ := IdentityFromContext(r.Context())
	events, err := h.cfg.Events.ListEvents(r.Context(), application.ListEventsParams{
		Identity:    identity,
		CalendarIDs: splitList(query.Get("calendars")),
		From:        bounds.Start,
		To:          bounds.End,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := gridResponse{
		View:   view,
		Date:   ref.Format(time.DateOnly),
		Label:  gridLabel(view, ref, bounds),
		Start:  bounds.Start,
		End:    bounds.End,
		Events: make([]eventDTO, 0, len(events)),
	}
	placed := make([]layout.Event, 0, len(events))
	for _, e := range events {
		e.Start = e.Start.In(h.cfg.Location)
		e.End = e.End.In(h.cfg.Location)
		resp.Events = append(resp.Events, toEventDTO(e))
		placed = append(placed, toLayoutEvent(e))
	}

	switch view {
	case ViewMonth:
		grid := layout.BuildMonthGrid(placed, ref, now, h.cfg.WeekStartsOn, layout.DefaultMonthCellLimit)
		for _, week := range grid.Weeks {
			row := make([]monthCellDTO, 0, len(week))
			for _, cell := range week {
				row = append(row, toMonthCellDTO(cell))
			}
			resp.Weeks = append(resp.Weeks, row)
		}
	case ViewWeek:
		for _, column := range layout.BuildWeekGrid(placed, ref, now, h.cfg.WeekStartsOn) {
			resp.Days = append(resp.Days, toDayColumnDTO(column))
		}
	default:
		resp.Days = []dayColumnDTO{toDayColumnDTO(layout.BuildDayGrid(placed, ref, now))}
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	event, err := h.cfg.Events.GetEvent(r.Context(), identity, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: h.present(event)})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	created, err := h.cfg.Events.CreateEvent(r.Context(), application.CreateEventParams{
		Identity: identity,
		Input:    req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{
		Message: "Event created successfully",
		Event:   h.present(created),
	})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	updated, err := h.cfg.Events.UpdateEvent(r.Context(), application.UpdateEventParams{
		Identity: identity,
		EventID:  id,
		Input:    req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{
		Message: "Event updated successfully",
		Event:   h.present(updated),
	})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	if err := h.cfg.Events.DeleteEvent(r.Context(), identity, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Event deleted successfully"})
}

// Stream pushes a snapshot of the watched calendars' events as Server-Sent
// Events until the client disconnects. Without a calendars parameter every
// accessible calendar is watched; requested calendars the caller cannot
// access are ignored.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.cfg.Feed == nil || h.cfg.Calendars == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	identity, _ := IdentityFromContext(ctx)

	accessible, err := h.cfg.Calendars.AccessibleCalendarIDs(ctx, identity)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	ids := accessible
	if requested := splitList(r.URL.Query().Get("calendars")); len(requested) > 0 {
		ids = restrictIDs(requested, accessible)
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log(ctx, "Stream").WarnContext(ctx, "response does not support streaming", "error", err)
		return
	}

	// Only the newest snapshot matters; a slow client skips the older ones.
	updates := make(chan application.EventSnapshot, 1)
	offer := func(snapshot application.EventSnapshot) {
		for {
			select {
			case updates <- snapshot:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}
	sub := h.cfg.Feed.Subscribe(ctx, identity, ids, offer)
	defer sub.Close()

	logger := h.log(ctx, "Stream", "calendars", len(ids))
	logger.DebugContext(ctx, "event stream opened")
	keepAlive := time.NewTicker(h.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "event stream closed")
			return
		case snapshot := <-updates:
			if err := h.writeSnapshot(w, snapshot); err != nil {
				logger.WarnContext(ctx, "failed to write snapshot", "error", err)
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *EventHandler) writeSnapshot(w http.ResponseWriter, snapshot application.EventSnapshot) error {
	payload := snapshotDTO{Generation: snapshot.Generation, Events: make([]eventDTO, 0, len(snapshot.Events))}
	name := "snapshot"
	if snapshot.Err != nil {
		name = "error"
		payload.Error = "Live updates are temporarily unavailable"
	}
	for _, e := range snapshot.Events {
		payload.Events = append(payload.Events, h.present(e))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", name, snapshot.Generation, data)
	return err
}

func (h *EventHandler) present(e application.Event) eventDTO {
	e.Start = e.Start.In(h.cfg.Location)
	e.End = e.End.In(h.cfg.Location)
	return toEventDTO(e)
}

func gridLabel(view string, ref time.Time, bounds timerange.Range) string {
	switch view {
	case ViewDay:
		return ref.Format("Monday, January 2, 2006")
	case ViewWeek:
		last := bounds.End.AddDate(0, 0, -1)
		return fmt.Sprintf("%s - %s", bounds.Start.Format("Jan 2"), last.Format("Jan 2, 2006"))
	default:
		return ref.Format("January 2006")
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// restrictIDs keeps the requested ids present in allowed, in request order.
func restrictIDs(requested, allowed []string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		ok[id] = true
	}
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if ok[id] {
			out = append(out, id)
			ok[id] = false
		}
	}
	return out
}

func toLayoutEvent(e application.Event) layout.Event {
	return layout.Event{
		ID:         e.ID,
		CalendarID: e.CalendarID,
		Title:      e.Title,
		Color:      e.Color,
		Start:      e.Start,
		End:        e.End,
	}
}

type eventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Color       string    `json:"color"`
	CalendarID  string    `json:"calendarId"`
	IsShared    bool      `json:"isShared"`
	SharedWith  []string  `json:"sharedWith"`
}

func (r eventRequest) toInput() application.EventInput {
	return application.EventInput{
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Start:       r.Start,
		End:         r.End,
		Color:       r.Color,
		CalendarID:  r.CalendarID,
		IsShared:    r.IsShared,
		SharedWith:  r.SharedWith,
	}
}

type eventDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Color       string    `json:"color"`
	CalendarID  string    `json:"calendarId"`
	UserID      string    `json:"userId"`
	IsShared    bool      `json:"isShared"`
	SharedWith  []string  `json:"sharedWith,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toEventDTO(e application.Event) eventDTO {
	return eventDTO{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       e.Start,
		End:         e.End,
		Color:       e.Color,
		CalendarID:  e.CalendarID,
		UserID:      e.UserID,
		IsShared:    e.IsShared,
		SharedWith:  e.SharedWith,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type eventResponse struct {
	Message string   `json:"message,omitempty"`
	Event   eventDTO `json:"event"`
}

type dayEventDTO struct {
	ID           string  `json:"id"`
	CalendarID   string  `json:"calendarId"`
	Title        string  `json:"title"`
	DisplayTitle string  `json:"displayTitle"`
	Segment      string  `json:"segment"`
	Color        string  `json:"color"`
	Top          float64 `json:"top,omitempty"`
	Height       float64 `json:"height,omitempty"`
}

func toDayEventDTO(de layout.DayEvent) dayEventDTO {
	return dayEventDTO{
		ID:           de.ID,
		CalendarID:   de.CalendarID,
		Title:        de.Title,
		DisplayTitle: de.DisplayTitle,
		Segment:      string(de.Segment),
		Color:        de.Color,
	}
}

type monthCellDTO struct {
	Date     string        `json:"date"`
	InMonth  bool          `json:"inMonth"`
	IsToday  bool          `json:"isToday"`
	Events   []dayEventDTO `json:"events"`
	Overflow int           `json:"overflow,omitempty"`
}

func toMonthCellDTO(cell layout.MonthCell) monthCellDTO {
	dto := monthCellDTO{
		Date:     cell.Date.Format(time.DateOnly),
		InMonth:  cell.InMonth,
		IsToday:  cell.IsToday,
		Events:   make([]dayEventDTO, 0, len(cell.Events)),
		Overflow: cell.Overflow,
	}
	for _, de := range cell.Events {
		dto.Events = append(dto.Events, toDayEventDTO(de))
	}
	return dto
}

type dayColumnDTO struct {
	Date    string        `json:"date"`
	IsToday bool          `json:"isToday"`
	Events  []dayEventDTO `json:"events"`
}

func toDayColumnDTO(column layout.DayColumn) dayColumnDTO {
	dto := dayColumnDTO{
		Date:    column.Date.Format(time.DateOnly),
		IsToday: column.IsToday,
		Events:  make([]dayEventDTO, 0, len(column.Events)),
	}
	for _, pe := range column.Events {
		de := toDayEventDTO(pe.DayEvent)
		de.Top = pe.Block.Top
		de.Height = pe.Block.RenderHeight()
		dto.Events = append(dto.Events, de)
	}
	return dto
}

type gridResponse struct {
	View   string           `json:"view"`
	Date   string           `json:"date"`
	Label  string           `json:"label"`
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
	Events []eventDTO       `json:"events"`
	Weeks  [][]monthCellDTO `json:"weeks,omitempty"`
	Days   []dayColumnDTO   `json:"days,omitempty"`
}

type snapshotDTO struct {
	Generation uint64     `json:"generation"`
	Events     []eventDTO `json:"events"`
	Error      string     `json:"error,omitempty"`
}
