package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/ical"
)

// MaxImportBytes caps the size of an uploaded iCalendar document.
const MaxImportBytes = 5 << 20

type calendarService interface {
	CreateCalendar(ctx context.Context, params application.CreateCalendarParams) (application.Calendar, error)
	UpdateCalendar(ctx context.Context, params application.UpdateCalendarParams) (application.Calendar, error)
	DeleteCalendar(ctx context.Context, identity application.Identity, calendarID string) error
	GetCalendar(ctx context.Context, identity application.Identity, calendarID string) (application.Calendar, error)
	ShareCalendar(ctx context.Context, params application.ShareCalendarParams) (application.Calendar, error)
	UnshareCalendar(ctx context.Context, params application.UnshareCalendarParams) (application.Calendar, error)
}

type sessionOpener interface {
	NewSession(identity application.Identity, idGenerator func() string, now func() time.Time, onChange func(application.SessionState)) *application.CalendarSession
}

type eventLister interface {
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]application.Event, error)
}

type calendarImporter interface {
	Import(ctx context.Context, identity application.Identity, calendarID string, r io.Reader, opts ical.DecodeOptions) (ical.ImportResult, error)
}

type accessInvalidator interface {
	InvalidateAccess()
}

// CalendarConfig wires a CalendarHandler.
type CalendarConfig struct {
	Calendars calendarService
	Sessions  sessionOpener
	Events    eventLister
	Importer  calendarImporter
	// Access, when set, is invalidated after sharing changes.
	Access      accessInvalidator
	IDGenerator func() string
	Now         func() time.Time
	Location    *time.Location
	Logger      *slog.Logger
}

// CalendarHandler serves calendars, their sharing lists and iCalendar
// import and export.
type CalendarHandler struct {
	cfg       CalendarConfig
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(cfg CalendarConfig) *CalendarHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	base := defaultLogger(cfg.Logger)
	return &CalendarHandler{cfg: cfg, responder: newResponder(base), logger: base}
}

func (h *CalendarHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "CalendarHandler", operation, attrs...)
}

func (h *CalendarHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.cfg.Calendars == nil || h.cfg.Sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// List returns the accessible calendars. A caller owning none gets the
// default calendar created first.
func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	session := h.cfg.Sessions.NewSession(identity, h.cfg.IDGenerator, h.cfg.Now, nil)
	defer session.Close()
	state := session.Refresh(r.Context())
	if state.SelectedID == "" {
		session.HandleOwnedSnapshot(r.Context(), application.CalendarSnapshot{})
		state = session.State()
	}
	if selected := strings.TrimSpace(r.URL.Query().Get("selected")); selected != "" {
		if err := session.Select(selected); err == nil {
			state = session.State()
		}
	}

	resp := calendarListResponse{
		Calendars:  make([]calendarDTO, 0, len(state.Calendars)),
		SelectedID: state.SelectedID,
	}
	for _, c := range state.Calendars {
		resp.Calendars = append(resp.Calendars, toCalendarDTO(c, identity))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req calendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	created, err := h.cfg.Calendars.CreateCalendar(r.Context(), application.CreateCalendarParams{
		Identity: identity,
		Input:    req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.invalidate()
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, calendarResponse{
		Message:  "Calendar created",
		Calendar: toCalendarDTO(created, identity),
	})
}

func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	var req calendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	updated, err := h.cfg.Calendars.UpdateCalendar(r.Context(), application.UpdateCalendarParams{
		Identity:   identity,
		CalendarID: id,
		Input:      req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarResponse{
		Message:  "Calendar updated",
		Calendar: toCalendarDTO(updated, identity),
	})
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	if err := h.cfg.Calendars.DeleteCalendar(r.Context(), identity, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.invalidate()
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Calendar deleted"})
}

// Share accepts {"email"} or {"emails"}.
func (h *CalendarHandler) Share(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	emails := req.Emails
	if req.Email != "" {
		emails = append([]string{req.Email}, emails...)
	}
	identity, _ := IdentityFromContext(r.Context())

	updated, err := h.cfg.Calendars.ShareCalendar(r.Context(), application.ShareCalendarParams{
		Identity:   identity,
		CalendarID: id,
		Emails:     emails,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.invalidate()

	message := "Calendar shared successfully"
	if len(emails) > 1 {
		message = fmt.Sprintf("Calendar shared with %d people", len(emails))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarResponse{
		Message:  message,
		Calendar: toCalendarDTO(updated, identity),
	})
}

func (h *CalendarHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(r, "id")
	email, okEmail := pathID(r, "email")
	if !ok || !okEmail {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	updated, err := h.cfg.Calendars.UnshareCalendar(r.Context(), application.UnshareCalendarParams{
		Identity:   identity,
		CalendarID: id,
		Email:      email,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.invalidate()
	h.responder.writeJSON(r.Context(), w, http.StatusOK, calendarResponse{
		Message:  "Calendar access removed",
		Calendar: toCalendarDTO(updated, identity),
	})
}

// Export writes the calendar and all of its events as text/calendar.
func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) || h.cfg.Events == nil {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	calendar, err := h.cfg.Calendars.GetCalendar(r.Context(), identity, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	events, err := h.cfg.Events.ListEvents(r.Context(), application.ListEventsParams{
		Identity:    identity,
		CalendarIDs: []string{calendar.ID},
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	body := ical.Export(calendar, events, h.cfg.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(calendar.Name)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		h.log(r.Context(), "Export", "calendar_id", calendar.ID).WarnContext(r.Context(), "failed to write export", "error", err)
	}
}

// Import reads an iCalendar body into the calendar.
func (h *CalendarHandler) Import(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) || h.cfg.Importer == nil {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	body := http.MaxBytesReader(w, r.Body, MaxImportBytes)
	result, err := h.cfg.Importer.Import(r.Context(), identity, id, body, ical.DecodeOptions{Location: h.cfg.Location})
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.responder.writeJSON(r.Context(), w, http.StatusRequestEntityTooLarge, errorResponse{Message: "The calendar file is too large"})
		case errors.Is(err, ical.ErrEmptyDocument):
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("The calendar file is empty"))
		case errors.Is(err, ical.ErrMalformedDocument):
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("The calendar file could not be read"))
		default:
			h.responder.handleServiceError(r.Context(), w, err)
		}
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, importResponse{
		Message:   fmt.Sprintf("Imported %d events", result.Created),
		Created:   result.Created,
		Skipped:   result.Skipped,
		Invalid:   result.Invalid,
		Truncated: result.Truncated,
	})
}

func (h *CalendarHandler) invalidate() {
	if h.cfg.Access != nil {
		h.cfg.Access.InvalidateAccess()
	}
}

func exportFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "calendar"
	}
	return cleaned + ".ics"
}

func pathID(r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(r.PathValue(name))
	return value, value != ""
}

type calendarRequest struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	IsDefault bool   `json:"isDefault"`
}

func (r calendarRequest) toInput() application.CalendarInput {
	return application.CalendarInput{Name: r.Name, Color: r.Color, IsDefault: r.IsDefault}
}

type shareRequest struct {
	Email  string   `json:"email"`
	Emails []string `json:"emails"`
}

type calendarDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	OwnerID      string    `json:"ownerId"`
	OwnerEmail   string    `json:"ownerEmail,omitempty"`
	OwnerName    string    `json:"ownerName,omitempty"`
	IsDefault    bool      `json:"isDefault"`
	IsOwner      bool      `json:"isOwner"`
	SharedEmails []string  `json:"sharedEmails"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toCalendarDTO(c application.Calendar, viewer application.Identity) calendarDTO {
	shared := c.SharedEmails
	if shared == nil {
		shared = []string{}
	}
	return calendarDTO{
		ID:           c.ID,
		Name:         c.Name,
		Color:        c.Color,
		OwnerID:      c.OwnerID,
		OwnerEmail:   c.OwnerEmail,
		OwnerName:    c.OwnerName,
		IsDefault:    c.IsDefault,
		IsOwner:      c.OwnedBy(viewer.UID),
		SharedEmails: shared,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type calendarListResponse struct {
	Calendars  []calendarDTO `json:"calendars"`
	SelectedID string        `json:"selectedId"`
}

type calendarResponse struct {
	Message  string      `json:"message"`
	Calendar calendarDTO `json:"calendar"`
}

type importResponse struct {
	Message   string   `json:"message"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Invalid   int      `json:"invalid"`
	Truncated []string `json:"truncated,omitempty"`
}
