package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/application"
)

type searchService interface {
	Search(ctx context.Context, identity application.Identity, query string) ([]application.Event, error)
}

// SearchHandler serves event search.
type SearchHandler struct {
	service   searchService
	location  *time.Location
	responder responder
}

func NewSearchHandler(service searchService, location *time.Location, logger *slog.Logger) *SearchHandler {
	if location == nil {
		location = time.UTC
	}
	return &SearchHandler{service: service, location: location, responder: newResponder(logger)}
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	events, err := h.service.Search(r.Context(), identity, query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := searchResponse{Query: query, Results: make([]eventDTO, 0, len(events))}
	for _, e := range events {
		e.Start = e.Start.In(h.location)
		e.End = e.End.In(h.location)
		resp.Results = append(resp.Results, toEventDTO(e))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

type searchResponse struct {
	Query   string     `json:"query"`
	Results []eventDTO `json:"results"`
}

type notificationService interface {
	List(ctx context.Context, identity application.Identity) (application.NotificationList, error)
	MarkRead(ctx context.Context, identity application.Identity, id string) error
	MarkAllRead(ctx context.Context, identity application.Identity) error
}

// NotificationHandler serves the notification dropdown.
type NotificationHandler struct {
	service   notificationService
	responder responder
}

func NewNotificationHandler(service notificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, responder: newResponder(logger)}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	list, err := h.service.List(r.Context(), identity)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := notificationListResponse{
		Notifications: make([]notificationDTO, 0, len(list.Items)),
		UnreadCount:   list.UnreadCount,
	}
	for _, n := range list.Items {
		resp.Notifications = append(resp.Notifications, notificationDTO{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      string(n.Type),
			EventID:   n.EventID,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	if err := h.service.MarkRead(r.Context(), identity, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	if err := h.service.MarkAllRead(r.Context(), identity); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "All notifications marked as read"})
}

type notificationDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	EventID   string    `json:"eventId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type notificationListResponse struct {
	Notifications []notificationDTO `json:"notifications"`
	UnreadCount   int               `json:"unreadCount"`
}
