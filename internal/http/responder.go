package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/logging"
)

var (
	errBadRequestBody      = errors.New("Invalid request body")
	errMissingID           = errors.New("Missing resource id")
	errMissingSessionToken = errors.New("Please sign in to continue")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors onto status codes and the
// messages the UI shows as toasts.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, validationResponse(vErr))
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Message: "Invalid email or password"})
	case errors.Is(err, application.ErrSessionExpired), errors.Is(err, application.ErrSessionRevoked):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Message: "Your session has ended. Please sign in again"})
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{Message: statusMessage(http.StatusForbidden)})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: statusMessage(http.StatusNotFound)})
	case errors.Is(err, application.ErrDefaultCalendar):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "Cannot delete default calendar"})
	case errors.Is(err, application.ErrLastCalendar):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: "Cannot delete your only calendar"})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{Message: statusMessage(http.StatusConflict)})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The request could not be understood"
	case http.StatusUnauthorized:
		return "Please sign in to continue"
	case http.StatusForbidden:
		return "You do not have permission to do that"
	case http.StatusNotFound:
		return "The requested resource was not found"
	case http.StatusConflict:
		return "The resource already exists"
	case http.StatusUnprocessableEntity:
		return "Please check the highlighted fields"
	default:
		return "Something went wrong. Please try again"
	}
}

// validationResponse uses the field message itself when there is only one,
// since that is what the UI shows.
func validationResponse(vErr *application.ValidationError) errorResponse {
	resp := errorResponse{Message: statusMessage(http.StatusUnprocessableEntity)}
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return resp
	}
	fields := vErr.Fields()
	resp.Errors = make(map[string]string, len(fields))
	for _, field := range fields {
		resp.Errors[field] = vErr.FieldErrors[field]
	}
	if len(fields) == 1 {
		resp.Message = vErr.FieldErrors[fields[0]]
	}
	return resp
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}
