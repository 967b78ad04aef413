package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/shared-calendar/internal/application"
)

type identityService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.LoginResult, error)
	Login(ctx context.Context, params application.LoginParams) (application.LoginResult, error)
	Logout(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, params application.UpdateProfileParams) (application.Identity, error)
	ChangePassword(ctx context.Context, params application.ChangePasswordParams) error
}

// AuthHandler serves registration, sessions and the caller's profile.
type AuthHandler struct {
	service      identityService
	responder    responder
	logger       *slog.Logger
	secureCookie bool
}

// AuthOption configures an AuthHandler.
type AuthOption func(*AuthHandler)

// WithInsecureCookies drops the Secure flag from the session cookie, for
// plain-HTTP development servers.
func WithInsecureCookies() AuthOption {
	return func(h *AuthHandler) { h.secureCookie = false }
}

func NewAuthHandler(service identityService, logger *slog.Logger, opts ...AuthOption) *AuthHandler {
	base := defaultLogger(logger)
	h := &AuthHandler{service: service, responder: newResponder(base), logger: base, secureCookie: true}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Register", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode registration", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Register(r.Context(), application.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		if errors.Is(err, application.ErrAlreadyExists) {
			h.responder.writeJSON(r.Context(), w, http.StatusConflict, errorResponse{
				Message: "An account with this email already exists",
				Errors:  map[string]string{"email": "An account with this email already exists"},
			})
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.writeSession(r.Context(), w, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode login", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Login(r.Context(), application.LoginParams{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.writeSession(r.Context(), w, result)
}

func (h *AuthHandler) writeSession(ctx context.Context, w http.ResponseWriter, result application.LoginResult) {
	setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt, h.secureCookie)
	w.Header().Set("X-Session-Token", result.Session.Token)
	h.responder.writeJSON(ctx, w, http.StatusCreated, sessionResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toIdentityDTO(result.Identity),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token := extractTokenFromRequest(r)
	if err := h.service.Logout(r.Context(), token); err != nil && !errors.Is(err, application.ErrNotFound) {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	clearSessionCookie(w, h.secureCookie)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	h.responder.writeJSON(r.Context(), w, http.StatusOK, profileResponse{User: toIdentityDTO(identity)})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	identity, _ := IdentityFromContext(r.Context())
	updated, err := h.service.UpdateProfile(r.Context(), application.UpdateProfileParams{
		Identity:    identity,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, profileResponse{
		Message: "Profile updated",
		User:    toIdentityDTO(updated),
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	identity, _ := IdentityFromContext(r.Context())
	err := h.service.ChangePassword(r.Context(), application.ChangePasswordParams{
		Identity:        identity,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if errors.Is(err, application.ErrInvalidCredentials) {
		// A wrong current password is a form error, not a failed sign-in.
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			Message: "Current password is incorrect",
			Errors:  map[string]string{"currentPassword": "Current password is incorrect"},
		})
		return
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "ChangePassword", "user_id", identity.UID).InfoContext(r.Context(), "password changed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Password updated"})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type identityDTO struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

func toIdentityDTO(identity application.Identity) identityDTO {
	return identityDTO{
		UID:         identity.UID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		PhotoURL:    identity.PhotoURL,
	}
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
	User      identityDTO `json:"user"`
}

type profileResponse struct {
	Message string      `json:"message,omitempty"`
	User    identityDTO `json:"user"`
}
