package http

import (
	"log/slog"
	"net/http"
)

// RouterConfig lists the handlers to mount. Nil handlers leave their routes
// unregistered.
type RouterConfig struct {
	Auth          *AuthHandler
	Calendars     *CalendarHandler
	Events        *EventHandler
	Search        *SearchHandler
	Notifications *NotificationHandler
	// Sessions guards every route except registration, login and /healthz.
	Sessions   SessionValidator
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	requireSession := RequireSession(cfg.Sessions, cfg.Logger)
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireSession(fn))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.Auth != nil {
		mux.HandleFunc("POST /register", cfg.Auth.Register)
		mux.HandleFunc("POST /login", cfg.Auth.Login)
		protected("POST /logout", cfg.Auth.Logout)
		protected("GET /profile", cfg.Auth.Profile)
		protected("PUT /profile", cfg.Auth.UpdateProfile)
		protected("PUT /profile/password", cfg.Auth.ChangePassword)
	}

	if cfg.Calendars != nil {
		protected("GET /calendars", cfg.Calendars.List)
		protected("POST /calendars", cfg.Calendars.Create)
		protected("PUT /calendars/{id}", cfg.Calendars.Update)
		protected("DELETE /calendars/{id}", cfg.Calendars.Delete)
		protected("POST /calendars/{id}/share", cfg.Calendars.Share)
		protected("DELETE /calendars/{id}/share/{email}", cfg.Calendars.Unshare)
		protected("GET /calendars/{id}/export.ics", cfg.Calendars.Export)
		protected("POST /calendars/{id}/import", cfg.Calendars.Import)
	}

	if cfg.Events != nil {
		protected("GET /events", cfg.Events.Grid)
		protected("POST /events", cfg.Events.Create)
		protected("GET /events/stream", cfg.Events.Stream)
		protected("GET /events/{id}", cfg.Events.Get)
		protected("PUT /events/{id}", cfg.Events.Update)
		protected("DELETE /events/{id}", cfg.Events.Delete)
	}

	if cfg.Search != nil {
		protected("GET /search", cfg.Search.Search)
	}

	if cfg.Notifications != nil {
		protected("GET /notifications", cfg.Notifications.List)
		protected("POST /notifications/read-all", cfg.Notifications.MarkAllRead)
		protected("POST /notifications/{id}/read", cfg.Notifications.MarkRead)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
