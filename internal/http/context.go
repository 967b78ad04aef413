package http

import (
	"context"
	"log/slog"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/logging"
)

type identityKey struct{}

// ContextWithIdentity returns a derived context carrying the signed-in identity.
func ContextWithIdentity(ctx context.Context, identity application.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext extracts the identity stored by RequireSession.
func IdentityFromContext(ctx context.Context) (application.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(application.Identity)
	return identity, ok
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger uses the request logger when RequestLogger ran. Otherwise it
// derives one from fallback and tags the signed-in user itself.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handler, operation string, attrs ...any) *slog.Logger {
	pairs := []any{"handler", handler}
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
		if identity, ok := IdentityFromContext(ctx); ok {
			pairs = append(pairs, "user_id", identity.UID)
		}
	}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	return logger.With(append(pairs, attrs...)...)
}
