package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/observability"
)

// Authenticate attaches the caller identity to the context when a valid
// token is present. Anonymous requests pass through unchanged.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.verifier.FromRequest(r)
		if err != nil || identity == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		ctx = logging.WithLogger(ctx, h.loggerFromContext(ctx).With("user_id", identity.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()) == nil {
			h.denied(r, "unauthenticated")
			writeServiceError(w, h.loggerFromContext(r.Context()), auth.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := auth.FromContext(r.Context())
		if identity == nil {
			h.denied(r, "unauthenticated")
			writeServiceError(w, h.loggerFromContext(r.Context()), auth.ErrUnauthenticated)
			return
		}
		if !identity.IsAdmin() {
			h.denied(r, "not_admin")
			writeServiceError(w, h.loggerFromContext(r.Context()), auth.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) denied(r *http.Request, reason string) {
	observability.MeterFromContext(r.Context()).Count("auth.denied", 1, sentry.WithAttributes(
		attribute.String("reason", reason),
	))
	h.loggerFromContext(r.Context()).Info("request denied", "reason", reason)
}
