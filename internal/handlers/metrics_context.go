package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/observability"
)

// MetricsContext adds a request-scoped, pre-attributed meter to the context.
// It runs after Authenticate so the caller identity is known.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// RequestLogger has already chosen the id and echoed it.
		requestID := w.Header().Get(requestIDHeader)
		if requestID == "" {
			requestID = requestIDFromRequest(r)
		}

		attrs := []attribute.Builder{
			attribute.String("http.request_id", requestID),
			attribute.String("http.method", r.Method),
			attribute.String("network.client.ip", clientIP(r)),
		}
		if route := routeLabel(r); route != "" {
			attrs = append(attrs, attribute.String("http.route", route))
		}
		if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
			attrs = append(attrs, attribute.String("http.user_agent", userAgent))
		}
		if identity := auth.FromContext(ctx); identity != nil {
			attrs = append(attrs,
				attribute.String("user.id", identity.UserID),
				attribute.String("user.role", identity.Role),
			)
		}

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(attrs...)

		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}
