package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/logging"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// RequestLogger tags every request with an id, puts a request-scoped logger in
// the context and records one completion line plus request metrics.
func (h *Handlers) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := routeLabel(r)

		requestID := requestIDFromRequest(r)
		w.Header().Set(requestIDHeader, requestID)

		logger := h.logger.With(requestAttrs(r, requestID, route)...)
		ctx := logging.WithLogger(r.Context(), logger)
		r = r.WithContext(ctx)

		wrapped := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(wrapped, r)

		status := wrapped.statusCode()
		elapsed := time.Since(start)
		recordRequestMetrics(ctx, r.Method, route, status, elapsed)

		logger.Log(ctx, completionLevel(r.URL.Path, status), "request completed",
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"bytes", wrapped.bytes,
		)
	})
}

func requestAttrs(r *http.Request, requestID, route string) []any {
	attrs := []any{
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_ip", clientIP(r),
	}
	if route != "" {
		attrs = append(attrs, "route", route)
	}
	if userAgent := strings.TrimSpace(r.UserAgent()); userAgent != "" {
		attrs = append(attrs, "user_agent", userAgent)
	}
	if referer := strings.TrimSpace(r.Referer()); referer != "" {
		attrs = append(attrs, "referer", referer)
	}
	if r.ContentLength > 0 {
		attrs = append(attrs, "content_length", r.ContentLength)
	}
	return attrs
}

// completionLevel keeps health checks out of the info stream and raises
// server failures to error so they reach Sentry.
func completionLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case path == "/health":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func recordRequestMetrics(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unknown"
	}
	attrs := []attribute.Builder{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}

	meter := sentry.NewMeter(ctx).WithCtx(ctx)
	meter.Count("http.server.requests", 1, sentry.WithAttributes(attrs...))
	meter.Distribution(
		"http.server.duration",
		float64(elapsed.Milliseconds()),
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
		),
	)
	if status >= http.StatusInternalServerError {
		meter.Count("http.server.errors", 1, sentry.WithAttributes(attrs...))
	}
}

// requestIDFromRequest reuses a caller supplied id when it is short and
// printable. Header.Get canonicalizes the name, so X-Request-Id and
// x-request-id resolve to the same header.
func requestIDFromRequest(r *http.Request) string {
	if r == nil {
		return newRequestID()
	}
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" || len(requestID) > maxRequestIDLength || !printableASCII(requestID) {
		return newRequestID()
	}
	return requestID
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func newRequestID() string {
	return uuid.NewString()
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the
// socket peer.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// routeLabel names the matched mux route, falling back to its template. It is
// empty outside a router.
func routeLabel(r *http.Request) string {
	if r == nil {
		return ""
	}
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	if name := route.GetName(); name != "" {
		return name
	}
	if template, err := route.GetPathTemplate(); err == nil {
		return template
	}
	return ""
}
