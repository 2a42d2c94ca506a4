package handlers

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/observability"
)

// SecurityHeaders sets baseline security headers for all responses.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured storefront origin to call the API with
// credentials. Preflight requests are answered directly.
func (h *Handlers) CORS(next http.Handler) http.Handler {
	allowed := frontendOrigin(h.config)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && allowed != "" && strings.EqualFold(strings.TrimRight(origin, "/"), allowed) {
			headers := w.Header()
			headers.Set("Access-Control-Allow-Origin", allowed)
			headers.Set("Access-Control-Allow-Credentials", "true")
			headers.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				headers.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
				headers.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				headers.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSameOrigin blocks cookie-authenticated state-changing requests that
// come from neither this host nor the storefront origin. Bearer-token
// requests are not subject to CSRF and pass through.
func (h *Handlers) RequireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestMutatesState(r.Method) || strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		meter := observability.MeterFromContext(r.Context())
		meter.Count("security.same_origin.checked", 1)

		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		refererHeader := strings.TrimSpace(r.Header.Get("Referer"))
		block := func(reason string, args ...any) {
			meter.Count("security.same_origin.blocked", 1, sentry.WithAttributes(attribute.String("reason", reason)))
			h.loggerFromContext(r.Context()).Warn("blocked cross-origin state-changing request", append([]any{"reason", reason}, args...)...)
			writeFail(w, http.StatusForbidden, "forbidden")
		}

		switch {
		case originHeader == "" && refererHeader == "":
			block("missing_origin_and_referer")
			return
		case originHeader != "":
			if ok, err := h.headerMatchesAllowedHost(originHeader, r); err != nil || !ok {
				block("invalid_origin", "origin", originHeader, "error", err)
				return
			}
		default:
			if ok, err := h.headerMatchesAllowedHost(refererHeader, r); err != nil || !ok {
				block("invalid_referer", "referer", refererHeader, "error", err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func requestMutatesState(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (h *Handlers) headerMatchesAllowedHost(value string, r *http.Request) (bool, error) {
	parsed, err := url.Parse(value)
	if err != nil {
		return false, fmt.Errorf("failed to parse URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false, fmt.Errorf("missing hostname")
	}

	_, ok := allowedRequestHosts(h.config, r)[host]
	return ok, nil
}

func allowedRequestHosts(cfg *config.Config, r *http.Request) map[string]struct{} {
	hosts := map[string]struct{}{}
	if r != nil {
		if host := normalizeHost(r.Host); host != "" {
			hosts[host] = struct{}{}
		}
	}
	if origin := frontendOrigin(cfg); origin != "" {
		if parsed, err := url.Parse(origin); err == nil && parsed.Hostname() != "" {
			hosts[strings.ToLower(parsed.Hostname())] = struct{}{}
		}
	}
	return hosts
}

func frontendOrigin(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(cfg.FrontendOrigin), "/")
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(strings.TrimSpace(host))
	}
	return strings.ToLower(hostport)
}
