package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gitshopapp/storefront/internal/config"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireSameOrigin(t *testing.T) {
	t.Parallel()

	h := &Handlers{
		config: &config.Config{FrontendOrigin: "https://shop.example.com"},
	}

	tests := []struct {
		name    string
		method  string
		headers map[string]string
		want    int
	}{
		{
			name:    "storefront origin",
			method:  http.MethodPost,
			headers: map[string]string{"Origin": "https://shop.example.com"},
			want:    http.StatusNoContent,
		},
		{
			name:    "api host origin",
			method:  http.MethodPatch,
			headers: map[string]string{"Origin": "https://api.example.com"},
			want:    http.StatusNoContent,
		},
		{
			name:    "storefront referer",
			method:  http.MethodPost,
			headers: map[string]string{"Referer": "https://shop.example.com/cart"},
			want:    http.StatusNoContent,
		},
		{
			name:    "cross origin",
			method:  http.MethodPost,
			headers: map[string]string{"Origin": "https://attacker.example"},
			want:    http.StatusForbidden,
		},
		{
			name:   "missing origin and referer",
			method: http.MethodPost,
			want:   http.StatusForbidden,
		},
		{
			name:    "bearer token skips check",
			method:  http.MethodPost,
			headers: map[string]string{"Authorization": "Bearer abc"},
			want:    http.StatusNoContent,
		},
		{
			name:   "read only",
			method: http.MethodGet,
			want:   http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "https://api.example.com/api/v1/orders/create-order", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			h.RequireSameOrigin(noContent()).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := &Handlers{
		config: &config.Config{FrontendOrigin: "https://shop.example.com/"},
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	preflight.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	h.CORS(noContent()).ServeHTTP(rec, preflight)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be allowed")
	}

	foreign := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	foreign.Header.Set("Origin", "https://attacker.example")
	rec = httptest.NewRecorder()
	h.CORS(noContent()).ServeHTTP(rec, foreign)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin must not be allowed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	rec := httptest.NewRecorder()
	h.SecurityHeaders(noContent()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}
