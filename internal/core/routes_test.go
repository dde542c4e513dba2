package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRoutes_Root(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["message"] != "Astrology API is running" {
		t.Errorf("unexpected body %v", body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id should be set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be set")
	}
}

func TestRoutes_UnknownRouteIsJSON404(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("X-Request-Id", "req-404")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "not_found_route" || resp.Error.RequestID != "req-404" {
		t.Errorf("unexpected error body %+v", resp.Error)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestRoutes_APIRegistrarsBehindRateLimit(t *testing.T) {
	srv := newTestServer(t)
	store := &MockRateLimitStore{Result: RateLimitResult{Allowed: true, Remaining: 2}}
	srv.RateLimitStore = store
	srv.APIRouteRegistrars = []RouteRegistrar{func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, map[string]string{"pong": "ok"})
		})
	}}
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(store.Calls) != 1 || store.Calls[0].Key != "203.0.113.9" {
		t.Errorf("expected one rate limit call keyed by client IP, got %+v", store.Calls)
	}

	// Routes outside /api are not rate limited.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(store.Calls) != 1 {
		t.Errorf("root should bypass rate limiting, got %d calls", len(store.Calls))
	}
}

func TestRoutes_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	srv.APIRouteRegistrars = []RouteRegistrar{func(r chi.Router) {
		r.Post("/get-chart", func(w http.ResponseWriter, r *http.Request) {})
	}}
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/api/get-chart", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestRoutes_CORSRestrictedOrigins(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Security.CorsAllowedOrigins = []string{"https://app.example.com"}
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin should not be echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allowed origin should be echoed, got %q", got)
	}
}

func TestRoutes_MetricsUseRoutePattern(t *testing.T) {
	srv := newTestServer(t)
	metrics := &MockMetricsCollector{}
	srv.Metrics = metrics
	srv.APIRouteRegistrars = []RouteRegistrar{func(r chi.Router) {
		r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})
	}}
	srv.MountRoutes()

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing/path", nil))

	got := metrics.Recorded()
	if len(got) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(got))
	}
	if got[0].Endpoint != "/api/items/{id}" || got[0].Status != "202" || got[0].Method != http.MethodGet {
		t.Errorf("unexpected first record %+v", got[0])
	}
	if got[1].Status != "404" {
		t.Errorf("expected 404 for unmatched route, got %+v", got[1])
	}
}
