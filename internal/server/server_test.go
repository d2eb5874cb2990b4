package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lbryio/odysee-media-server/internal/api"
	"github.com/lbryio/odysee-media-server/internal/observability/metrics"
	"github.com/lbryio/odysee-media-server/internal/registry"
	"github.com/lbryio/odysee-media-server/internal/stream"
)

func newTestServer(t *testing.T, hookToken string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coordinator, err := stream.NewCoordinator(stream.CoordinatorConfig{
		Store:    stream.NewMemoryStore(),
		Registry: registry.NewMemory(),
		CDNBase:  "https://cdn.example.com",
		Logger:   logger,
		Metrics:  metrics.New(),
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	srv, err := New(api.NewHandler(coordinator, logger), Config{
		Addr:      ":0",
		Logger:    logger,
		Metrics:   metrics.New(),
		HookToken: hookToken,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return srv
}

func TestAPIRequiresHookToken(t *testing.T) {
	srv := newTestServer(t, "secret-token")

	request := httptest.NewRequest(http.MethodPost, "/api/streams/live", strings.NewReader(`{"channelId":"abc123","live":true}`))
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request status = %d, want 401", recorder.Code)
	}

	request = httptest.NewRequest(http.MethodPost, "/api/streams/live", strings.NewReader(`{"channelId":"abc123","live":true}`))
	request.Header.Set("Authorization", "Bearer secret-token")
	recorder = httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("authenticated request status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
}

func TestAPIRejectsWhenNoTokenConfigured(t *testing.T) {
	srv := newTestServer(t, "")
	request := httptest.NewRequest(http.MethodPost, "/api/streams/live", strings.NewReader(`{"channelId":"abc123","live":true}`))
	request.Header.Set("Authorization", "Bearer anything")
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with no token configured", recorder.Code)
	}
}

func TestHealthAndMetricsStayOpen(t *testing.T) {
	srv := newTestServer(t, "secret-token")

	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", recorder.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, "secret-token")

	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated X-Request-Id header")
	}

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-Id", "req-42")
	recorder = httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, request)
	if got := recorder.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("X-Request-Id = %q, want req-42", got)
	}
}

func TestQueryTokenAcceptedOnAPIRoutes(t *testing.T) {
	srv := newTestServer(t, "secret-token")
	request := httptest.NewRequest(http.MethodGet, "/api/streams/never-published?token=secret-token", nil)
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown channel after auth", recorder.Code)
	}
}

func TestClientIP(t *testing.T) {
	if got := clientIP("203.0.113.9:4321"); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q", got)
	}
	if got := clientIP("203.0.113.9"); got != "203.0.113.9" {
		t.Fatalf("clientIP without port = %q", got)
	}
	if got := clientIP(""); got != "" {
		t.Fatalf("clientIP empty = %q", got)
	}
}
