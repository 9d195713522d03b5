package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/cache/mock"
	"cacheside/pkg/logging"
	memmetrics "cacheside/pkg/metrics/memory"

	"github.com/prometheus/client_golang/prometheus"
)

// pingableBackend adds a Ping hook to the mock for health checks.
type pingableBackend struct {
	*mock.Backend
	pingErr error
}

func (b *pingableBackend) Ping(context.Context) error { return b.pingErr }

func newTestServer(backend cache.Backend, opts ...Option) *Server {
	opts = append(opts, WithLogger(logging.NewNop()))
	return New(backend, DefaultConfig(), opts...)
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	backend := &pingableBackend{Backend: mock.New("mock")}
	s := newTestServer(backend)

	rec := do(t, s, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["status"] != "healthy" || body["backend"] != "mock" {
		t.Errorf("body = %v", body)
	}
}

func TestHealth_Degraded(t *testing.T) {
	backend := &pingableBackend{Backend: mock.New("mock"), pingErr: errors.New("down")}
	s := newTestServer(backend)

	rec := do(t, s, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /healthz = %d, want 503", rec.Code)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHealth_BackendWithoutPing(t *testing.T) {
	// A backend with no Ping is assumed healthy; there is nothing to probe.
	s := newTestServer(mock.New("mock"))
	if rec := do(t, s, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}
}

func TestGetKey(t *testing.T) {
	backend := mock.New("mock")
	backend.Seed("entity:role:42", []byte(`{"id":"42"}`))
	s := newTestServer(backend)

	rec := do(t, s, http.MethodGet, "/cache/entity:role:42")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /cache/... = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"id":"42"}` {
		t.Errorf("body = %q, want the raw stored bytes", rec.Body.String())
	}

	if rec := do(t, s, http.MethodGet, "/cache/entity:role:absent"); rec.Code != http.StatusNotFound {
		t.Errorf("GET absent key = %d, want 404", rec.Code)
	}
}

func TestGetKey_BackendFault(t *testing.T) {
	s := newTestServer(mock.Unavailable("mock"))
	if rec := do(t, s, http.MethodGet, "/cache/k"); rec.Code != http.StatusBadGateway {
		t.Errorf("GET with dead backend = %d, want 502", rec.Code)
	}
}

func TestRemoveKey(t *testing.T) {
	backend := mock.New("mock")
	backend.Seed("entity:role:42", []byte("v"))
	s := newTestServer(backend)

	rec := do(t, s, http.MethodDelete, "/cache/entity:role:42")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /cache/... = %d, want 200", rec.Code)
	}
	if backend.Contains("entity:role:42") {
		t.Error("key survived the DELETE")
	}
}

func TestRemovePattern(t *testing.T) {
	backend := mock.New("mock")
	backend.Seed(cache.EntityKey("role", "1"), []byte("a"))
	backend.Seed(cache.EntityKey("role", "2"), []byte("b"))
	backend.Seed(cache.EntityKey("user", "1"), []byte("c"))
	s := newTestServer(backend)

	rec := do(t, s, http.MethodDelete, "/cache?pattern=entity:role:*")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE /cache?pattern= = %d, want 200", rec.Code)
	}
	if backend.Contains(cache.EntityKey("role", "1")) || backend.Contains(cache.EntityKey("role", "2")) {
		t.Error("role entries survived the pattern removal")
	}
	if !backend.Contains(cache.EntityKey("user", "1")) {
		t.Error("unrelated entry removed")
	}
}

func TestStats(t *testing.T) {
	stats := memmetrics.New()
	stats.RecordGet("redis", true, time.Millisecond)
	stats.RecordGet("redis", false, time.Millisecond)
	s := newTestServer(mock.New("mock"), WithStats(stats))

	rec := do(t, s, http.MethodGet, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d, want 200", rec.Code)
	}

	var body map[string]memmetrics.Counts
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["redis"].Hits != 1 || body["redis"].Misses != 1 {
		t.Errorf("stats = %+v", body["redis"])
	}
}

func TestStats_NotConfigured(t *testing.T) {
	s := newTestServer(mock.New("mock"))
	if rec := do(t, s, http.MethodGet, "/stats"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /stats without collector = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	s := newTestServer(mock.New("mock"), WithRegistry(registry))

	if rec := do(t, s, http.MethodGet, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", rec.Code)
	}

	// Without a registry the route is simply absent.
	s = newTestServer(mock.New("mock"))
	if rec := do(t, s, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without registry = %d, want 404", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	config := DefaultConfig()
	config.Address = "127.0.0.1:0"
	s := New(mock.New("mock"), config, WithLogger(logging.NewNop()))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
