// Package api exposes operational HTTP endpoints for the caching layer:
// health, Prometheus metrics, key inspection and manual invalidation.
// This is an ops surface, not an application API; it speaks raw cache
// keys and serialized values.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cacheside/pkg/cache"
	"cacheside/pkg/logging"
	memmetrics "cacheside/pkg/metrics/memory"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds the ops server settings.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the usual ops binding.
func DefaultConfig() Config {
	return Config{
		Address:      ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the ops endpoints over a cache backend.
type Server struct {
	backend  cache.Backend
	registry *prometheus.Registry
	stats    *memmetrics.Collector
	logger   *logging.Logger
	server   *http.Server
	started  time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithRegistry exposes the Prometheus registry at /metrics.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithStats exposes the in-memory counters as JSON at /stats.
func WithStats(stats *memmetrics.Collector) Option {
	return func(s *Server) { s.stats = stats }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds the ops server around backend.
func New(backend cache.Backend, config Config, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		logger:  logging.Global().Named("ops"),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/cache/{key}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/cache/{key}", s.handleRemove).Methods(http.MethodDelete)
	r.HandleFunc("/cache", s.handleRemovePattern).Methods(http.MethodDelete).Queries("pattern", "{pattern}")
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops server stopped", zap.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if pinger, ok := s.backend.(cache.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"backend": s.backend.Name(),
		"uptime":  time.Since(s.started).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "stats collector not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	data, ok, err := s.backend.Get(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"key": key, "found": false})
		return
	}

	// Values are stored serialized; return them verbatim.
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := s.backend.Remove(r.Context(), key); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	s.logger.Info("key invalidated via ops API", zap.String("key", key))
	writeJSON(w, http.StatusOK, map[string]any{"removed": key})
}

func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")

	if err := s.backend.RemoveByPattern(r.Context(), pattern); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	s.logger.Info("pattern invalidated via ops API", zap.String("pattern", pattern))
	writeJSON(w, http.StatusOK, map[string]any{"removed_pattern": pattern})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
