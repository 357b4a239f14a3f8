// Package httpapi exposes health, readiness, metrics and monitor status over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/aurorawatch/internal/logger"
	"github.com/rewired-gh/aurorawatch/internal/models"
)

// StatusProvider is the read side of the monitor.
type StatusProvider interface {
	CheckReadiness(ctx context.Context) error
	LastDecision() (models.Decision, bool)
	LastAlertAt() (time.Time, bool)
	Observer() models.ObserverLocation
}

// ArtifactStore remembers the most recently rendered map.
type ArtifactStore struct {
	latest atomic.Pointer[models.Artifact]
}

func (s *ArtifactStore) Set(a models.Artifact) {
	s.latest.Store(&a)
}

func (s *ArtifactStore) Latest() (models.Artifact, bool) {
	a := s.latest.Load()
	if a == nil {
		return models.Artifact{}, false
	}
	return *a, true
}

// Server exposes /healthz, /readyz, /metrics, /status and /map.
type Server struct {
	httpServer *http.Server
	status     StatusProvider
	maps       *ArtifactStore
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Observer     models.ObserverLocation `json:"observer"`
	LastDecision *models.Decision        `json:"last_decision,omitempty"`
	LastAlertAt  *time.Time              `json:"last_alert_at,omitempty"`
}

func NewServer(addr string, status StatusProvider, maps *ArtifactStore) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		status: status,
		maps:   maps,
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/status", s.handleStatus)
	r.Get("/map", s.handleMap)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	logger.Info("HTTP server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.status.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Observer: s.status.Observer()}
	if d, ok := s.status.LastDecision(); ok {
		resp.LastDecision = &d
	}
	if t, ok := s.status.LastAlertAt(); ok {
		resp.LastAlertAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if s.maps == nil {
		http.NotFound(w, r)
		return
	}
	a, ok := s.maps.Latest()
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(a.Path)
	if err != nil {
		logger.Warn("Latest map %s is not readable: %v", a.Path, err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "map unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", `"`+a.Checksum+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort status response
}
