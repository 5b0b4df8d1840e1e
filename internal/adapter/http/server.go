package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Snapshot loads the current announcement collection.
type Snapshot interface {
	Load() (*domain.Collection, error)
}

// Server exposes health, readiness, metrics and the read-only announcement
// export.
type Server struct {
	httpServer *http.Server
	snapshot   Snapshot
	logger     *zap.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /announcements routes.
func NewServer(addr string, ready ReadinessChecker, snapshot Snapshot, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		snapshot: snapshot,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /announcements", s.handleList)
	mux.HandleFunc("GET /announcements/{id}", s.handleGet)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// handleList returns every announcement, optionally filtered by category and
// event group.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.load(w)
	if !ok {
		return
	}

	category := domain.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown category " + string(category)})
		return
	}
	group := r.URL.Query().Get("event_group_id")

	out := make([]*domain.Announcement, 0, coll.Len())
	for _, a := range coll.All() {
		if category != "" && a.Classification.Category != category {
			continue
		}
		if group != "" && a.Classification.EventGroupID != group {
			continue
		}
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.load(w)
	if !ok {
		return
	}
	a, found := coll.Get(r.PathValue("id"))
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "announcement not found"})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) load(w http.ResponseWriter) (*domain.Collection, bool) {
	coll, err := s.snapshot.Load()
	if err != nil {
		s.logger.Error("load snapshot failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrCorruptState) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": "store unavailable"})
		return nil, false
	}
	return coll, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
