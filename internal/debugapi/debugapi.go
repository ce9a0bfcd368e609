// Package debugapi exposes the reactor's latest Snapshot over a
// read-only HTTP API, following the router/handler/graceful-shutdown
// shape of Go2NetSpectra's cmd/ns-api server: a gorilla/mux router, one
// handler struct holding the dependency, JSON responses, and an
// http.Server wrapped for Shutdown.
package debugapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/IRLToolkit/srtla/internal/reactor"
	"github.com/gorilla/mux"
)

// SnapshotSource is the read-only view the reactor exposes.
type SnapshotSource interface {
	LatestSnapshot() *reactor.Snapshot
}

// Server serves GET /groups and GET /stats from whatever snapshot type
// the source currently holds.
type Server struct {
	log    *slog.Logger
	http   *http.Server
	source SnapshotSource
}

// New builds a Server bound to addr (e.g. ":9090"). It does not start
// listening until Run is called. log may be nil (defaults to
// slog.Default()).
func New(log *slog.Logger, addr string, source SnapshotSource) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "debugapi")

	s := &Server{log: log, source: source}

	r := mux.NewRouter()
	r.HandleFunc("/groups", s.groupsHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts it down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("debug API listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) groupsHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.source.LatestSnapshot()
	if snap == nil {
		s.writeJSON(w, nil)
		return
	}
	s.writeJSON(w, snap.Groups)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.source.LatestSnapshot()
	if snap == nil {
		s.writeJSON(w, nil)
		return
	}
	s.writeJSON(w, snap.Stats)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if v == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "no snapshot published yet"})
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", "error", err)
	}
}
