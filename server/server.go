// Package server exposes the shop-floor API over HTTP: REST operations for
// terminals, a websocket feed of change notifications, and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/shopfloor/storage"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Server serves the shop-floor HTTP API.
type Server struct {
	store  *storage.Store
	hub    *Hub
	logger *slog.Logger

	httpServer *http.Server
}

// New creates a Server backed by the given store. The NATS connection feeds
// the websocket hub; pass nil to serve REST only.
func New(addr string, store *storage.Store, conn *nats.Conn, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:  store,
		logger: logger,
	}

	hub, err := newHub(conn, logger)
	if err != nil {
		return nil, fmt.Errorf("create websocket hub: %w", err)
	}
	s.hub = hub

	mux := http.NewServeMux()
	s.RegisterHandlers(mux)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           instrumentHandler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// RegisterHandlers registers every API route on the given mux.
// Routes are registered as:
//
//	GET/POST   /api/v1/jobs
//	*          /api/v1/jobs/{id}/...
//	*          /api/v1/cutlists/{id}/...
//	*          /api/v1/materials/{id}/...
//	*          /api/v1/recuts/{id}/...
//	*          /api/v1/stock/{id}
//	*          /api/v1/hardware/{id}
//	*          /api/v1/rods/{id}
//	*          /api/v1/checklist/{id}
//	GET        /ws
//	GET        /healthz
//	GET        /metrics
func (s *Server) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJob)
	mux.HandleFunc("/api/v1/cutlists/", s.handleCutlist)
	mux.HandleFunc("/api/v1/materials/", s.handleMaterial)
	mux.HandleFunc("/api/v1/recuts/", s.handleRecut)
	mux.HandleFunc("/api/v1/stock/", s.handleStock)
	mux.HandleFunc("/api/v1/hardware/", s.handleHardware)
	mux.HandleFunc("/api/v1/rods/", s.handleRod)
	mux.HandleFunc("/api/v1/checklist/", s.handleChecklistItem)
	mux.HandleFunc("/ws", s.hub.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", metricsHandler())
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.hub.start()
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
