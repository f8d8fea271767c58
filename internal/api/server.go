package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/divergence-scanner/internal/cache"
	"github.com/divergence-scanner/pkg/config"
	"github.com/divergence-scanner/pkg/logger"
	"github.com/divergence-scanner/pkg/models"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SnapshotHeader carries the scan time of the served results
const SnapshotHeader = "X-Snapshot-Time"

// SnapshotSource serves the latest scan results
type SnapshotSource interface {
	Get(ctx context.Context) (*cache.Snapshot, error)
}

// Server represents the HTTP API server
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	source     SnapshotSource
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, logger *logrus.Logger, source SnapshotSource) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		source: source,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(logger.Middleware(s.logger))
	s.router.Use(s.recoveryMiddleware)

	s.router.HandleFunc("/divergences", s.handleDivergences).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API versioning
	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/divergences", s.handleDivergences).Methods("GET")
	apiV1.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.handler = s.router

	// CORS wraps the router so preflight requests never reach route matching
	if s.cfg.Security.CORSEnabled {
		s.handler = handlers.CORS(
			handlers.AllowedOrigins(s.cfg.Security.CORSOrigins),
			handlers.AllowedMethods(s.cfg.Security.CORSMethods),
			handlers.AllowedHeaders(s.cfg.Security.CORSHeaders),
		)(s.router)
	}
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.cfg.GetServerAddr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server on %s: %w", addr, err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")

				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// handleDivergences returns one entry per symbol/timeframe from the cached scan
func (s *Server) handleDivergences(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.Get(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("No divergence results available")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	results := snap.Results
	if results == nil {
		results = []models.DivergenceResult{}
	}

	w.Header().Set(SnapshotHeader, snap.Timestamp.UTC().Format(time.RFC3339))
	writeJSON(w, http.StatusOK, results)
}

// handleHealth reports liveness; it never triggers a scan
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
