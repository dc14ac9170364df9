// Package server provides the loopback HTTP server: training intents, status,
// touch history, a camera preview and a live status feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/capture"
	"github.com/ayusman/nofacetouch/internal/server/api"
	"github.com/ayusman/nofacetouch/internal/status"
	"github.com/ayusman/nofacetouch/internal/store"
)

// DefaultAddr binds the server to loopback only.
const DefaultAddr = "127.0.0.1:8080"

// Config holds the server configuration.
type Config struct {
	Addr      string
	StaticDir string
	Hub       *status.Hub
	Trainer   api.Trainer
	Store     *store.Store
	Camera    capture.FrameReader
	Logger    logrus.FieldLogger
}

// Server represents the HTTP server for the application.
type Server struct {
	config     Config
	router     *chi.Mux
	httpServer *http.Server
	log        logrus.FieldLogger
	start      time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	s := &Server{
		config: config,
		router: r,
		log:    config.Logger.WithField("component", "server"),
		start:  time.Now(),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RequestLogger(&chiMiddleware.DefaultLogFormatter{Logger: s.log, NoColor: true}))
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	// No write timeout: the preview and event feeds are long-lived
	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/api/health", s.handleHealth)

	if s.config.Hub != nil {
		r.Get("/api/status", api.NewStatusHandler(s.config.Hub).Get)
		r.Handle("/api/events", NewEventsHandler(s.config.Hub, s.log))
	}

	if s.config.Trainer != nil {
		training := api.NewTrainingHandler(s.config.Trainer)
		r.Post("/api/training/sessions", training.StartSession)
		r.Post("/api/training/ready", training.ConfirmReady)
	}

	if s.config.Store != nil {
		r.Get("/api/touches", api.NewTouchHandler(s.config.Store).List)
	}

	// Register camera stream endpoint if Camera is configured
	if s.config.Camera != nil {
		r.Get("/api/stream", NewStreamHandler(s.config.Camera).ServeHTTP)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("Starting web server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
