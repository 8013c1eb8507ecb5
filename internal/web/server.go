// Package web exposes the HTTP surface: the event stream, queue
// submissions, settings toggles, and the host login flow.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"listen-along/internal/sse"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr     string
	AdminKey string

	Hub       *sse.Hub
	Submitter Submitter
	Settings  SettingsStore
	Auth      AuthProvider
	Logger    *log.Logger
}

// Server is the HTTP server for the service.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *log.Logger
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) *Server {
	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: NewHandlers(cfg.Hub, cfg.Submitter, cfg.Settings, cfg.Auth, cfg.AdminKey, cfg.Logger),
		logger:   cfg.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	// WriteTimeout stays zero so the event stream can outlive any deadline.
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handlers.Health)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handlers.Events)
		r.Post("/queue", s.handlers.SubmitQueue)

		r.Route("/settings", func(r chi.Router) {
			r.Use(s.handlers.RequireAdmin)
			r.Post("/queue/toggle", s.handlers.ToggleQueue)
			r.Post("/listener/toggle", s.handlers.ToggleListener)
		})
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.handlers.RequireAdmin)
		r.Get("/auth/login", s.handlers.Login)
	})
	s.router.Get("/auth/callback", s.handlers.Callback)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and blocks until an interrupt arrives or the server
// fails. The onShutdown hook runs as soon as the interrupt is seen, before
// the listener drains: event-stream handlers only return once their hub
// closes their channel, so the hub must flush first or Shutdown would wait
// out its whole deadline behind them.
func (s *Server) Run(onShutdown func()) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		s.logger.Info("shutting down server")
	}

	if onShutdown != nil {
		onShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
