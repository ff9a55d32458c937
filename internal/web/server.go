package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/config"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/logging"
	"github.com/kozaktomas/facechain/internal/models"
	"github.com/kozaktomas/facechain/internal/overlay"
	"github.com/kozaktomas/facechain/internal/web/handlers"
	"github.com/kozaktomas/facechain/internal/web/middleware"
)

// Deps are the pipeline components the server exposes
type Deps struct {
	Client   *backend.Client
	Store    *facestore.Store
	Loader   *models.Loader
	Detector detector.Detector
	// NewSource opens the camera; called each time a live or registration session starts
	NewSource func() capture.Source
	// CaptureOptions apply to every capture session, e.g. the polling interval
	CaptureOptions []capture.Option
	Style          overlay.Style
}

// Server represents the web server
type Server struct {
	config         *config.Config
	deps           Deps
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	events         *handlers.EventBroadcaster
	live           *handlers.LiveHandler
	register       *handlers.RegisterHandler
	log            *logrus.Entry
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:         cfg,
		deps:           deps,
		router:         r,
		sessionManager: middleware.NewSessionManager(cfg.Web.SessionSecret),
		events:         handlers.NewEventBroadcaster(),
		log:            logging.WithComponent("web"),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the event stream stays open for the whole live session
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("Starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown releases the camera and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down web server")

	if err := s.live.Shutdown(); err != nil {
		s.log.WithError(err).Warn("Live session did not stop cleanly")
	}
	if err := s.register.Shutdown(); err != nil {
		s.log.WithError(err).Warn("Registration did not stop cleanly")
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
