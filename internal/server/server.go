// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "load config, start the server")
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config from the environment and hands it to New(),
// which assembles the whole graph:
//
//	sqlite.DB → AuthService / PredictionService → handlers → routes
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/icar/swc-backend/internal/auth"
	"github.com/icar/swc-backend/internal/config"
	"github.com/icar/swc-backend/internal/engine"
	"github.com/icar/swc-backend/internal/handler"
	"github.com/icar/swc-backend/internal/metrics"
	"github.com/icar/swc-backend/internal/middleware"
	sqliteRepo "github.com/icar/swc-backend/internal/repository/sqlite"
	"github.com/icar/swc-backend/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the rate limiter's cleanup
// goroutine. Both are released during graceful shutdown in Start().
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter
}

// New creates a Server with the given config.
//
// WIRING:
//  1. Open the database (sqlite.New runs migrations)
//  2. Build the auth primitives (token service, password service)
//  3. Build the engine client and the two services on top
//  4. Hand the services to the handlers and wire routes
//
// Each layer only receives what it needs: the services get repository
// interfaces (not the concrete sqlite.DB), the handlers get services
// (not repositories). The Google provider is nil when OAuth isn't
// configured — the server still starts, the /auth/google routes are
// simply not registered.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		limiter: middleware.NewRateLimiter(cfg.AuthRateLimit),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		s.limiter.Stop()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST /auth/register              → Create a local account (rate limited)
// POST /auth/login                 → Exchange credentials for a JWT (rate limited)
// GET  /auth/google/login          → Start the Google OAuth flow (if configured)
// GET  /auth/google/callback       → Google redirects back here
// POST /api/predict                → Proxy to the AI engine (anonymous allowed)
// GET  /api/me                     → Current user (JWT required)
// GET  /api/predictions            → Caller's prediction history (JWT required)
// GET  /api/predictions/{id}       → One recorded prediction (JWT required)
// GET  /metrics                    → Prometheus exposition
// GET  /healthz                    → Liveness probe
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID — assigns unique ID to each request (for tracing)
//  2. RealIP — extracts real client IP from proxy headers (the rate
//     limiter keys on this, so it must run first)
//  3. Recoverer — catches panics and returns 500 instead of crashing
//  4. Logger — logs each request with route pattern and timing
//  5. OptionalAuth — tags the request with an identity when a valid
//     bearer token is present, and NEVER rejects; per-route RequireAuth
//     does the rejecting
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	collector := metrics.NewCollector()

	authService := service.NewAuthService(s.db, tokens, passwords, collector, s.logger)

	engineClient := engine.New(s.config.AIEngineURL, s.config.AIEngineTimeout)
	predictionService := service.NewPredictionService(engineClient, s.db, collector, s.logger)

	var google *auth.GoogleProvider
	if s.config.GoogleEnabled() {
		google = auth.NewGoogleProvider(
			s.config.GoogleClientID,
			s.config.GoogleClientSecret,
			s.config.GoogleCallbackURL,
		)
	}

	authHandler := handler.NewAuthHandler(authService, google, s.config.FrontendBaseURL, s.logger)
	predictHandler := handler.NewPredictHandler(predictionService, authService, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(auth.OptionalAuth(tokens))

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(s.limiter.Middleware())
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)

		if google != nil {
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		} else {
			s.logger.Warn("google oauth not configured — federated login routes disabled")
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/predict", predictHandler.HandlePredict)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", authHandler.HandleMe)
			r.Get("/predictions", predictHandler.HandleHistory)
			r.Get("/predictions/{id}", predictHandler.HandleGetPrediction)
		})
	})

	s.router.Method(http.MethodGet, "/metrics", collector.Handler())

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the rate limiter's cleanup goroutine
// 4. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.limiter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.AIEngineTimeout + 15*time.Second, // predict waits on the engine
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("engine", s.config.AIEngineURL),
			slog.Bool("google_oauth", s.config.GoogleEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
