// Package web provides the HTTP server and handlers for the lead list
// import service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/config"
	"github.com/mhollis/leadpipe/internal/history"
	"github.com/mhollis/leadpipe/internal/pipeline"
)

// Server is the HTTP server for the import service.
type Server struct {
	cfg       *config.Config
	imports   *pipeline.Service
	campaigns *campaign.Client
	history   *history.Store
	files     *fileStore
	limiter   *rateLimiter
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires the server. campaigns and historyStore may be nil when
// the corresponding feature is not configured.
func NewServer(cfg *config.Config, imports *pipeline.Service, campaigns *campaign.Client, historyStore *history.Store) *Server {
	s := &Server{
		cfg:       cfg,
		imports:   imports,
		campaigns: campaigns,
		history:   historyStore,
		files:     newFileStore(fileRetention),
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Api-Key"},
		MaxAge:         300,
	}))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.limiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// File upload and column detection
		r.Post("/files", s.handleUploadFile)

		// Import runs
		r.Post("/imports", s.handleStartImport)
		r.Get("/imports/{runID}/progress", s.handleProgress)
		r.Get("/imports/{runID}/events", s.handleProgressEvents)
		r.Get("/imports/{runID}/result", s.handleResult)
		r.Post("/imports/{runID}/cancel", s.handleCancel)
		r.Get("/imports/{runID}/report", s.handleReport)
		r.Get("/imports/{runID}/invalid-rows", s.handleInvalidRowsCSV)

		// Campaign API passthrough for assistant/workflow/number pickers
		r.Get("/resources/{kind}", s.handleListResources)

		// Run history
		r.Get("/history", s.handleListHistory)
		r.Get("/history/{runID}", s.handleHistoryReport)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // zero: disabled for SSE
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
