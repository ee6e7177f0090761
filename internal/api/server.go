package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/contest-radar/contest-engine/internal/cache"
	"github.com/contest-radar/contest-engine/internal/channel"
	"github.com/contest-radar/contest-engine/internal/cleanup"
	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/events"
	"github.com/contest-radar/contest-engine/internal/notify"
	"github.com/contest-radar/contest-engine/internal/platform"
	"github.com/contest-radar/contest-engine/internal/storage"
	enginesync "github.com/contest-radar/contest-engine/internal/sync"
)

// Server represents the HTTP admin API server
type Server struct {
	config       config.ServerConfig
	router       *chi.Mux
	repo         storage.Repository
	orchestrator *enginesync.Orchestrator
	cleaner      *cleanup.Cleaner
	dispatcher   *notify.Dispatcher
	adapters     *platform.Registry
	senders      *channel.Registry
	contestCache *cache.ContestCache
	bus          *events.Bus
}

// NewServer creates a new admin API server. contestCache and bus may be nil.
func NewServer(
	cfg config.ServerConfig,
	repo storage.Repository,
	orchestrator *enginesync.Orchestrator,
	cleaner *cleanup.Cleaner,
	dispatcher *notify.Dispatcher,
	adapters *platform.Registry,
	senders *channel.Registry,
	contestCache *cache.ContestCache,
	bus *events.Bus,
) *Server {
	s := &Server{
		config:       cfg,
		repo:         repo,
		orchestrator: orchestrator,
		cleaner:      cleaner,
		dispatcher:   dispatcher,
		adapters:     adapters,
		senders:      senders,
		contestCache: contestCache,
		bus:          bus,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		// Sync
		r.Post("/sync", s.handleSyncAll)
		r.Post("/sync/{platform}", s.handleSyncPlatform)

		// Cleanup
		r.Post("/cleanup", s.handleCleanup)

		// Contests
		r.Route("/contests", func(r chi.Router) {
			r.Get("/", s.handleListContests)
			r.Get("/{id}", s.handleGetContest)
		})

		// Notifications
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Get("/{id}", s.handleGetNotification)
			r.Post("/{id}/retry", s.handleRetryNotification)
		})

		// Component health
		r.Get("/platforms/health", s.handlePlatformsHealth)
		r.Get("/channels/health", s.handleChannelsHealth)

		// Live event stream
		r.Get("/events", s.handleEventsWS)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
