// Package server provides the HTTP server and routing for CryptoVault.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptovault/internal/config"
	"github.com/aristath/cryptovault/internal/database"
	"github.com/aristath/cryptovault/internal/domain"
	"github.com/aristath/cryptovault/internal/events"
	"github.com/aristath/cryptovault/internal/modules/coins"
	coinshandlers "github.com/aristath/cryptovault/internal/modules/coins/handlers"
	"github.com/aristath/cryptovault/internal/modules/valuation"
	valuationhandlers "github.com/aristath/cryptovault/internal/modules/valuation/handlers"
	"github.com/aristath/cryptovault/internal/notifications"
	"github.com/aristath/cryptovault/internal/scheduler"
	"github.com/aristath/cryptovault/internal/session"
)

// loginRefreshTimeout bounds the background refresh started after a login
const loginRefreshTimeout = 30 * time.Second

// Config holds server configuration
type Config struct {
	Log           zerolog.Logger
	Config        *config.Config
	DB            *database.DB
	Sessions      *session.Controller
	Engine        *valuation.Engine
	Coins         *coins.Service
	Notifications *notifications.Queue
	EventManager  *events.Manager
	Jobs          []scheduler.Job // Jobs that can be triggered manually
	Port          int
	DevMode       bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	sessions       *session.Controller
	engine         *valuation.Engine
	coins          *coins.Service
	queue          *notifications.Queue
	eventManager   *events.Manager
	systemHandlers *SystemHandlers
	port           int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		cfg:          cfg.Config,
		sessions:     cfg.Sessions,
		engine:       cfg.Engine,
		coins:        cfg.Coins,
		queue:        cfg.Notifications,
		eventManager: cfg.EventManager,
		port:         cfg.Port,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.DB, cfg.Sessions, cfg.Engine, cfg.Jobs)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Streams are long-lived and stay outside the request timeout
		streamHandler := NewEventsStreamHandler(s.eventManager.Bus(), s.log)
		r.Get("/events/stream", streamHandler.ServeHTTP)
		r.Get("/events/ws", streamHandler.ServeWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			authHandlers := NewAuthHandlers(s.sessions, s.refreshAfterLogin, s.log)
			authHandlers.RegisterRoutes(r)

			valuationHandler := valuationhandlers.NewHandler(s.engine, s.sessions, s.log)
			valuationHandler.RegisterRoutes(r)

			coinsHandler := coinshandlers.NewHandler(s.coins, s.sessions, s.log)
			coinsHandler.RegisterRoutes(r)

			notificationHandlers := NewNotificationHandlers(s.queue, s.log)
			notificationHandlers.RegisterRoutes(r)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			})
		})
	})
}

// refreshAfterLogin recomputes the portfolio for a new session without
// holding up the login response.
func (s *Server) refreshAfterLogin(sess domain.Session) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loginRefreshTimeout)
		defer cancel()

		if _, err := s.engine.ForceRefresh(ctx, sess); err != nil {
			s.log.Warn().Err(err).Msg("Post-login refresh failed")
		}
	}()
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
