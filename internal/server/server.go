// Package server exposes the journal over HTTP and a live websocket feed.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trade-journal/internal/analytics"
	"trade-journal/internal/auth"
	"trade-journal/internal/blob"
	"trade-journal/internal/config"
	"trade-journal/internal/docstore"
	"trade-journal/internal/imagecache"
	"trade-journal/internal/importer"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/security"
	"trade-journal/internal/stream"
)

// Config holds the server's collaborators. Importer, Cache, Metrics, Access,
// and Audit are optional.
type Config struct {
	Log      zerolog.Logger
	Server   config.ServerConfig
	Sync     config.SyncConfig
	Docs     docstore.DocumentStore
	Blobs    blob.ObjectStore
	Auth     auth.Provider
	Importer *importer.Client
	Cache    *imagecache.Cache
	Hub      *stream.Hub
	Engine   *analytics.Engine
	Metrics  *metrics.Metrics
	Access   *security.AccessController
	Audit    *security.AuditLogger
}

// Server is the journal HTTP server.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	auth     auth.Provider
	importer *importer.Client
	cache    *imagecache.Cache
	hub      *stream.Hub
	engine   *analytics.Engine
	metrics  *metrics.Metrics
	access   *security.AccessController
	audit    *security.AuditLogger
	sessions *SessionManager
	origins  []string
}

// New creates a server and its routes.
func New(cfg Config) *Server {
	engine := cfg.Engine
	if engine == nil {
		engine = analytics.NewEngine(analytics.WithLogger(cfg.Log))
	}
	hub := cfg.Hub
	if hub == nil {
		hub = stream.NewHub(cfg.Log)
	}
	hub.SetMetrics(cfg.Metrics)

	sessions := NewSessionManager(cfg.Docs, cfg.Blobs, engine, cfg.Sync.FirstSnapshotTimeout, cfg.Log)
	sessions.SetPublisher(hub)
	sessions.SetMetrics(cfg.Metrics)
	sessions.SetGuard(cfg.Access, cfg.Audit)

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		router:   chi.NewRouter(),
		log:      logging.WithComponent(cfg.Log, "server"),
		auth:     cfg.Auth,
		importer: cfg.Importer,
		cache:    cfg.Cache,
		hub:      hub,
		engine:   engine,
		metrics:  cfg.Metrics,
		access:   cfg.Access,
		audit:    cfg.Audit,
		sessions: sessions,
		origins:  origins,
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(requestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignUp)
			r.Post("/signin", s.handleSignIn)
			r.Post("/verify", s.handleVerify)
			r.With(s.requireAuth).Post("/signout", s.handleSignOut)
			r.With(s.requireAuth).Get("/me", s.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/state", s.handleState)
			r.Get("/live", s.handleLive)

			r.Route("/trades", func(r chi.Router) {
				r.Get("/", s.handleListTrades)
				r.Post("/", s.handleAddTrades)
				r.Get("/export.csv", s.handleExportCSV)
				r.Route("/{tradeID}", func(r chi.Router) {
					r.Get("/", s.handleGetTrade)
					r.Put("/", s.handleUpdateTrade)
					r.Delete("/", s.handleDeleteTrade)
					r.Post("/images", s.handleAttachImage)
					r.Delete("/images", s.handleDetachImage)
				})
			})

			r.Get("/images", s.handleImage)

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/summary", s.handleSummary)
				r.Get("/calendar", s.handleCalendar)
				r.Get("/cumulative", s.handleCumulative)
				r.Get("/distribution/{kind}", s.handleDistribution)
				r.Get("/setups", s.handleSetups)
				r.Get("/monthly-overview", s.handleMonthlyOverview)
				r.Get("/export.xlsx", s.handleExportXLSX)
				r.Get("/{timeframe}", s.handleBuckets)
			})

			r.Route("/import", func(r chi.Router) {
				r.Post("/csv", s.handleImportCSV)
				r.Post("/screenshot", s.handleImportScreenshot)
				r.Post("/text", s.handleImportText)
			})
		})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the per-user session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.hub.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops accepting requests, closes live clients, and ends every
// journal session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	err := s.server.Shutdown(ctx)
	s.hub.Stop()
	s.sessions.CloseAll()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"live":     s.hub.TotalSubscriberCount(),
		"readOnly": s.access.IsReadOnly(),
	})
}
