// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New builds every component from the config
// and hands each one only what it needs.
//
//	config ──► SessionCodec ─────────────────────────┐
//	       ──► Provider ──┐                          │
//	       ──► xapi.Client ┼─► AuthService ─► AuthHandler
//	                       └─► Ranker, Cursor ─► DiscoveryHandler
//	       ──► Gemini ─► Enricher ─┘
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/mutual-radar/internal/auth"
	"github.com/sakif/mutual-radar/internal/caption"
	"github.com/sakif/mutual-radar/internal/config"
	"github.com/sakif/mutual-radar/internal/discovery"
	"github.com/sakif/mutual-radar/internal/handler"
	"github.com/sakif/mutual-radar/internal/middleware"
	"github.com/sakif/mutual-radar/internal/service"
	"github.com/sakif/mutual-radar/internal/telemetry"
	"github.com/sakif/mutual-radar/internal/xapi"
)

// shutdownTimeout is how long in-flight requests get after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	handler http.Handler // router wrapped in the otelhttp server span
	config  *config.Config
	logger  *slog.Logger
	limiter *middleware.RateLimiter // owns a cleanup goroutine, stopped on shutdown
	tracing *telemetry.Provider
}

// New wires every component from cfg and registers the routes.
//
// A missing GEMINI_API_KEY is not fatal: captions fall back to the canned
// text and the server logs a warning once.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (s *Server, err error) {
	tracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.TraceEndpoint,
		SampleRate:  cfg.TraceSampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tracing.Shutdown(context.Background())
		}
	}()

	sessions, err := auth.NewSessionCodec(cfg.SessionSecret, cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("creating session codec: %w", err)
	}

	provider := auth.NewProvider(auth.ProviderConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL(),
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		HTTPClient:   &http.Client{Timeout: cfg.UpstreamTimeout},
	})

	api := xapi.New(xapi.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.UpstreamTimeout,
		RPS:     cfg.UpstreamRPS,
		Burst:   cfg.UpstreamBurst,
		Logger:  logger,
	})

	var gen caption.Generator = caption.Unavailable{}
	if cfg.CaptionAPIKey != "" {
		g, err := caption.NewGemini(ctx, caption.GeminiOptions{
			APIKey: cfg.CaptionAPIKey,
			Model:  cfg.CaptionModel,
		})
		if err != nil {
			return nil, fmt.Errorf("creating caption generator: %w", err)
		}
		gen = g
	} else {
		logger.Warn("GEMINI_API_KEY not set, every caption will be the fallback")
	}
	captions := caption.NewEnricher(gen, cfg.CaptionTimeout, logger)

	s = &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		limiter: middleware.NewRateLimiter(cfg.ClientRPS, cfg.ClientBurst),
		tracing: tracing,
	}

	authHandler := handler.NewAuthHandler(
		provider,
		service.NewAuthService(provider, api, logger),
		sessions,
		handler.AuthConfig{ClientID: cfg.ClientID, BaseURL: cfg.BaseURL},
		logger,
	)

	discoveryHandler := handler.NewDiscoveryHandler(
		discovery.NewRanker(api, captions, discovery.RankerConfig{
			BatchSize:     cfg.ScoringBatchSize,
			MaxPages:      cfg.ScoringMaxPages,
			TopN:          cfg.TopN,
			SnippetCap:    cfg.SnippetCap,
			LikedWeight:   cfg.LikedWeight,
			MentionWeight: cfg.MentionWeight,
		}, logger),
		discovery.NewCursor(api, captions, discovery.CursorConfig{
			BatchSize: cfg.CursorBatchSize,
			MaxSeen:   cfg.MaxSeen,
		}, logger),
		captions,
		logger,
	)

	s.setupRoutes(authHandler, discoveryHandler, sessions)
	s.handler = otelhttp.NewHandler(s.router, cfg.ServiceName)
	return s, nil
}

// setupRoutes configures middleware and the route table.
//
// ROUTES:
//
//	GET  /healthz           liveness
//	GET  /metrics           Prometheus
//	GET  /login             start the OAuth flow
//	GET  /callback          finish it
//	POST /logout            drop the session cookie
//	GET  /me                session required
//	GET  /mutuals           session required, rate limited
//	POST /next-interaction  session required, rate limited
//	POST /analyze           session required, rate limited
//
// Middleware order matters: RequestID before Logger so every line carries
// the ID, RealIP before the rate limiter so it keys on the client address.
func (s *Server) setupRoutes(authHandler *handler.AuthHandler, discoveryHandler *handler.DiscoveryHandler, sessions *auth.SessionCodec) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics())
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/login", authHandler.HandleLogin)
	s.router.Get("/callback", authHandler.HandleCallback)
	s.router.Post("/logout", authHandler.HandleLogout)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(sessions))
		r.Get("/me", authHandler.HandleMe)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware())
			r.Get("/mutuals", discoveryHandler.HandleMutuals)
			r.Post("/next-interaction", discoveryHandler.HandleNextInteraction)
			r.Post("/analyze", discoveryHandler.HandleAnalyze)
		})
	})
}

// Handler exposes the instrumented router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops the rate limiter's cleanup loop and flushes pending spans.
// Start calls it on the way out.
func (s *Server) Close() {
	s.limiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.tracing.Shutdown(ctx); err != nil {
		s.logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
	}
}

// Start runs the HTTP server until SIGINT or SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests
// shutdownTimeout to finish.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Batch discovery walks two timelines and captions several
		// candidates, so leave room beyond the upstream timeouts.
		WriteTimeout: 2*s.config.UpstreamTimeout + s.config.CaptionTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("environment", s.config.Environment),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
