package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/handlers"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/middleware"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/config"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

// Server exposes health, metrics and read-only run progress over HTTP.
type Server struct {
	config     *config.Config
	version    string
	router     *chi.Mux
	httpServer *http.Server
	runs       handlers.RunReader
	traces     handlers.TraceReader
	progress   ports.ProgressSubscriber
	db         handlers.Pinger
	logger     *slog.Logger
}

// NewServer wires the router. traces and db may be nil.
func NewServer(
	cfg *config.Config,
	version string,
	runs handlers.RunReader,
	traces handlers.TraceReader,
	progress ports.ProgressSubscriber,
	db handlers.Pinger,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   cfg,
		version:  version,
		runs:     runs,
		traces:   traces,
		progress: progress,
		db:       db,
		logger:   logger,
	}

	s.setupRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // SSE streams stay open for the length of a run
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(s.version, s.db)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		runsHandler := handlers.NewRunsHandler(s.runs, s.traces)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)
		r.Get("/runs/{id}/trace", runsHandler.Trace)

		streamHandler := handlers.NewRunStreamHandler(s.runs, s.progress, s.logger)
		r.Get("/runs/{id}/stream", streamHandler.Stream)
	})

	s.router = r
}

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
