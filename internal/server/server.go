// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidyavahini/vidyavahini/internal/config"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/runstore"
)

// Options configures a Server.
type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Config       config.ServerConfig

	// DefaultMode applies when a request does not name a mode.
	DefaultMode orchestrator.Mode

	// Runs records run history. Nil creates a store of Config.RunHistory.
	Runs *runstore.Store

	// Registry receives the HTTP metrics and backs GET /metrics. Nil creates
	// a private registry.
	Registry *prometheus.Registry

	Logger *slog.Logger
}

// Server is the HTTP front end of an Orchestrator.
type Server struct {
	orch            *orchestrator.Orchestrator
	runs            *runstore.Store
	defaultMode     orchestrator.Mode
	apiKey          string
	maxPromptLength int
	requestTimeout  time.Duration
	agentTimeout    time.Duration

	registry *prometheus.Registry
	metrics  *httpMetrics
	limiter  *ipLimiter
	logger   *slog.Logger
	handler  http.Handler
}

// New creates a Server. It panics if Options.Orchestrator is nil.
func New(opts Options) *Server {
	if opts.Orchestrator == nil {
		panic("server: orchestrator is required")
	}
	s := &Server{
		orch:            opts.Orchestrator,
		runs:            opts.Runs,
		defaultMode:     opts.DefaultMode,
		apiKey:          opts.Config.APIKey,
		maxPromptLength: opts.Config.MaxPromptLength,
		requestTimeout:  opts.Config.RequestTimeout,
		agentTimeout:    opts.Config.AgentTimeout,
		registry:        opts.Registry,
		limiter:         newIPLimiter(opts.Config.RateLimit, opts.Config.RateWindow),
		logger:          opts.Logger,
	}
	if s.runs == nil {
		s.runs = runstore.New(opts.Config.RunHistory)
	}
	if s.defaultMode == "" {
		s.defaultMode = orchestrator.ModeSequential
	}
	if s.maxPromptLength <= 0 {
		s.maxPromptLength = config.Defaults().Server.MaxPromptLength
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.metrics = newHTTPMetrics(s.registry)
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Runs returns the run history store.
func (s *Server) Runs() *runstore.Store {
	return s.runs
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Get("/agents", s.handleListAgents)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/run", s.handleRun)
			r.Post("/run/stream", s.handleRunStream)
			r.Post("/agents/{name}", s.handleRunAgent)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, waiting up to grace for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
