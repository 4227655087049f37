package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vidyavahini/vidyavahini/internal/agent"
	"github.com/vidyavahini/vidyavahini/internal/config"
	"github.com/vidyavahini/vidyavahini/internal/llm"
	"github.com/vidyavahini/vidyavahini/internal/memory"
	"github.com/vidyavahini/vidyavahini/internal/orchestrator"
	"github.com/vidyavahini/vidyavahini/internal/telemetry"
)

// app is the wired process: configuration, logging, tracing and an
// orchestrator holding the configured workers.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	orch     *orchestrator.Orchestrator

	tracing *telemetry.Tracing
	memory  memory.Factory
}

// newApp loads configuration from flags.ConfigDir and builds the
// orchestrator. Logs and spans go to logOut, which must not be the stream an
// MCP client reads.
func newApp(ctx context.Context, flags *globalFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return nil, err
	}
	if flags.LogLevel != "" {
		cfg.Telemetry.LogLevel = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := telemetry.NewLogger(logOut, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	tracing, err := telemetry.NewTracing(cfg.Telemetry.Tracing, logOut, version)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, tracing: tracing, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gen, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	a.memory, err = memory.NewFactory(cfg.Memory.Backend, cfg.Memory.Location)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open memory: %w", err)
	}

	workers, err := agent.NewRegistry().BuildAll(cfg.Workers, agent.Deps{
		Generator: gen,
		Memory:    a.memory,
		Logger:    logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build workers: %w", err)
	}

	a.orch = orchestrator.New(orchestrator.Options{
		Policy:           cfg.Policy(),
		TimeoutPerWorker: cfg.Orchestrator.WorkerTimeout,
		MaxParallel:      cfg.Orchestrator.MaxParallel,
		FilterInputs:     cfg.Orchestrator.FilterInputs,
		Logger:           logger,
		Metrics:          orchestrator.NewMetrics(a.registry),
		Tracer:           tracing.Tracer("vidyavahini/orchestrator"),
	})
	for _, w := range workers {
		if err := a.orch.Register(w); err != nil {
			a.close()
			return nil, err
		}
	}

	logger.Debug("orchestrator ready", "workers", len(workers), "mode", cfg.Mode())
	return a, nil
}

// close flushes spans and releases the memory backend.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	if a.memory != nil {
		errs = append(errs, a.memory.Close())
	}
	return errors.Join(errs...)
}
