// Package app wires the application together: logger, config document,
// worker registry, task graph and engine.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/graph"
	"github.com/vk/vidpipe/internal/loader"
	"github.com/vk/vidpipe/internal/worker"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// ConfigPath locates the pipeline document (.hcl, .yml or .yaml).
	ConfigPath string
	// OutPath is the base directory for run output; each run writes into a
	// run-scoped subdirectory.
	OutPath string
	// LogFormat is "text" or "json".
	LogFormat string
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string
}

// App encapsulates a fully wired, not yet running pipeline application.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   Config
	pipeline *config.Pipeline
	graph    *graph.Graph
	registry *worker.Registry
}

// NewApp loads and validates the pipeline document and builds the task
// graph. Any configuration problem is returned here, before anything starts.
// Passing modules overrides the compiled-in worker set (used by tests).
func NewApp(ctx context.Context, outW io.Writer, cfg Config, modules ...worker.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured.")

	pipeline, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	logger.Debug("Pipeline document loaded.", "pipeline", pipeline.Name, "tasks", len(pipeline.Tasks))

	g, err := graph.Build(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to build task graph: %w", err)
	}

	registry := worker.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(registry)
	}
	logger.Debug("Worker modules registered.", "count", len(modules))

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		pipeline: pipeline,
		graph:    g,
		registry: registry,
	}, nil
}

// Registry returns the app's worker registry. Primarily for tests.
func (a *App) Registry() *worker.Registry { return a.registry }

// Pipeline returns the loaded document. Primarily for tests.
func (a *App) Pipeline() *config.Pipeline { return a.pipeline }
