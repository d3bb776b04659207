package app

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/engine"
	"github.com/vk/vidpipe/internal/worker"
)

// Run executes the pipeline to completion. Canceling ctx asks the sources to
// stop; items already accepted into the graph still drain through to the
// sinks before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	rt := worker.NewRuntime(a.pipeline, a.config.OutPath)
	if err := os.MkdirAll(rt.OutPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	a.logger.Info("Run prepared.", "run_id", rt.RunID, "out_path", rt.OutPath)

	eng, err := engine.New(ctx, a.graph, a.registry, rt)
	if err != nil {
		return fmt.Errorf("failed to wire pipeline engine: %w", err)
	}

	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	return nil
}
