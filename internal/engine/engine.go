package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/graph"
	"github.com/vk/vidpipe/internal/queue"
	"github.com/vk/vidpipe/internal/worker"
)

// Engine binds a validated graph to a queue fabric and one pool per task,
// plus the queue monitor. Everything is wired at construction; Run only
// executes.
type Engine struct {
	graph   *graph.Graph
	fabric  *queue.Fabric
	pools   []*Pool
	monitor *queue.Monitor
}

// New wires the run. All configuration problems surface here, before any
// pool starts: unresolved worker types, bad worker parameters and
// oversubscribed device shares.
func New(ctx context.Context, g *graph.Graph, registry *worker.Registry, rt *worker.Runtime) (*Engine, error) {
	for _, node := range g.Nodes {
		if err := registry.Resolves(node.Task); err != nil {
			return nil, err
		}
	}
	if err := checkDeviceShares(g); err != nil {
		return nil, err
	}

	fabric := queue.Build(ctx, g)

	e := &Engine{graph: g, fabric: fabric}
	for _, node := range g.Nodes {
		pool, err := newPool(node, fabric, registry, rt)
		if err != nil {
			return nil, err
		}
		e.pools = append(e.pools, pool)
	}

	opts := g.Pipeline.Options
	e.monitor = queue.NewMonitor(opts.QueueMonitorDelay, opts.QueueMonitorMeterSize, fabric.Queues())
	return e, nil
}

// Run executes every pool to completion. Canceling ctx stops the sources;
// items already accepted into the graph drain through to the sinks before
// Run returns. The returned error is the first pool-fatal error, after the
// whole graph has reached a clean stop.
func (e *Engine) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Pipeline starting.",
		"pipeline", e.graph.Pipeline.Name,
		"tasks", len(e.pools),
		"edges", len(e.fabric.Queues()),
	)

	// The monitor outlives an external cancellation on purpose: it keeps
	// reporting queue depths while the graph drains.
	monitorCtx, stopMonitor := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMonitor()
	go e.monitor.Run(monitorCtx)

	var g errgroup.Group
	for _, pool := range e.pools {
		g.Go(func() error { return pool.Run(ctx) })
	}
	err := g.Wait()
	stopMonitor()

	if err != nil {
		logger.Error("Pipeline stopped after a fatal error; partial results may exist.", "error", err)
		return err
	}
	logger.Info("Pipeline drained and stopped.")
	return nil
}

// Queues exposes the fabric's edges, for tests and inspection.
func (e *Engine) Queues() []*queue.Queue { return e.fabric.Queues() }
