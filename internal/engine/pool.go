package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/graph"
	"github.com/vk/vidpipe/internal/queue"
	"github.com/vk/vidpipe/internal/worker"
)

// errShuttingDown is handed to a source whose emit arrives after another
// pool went fatal. It marks a stop the source did not cause.
var errShuttingDown = errors.New("pipeline is shutting down")

// Pool executes one task with NumWorkers concurrent units. Every unit holds
// its own worker instance, pulls from the task's single input queue and
// broadcasts results into every successor queue.
type Pool struct {
	node *graph.Node
	in   *queue.Queue // nil for sources
	outs []*queue.Queue

	stages  []worker.Worker // one per unit, stage tasks only
	sources []worker.Source // one per unit, source tasks only

	// failed flips when any unit hits a pool-fatal condition; the remaining
	// units switch to drain-and-discard so the graph keeps moving.
	failed   atomic.Bool
	failures atomic.Int64
}

// newPool constructs the pool and all of its worker instances up front, so a
// bad worker_type or parameter set fails the run before any pool starts.
func newPool(node *graph.Node, fabric *queue.Fabric, registry *worker.Registry, rt *worker.Runtime) (*Pool, error) {
	p := &Pool{
		node: node,
		in:   fabric.Input(node.Task.Name),
		outs: fabric.Outputs(node.Task.Name),
	}
	for i := 0; i < node.Task.NumWorkers; i++ {
		if node.Task.IsSource() {
			src, err := registry.NewSource(node.Task, rt)
			if err != nil {
				return nil, err
			}
			p.sources = append(p.sources, src)
		} else {
			w, err := registry.NewWorker(node.Task, rt)
			if err != nil {
				return nil, err
			}
			p.stages = append(p.stages, w)
		}
	}
	return p, nil
}

// Run executes all units and returns the first pool-fatal error, after every
// unit has drained and emitted its end-of-stream markers.
func (p *Pool) Run(ctx context.Context) error {
	ctx = ctxlog.With(ctx, "task", p.node.Task.Name)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Pool starting.", "workers", p.node.Task.NumWorkers, "worker_type", p.node.Task.WorkerType)

	// A plain group, not WithContext: a failing unit must not cancel its
	// siblings, they still have draining to do.
	var g errgroup.Group
	for i := 0; i < p.node.Task.NumWorkers; i++ {
		idx := i
		g.Go(func() error {
			unitCtx := ctxlog.With(ctx, "unit", idx)
			if p.node.Task.IsSource() {
				return p.runSourceUnit(unitCtx, p.sources[idx])
			}
			return p.runStageUnit(unitCtx, p.stages[idx])
		})
	}
	err := g.Wait()
	if err != nil {
		logger.Error("Pool finished with a fatal error.", "error", err)
	} else {
		logger.Debug("Pool drained and exited.")
	}
	return err
}

// runSourceUnit drives one source instance until its external input is
// exhausted or the run is canceled, then signals end-of-stream downstream.
func (p *Pool) runSourceUnit(ctx context.Context, src worker.Source) (err error) {
	logger := ctxlog.FromContext(ctx)
	defer p.closeUnit(ctx, src)

	emitted := false
	defer func() { p.emitSentinels(ctx, &emitted) }()

	if err := p.startUnit(ctx, src); err != nil {
		p.failed.Store(true)
		return err
	}

	emit := func(item worker.Item) error {
		if p.failed.Load() {
			return errShuttingDown
		}
		return p.broadcast(ctx, item)
	}

	genErr := src.Generate(ctx, emit)
	switch {
	case errors.Is(genErr, errShuttingDown):
		// Another pool went fatal and owns the root cause; this source just
		// stops cleanly.
		logger.Debug("Source stopped by pipeline shutdown.")
		return nil
	case genErr == nil || errors.Is(genErr, context.Canceled):
		logger.Debug("Source exhausted.")
		p.forwardFlush(ctx, src)
		return nil
	default:
		// A failed source cannot make progress; convert the failure into an
		// accelerated end-of-stream via the deferred sentinels.
		logger.Error("Source failed.", "error", genErr)
		p.failed.Store(true)
		return genErr
	}
}

// runStageUnit is the core consume→process→broadcast loop for one unit.
func (p *Pool) runStageUnit(ctx context.Context, w worker.Worker) (err error) {
	logger := ctxlog.FromContext(ctx)
	task := p.node.Task
	defer p.closeUnit(ctx, w)

	emitted := false
	defer func() { p.emitSentinels(ctx, &emitted) }()

	if err := p.startUnit(ctx, w); err != nil {
		p.failed.Store(true)
		p.emitSentinels(ctx, &emitted)
		p.drainInput()
		return err
	}

	var required []string
	if kr, ok := w.(worker.KeyRequirer); ok {
		required = kr.RequiredKeys()
	}

	for {
		if p.failed.Load() {
			// A sibling went fatal: get our markers out, then keep the
			// upstream unblocked by discarding the rest of the stream.
			p.emitSentinels(ctx, &emitted)
			p.drainInput()
			return nil
		}

		item, ok := p.in.Take()
		if !ok {
			break
		}

		if key, ok := missingKey(item, required); ok {
			logger.Warn("Dropping item.", "error", &worker.MissingKeyError{Task: task.Name, Key: key})
			continue
		}

		results, procErr := w.Process(ctx, item)
		if procErr != nil {
			var exhausted *worker.ResourceExhaustedError
			if errors.As(procErr, &exhausted) {
				logger.Error("Pool-fatal resource exhaustion.", "error", procErr)
				p.failed.Store(true)
				p.emitSentinels(ctx, &emitted)
				p.drainInput()
				return procErr
			}

			count := p.failures.Add(1)
			logger.Warn("Worker failed on item, dropping it.", "error", procErr, "failures", count)
			if task.MaxFailures > 0 && count >= int64(task.MaxFailures) {
				escErr := config.Errorf(task.Name, "failure threshold reached (%d item failures)", count)
				logger.Error("Escalating repeated item failures to pool-fatal.", "error", escErr)
				p.failed.Store(true)
				p.emitSentinels(ctx, &emitted)
				p.drainInput()
				return escErr
			}
			continue
		}

		for _, result := range results {
			if err := p.broadcast(ctx, result); err != nil {
				p.failed.Store(true)
				p.emitSentinels(ctx, &emitted)
				p.drainInput()
				return err
			}
		}
	}

	p.forwardFlush(ctx, w)
	return nil
}

// broadcast writes an independent copy of the item into every successor
// queue: each successor observes the complete stream, never a partition.
func (p *Pool) broadcast(ctx context.Context, item worker.Item) error {
	if len(p.node.Task.Rename) > 0 {
		item.Rename(p.node.Task.Rename)
	}
	for i, out := range p.outs {
		payload := item
		if i > 0 {
			payload = item.Clone()
		}
		if err := out.Put(payload); err != nil {
			// Put after edge termination is a bug in the termination
			// accounting; abort the pool and surface it loudly.
			ctxlog.FromContext(ctx).Error("Queue invariant violated.", "queue", out.Name(), "error", err)
			return err
		}
	}
	return nil
}

// forwardFlush empties a batching worker's buffer downstream before the
// unit's own end-of-stream markers, so a partial batch survives shutdown.
func (p *Pool) forwardFlush(ctx context.Context, w any) {
	f, ok := w.(worker.Flusher)
	if !ok {
		return
	}
	items, err := f.Flush(ctx)
	if err != nil {
		ctxlog.FromContext(ctx).Error("Flush on end-of-stream failed.", "error", err)
		return
	}
	for _, item := range items {
		if err := p.broadcast(ctx, item); err != nil {
			ctxlog.FromContext(ctx).Error("Dropped flushed item.", "error", err)
			return
		}
	}
}

// emitSentinels sends this unit's single end-of-stream marker into every
// successor queue, exactly once per unit.
func (p *Pool) emitSentinels(ctx context.Context, emitted *bool) {
	if *emitted {
		return
	}
	*emitted = true
	for _, out := range p.outs {
		if err := out.PutSentinel(); err != nil {
			ctxlog.FromContext(ctx).Error("Queue invariant violated.", "queue", out.Name(), "error", err)
		}
	}
}

// drainInput discards the remainder of the input stream so upstream
// producers blocked on a full queue can finish their own shutdown.
func (p *Pool) drainInput() {
	if p.in == nil {
		return
	}
	for {
		if _, ok := p.in.Take(); !ok {
			return
		}
	}
}

func (p *Pool) startUnit(ctx context.Context, w any) error {
	if s, ok := w.(worker.Starter); ok {
		if err := s.Startup(ctx); err != nil {
			ctxlog.FromContext(ctx).Error("Worker startup failed.", "error", err)
			return err
		}
	}
	return nil
}

func (p *Pool) closeUnit(ctx context.Context, w any) {
	if c, ok := w.(worker.Closer); ok {
		if err := c.Shutdown(ctx); err != nil {
			ctxlog.FromContext(ctx).Error("Worker shutdown failed.", "error", err)
		}
	}
}

func missingKey(item worker.Item, required []string) (string, bool) {
	for _, key := range required {
		if _, ok := item[key]; !ok {
			return key, true
		}
	}
	return "", false
}
