package testutil

import (
	"context"
	"sync"

	"github.com/vk/vidpipe/internal/worker"
)

// Emitter is a source that emits a fixed slice of items and stops.
type Emitter struct {
	Items []worker.Item
}

// Generate implements worker.Source.
func (e *Emitter) Generate(ctx context.Context, emit worker.EmitFunc) error {
	for _, item := range e.Items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := emit(item.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// SequenceItems builds n items carrying a "seq" counter, the usual feed for
// ordering and throughput tests.
func SequenceItems(n int) []worker.Item {
	items := make([]worker.Item, n)
	for i := range items {
		items[i] = worker.Item{"seq": i}
	}
	return items
}

// Collector is a sink that records every item it sees. It is safe for use
// from a pool with multiple units.
type Collector struct {
	mu    sync.Mutex
	items []worker.Item
}

// Process implements worker.Worker, passing the item through unchanged.
func (c *Collector) Process(_ context.Context, item worker.Item) ([]worker.Item, error) {
	c.mu.Lock()
	c.items = append(c.items, item)
	c.mu.Unlock()
	return []worker.Item{item}, nil
}

// Items returns a snapshot of everything collected so far.
func (c *Collector) Items() []worker.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]worker.Item, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items collected so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// FuncWorker is a fully scriptable stage worker. Only Fn is mandatory; the
// optional hooks make it implement the corresponding engine interfaces.
type FuncWorker struct {
	Fn         func(ctx context.Context, item worker.Item) ([]worker.Item, error)
	StartupFn  func(ctx context.Context) error
	ShutdownFn func(ctx context.Context) error
	FlushFn    func(ctx context.Context) ([]worker.Item, error)
	Requires   []string
}

// Process implements worker.Worker.
func (f *FuncWorker) Process(ctx context.Context, item worker.Item) ([]worker.Item, error) {
	return f.Fn(ctx, item)
}

// Startup implements worker.Starter.
func (f *FuncWorker) Startup(ctx context.Context) error {
	if f.StartupFn == nil {
		return nil
	}
	return f.StartupFn(ctx)
}

// Shutdown implements worker.Closer.
func (f *FuncWorker) Shutdown(ctx context.Context) error {
	if f.ShutdownFn == nil {
		return nil
	}
	return f.ShutdownFn(ctx)
}

// Flush implements worker.Flusher.
func (f *FuncWorker) Flush(ctx context.Context) ([]worker.Item, error) {
	if f.FlushFn == nil {
		return nil, nil
	}
	return f.FlushFn(ctx)
}

// RequiredKeys implements worker.KeyRequirer.
func (f *FuncWorker) RequiredKeys() []string { return f.Requires }

// FuncSource is a scriptable source.
type FuncSource struct {
	Fn func(ctx context.Context, emit worker.EmitFunc) error
}

// Generate implements worker.Source.
func (f *FuncSource) Generate(ctx context.Context, emit worker.EmitFunc) error {
	return f.Fn(ctx, emit)
}

// Batcher is a stage worker that buffers items and releases them in batches
// of Size, flushing the remainder on end-of-stream. It exists to exercise
// the engine's flush forwarding.
type Batcher struct {
	Size int

	mu      sync.Mutex
	buf     []worker.Item
	Flushes []int // batch sizes in release order
}

// Process implements worker.Worker.
func (b *Batcher) Process(_ context.Context, item worker.Item) ([]worker.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, item)
	if len(b.buf) < b.Size {
		return nil, nil
	}
	return b.release(), nil
}

// Flush implements worker.Flusher.
func (b *Batcher) Flush(_ context.Context) ([]worker.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil, nil
	}
	return b.release(), nil
}

func (b *Batcher) release() []worker.Item {
	out := b.buf
	b.buf = nil
	b.Flushes = append(b.Flushes, len(out))
	return out
}
