// Package worker defines the contract every pipeline stage implements, the
// item record that flows between stages, and the registry that maps a
// worker_type string from the config document to a constructor.
package worker

import (
	"context"
	"fmt"
)

// Item is the key→value record flowing through the pipeline, accumulating
// per-frame state as it traverses the graph. Keys only accumulate or are
// explicitly renamed; stages never silently drop them.
type Item map[string]any

// Clone returns a shallow copy. Broadcast fan-out hands each successor its
// own Item so downstream stages can annotate independently; large values
// (frames) are shared and treated as read-only by convention.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Rename applies a configured old→new key mapping in place.
func (it Item) Rename(mapping map[string]string) {
	for from, to := range mapping {
		if v, ok := it[from]; ok {
			it[to] = v
			delete(it, from)
		}
	}
}

// Worker processes one item at a time, returning zero or more result items:
// pass-through, filtering and one-to-many expansion are all valid.
type Worker interface {
	Process(ctx context.Context, item Item) ([]Item, error)
}

// EmitFunc delivers one item downstream, blocking under backpressure. It
// returns an error once the run is being torn down.
type EmitFunc func(Item) error

// Source is the contract for root tasks: generate items until the external
// input is exhausted or ctx is canceled, delivering each through emit.
type Source interface {
	Generate(ctx context.Context, emit EmitFunc) error
}

// Starter is implemented by workers that acquire resources before the first
// item (database connections, subprocesses, model weights).
type Starter interface {
	Startup(ctx context.Context) error
}

// Closer is implemented by workers that release resources after the last
// item.
type Closer interface {
	Shutdown(ctx context.Context) error
}

// Flusher is implemented by batching workers. It runs when the unit's input
// is exhausted, before the unit emits its own end-of-stream markers, and any
// returned items are forwarded downstream. Sinks use it to write out a
// partial batch instead of losing it.
type Flusher interface {
	Flush(ctx context.Context) ([]Item, error)
}

// KeyRequirer lets a worker declare the keys it needs present on input. The
// engine checks them before Process; an absent key drops the item with a
// MissingKeyError instead of invoking the worker.
type KeyRequirer interface {
	RequiredKeys() []string
}

// MissingKeyError reports an item lacking a key its worker requires. The item
// is logged and dropped; the pool continues.
type MissingKeyError struct {
	Task string
	Key  string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("task %q: item is missing required key %q", e.Task, e.Key)
}

// ResourceExhaustedError signals device or memory overcommit. It is
// pool-fatal: the owning pool stops accepting work and propagates an
// accelerated end-of-stream downstream instead of hanging the graph.
type ResourceExhaustedError struct {
	Resource string
	Err      error
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource %s exhausted: %v", e.Resource, e.Err)
}

func (e *ResourceExhaustedError) Unwrap() error { return e.Err }
