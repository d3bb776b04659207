// Package logkeys provides the LogAllKeys diagnostic worker: a pass-through
// stage that logs the keys present on every item it sees. Useful for
// debugging what a preceding stage actually produces.
package logkeys

import (
	"context"
	"sort"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/worker"
)

// Module implements worker.Module for this package.
type Module struct{}

// Register registers the worker with the engine.
func (m *Module) Register(r *worker.Registry) {
	r.RegisterWorker("LogAllKeys", newLogAllKeys)
}

type logAllKeys struct {
	task string
}

func newLogAllKeys(task *config.Task, rt *worker.Runtime) (worker.Worker, error) {
	return &logAllKeys{task: task.Name}, nil
}

func (w *logAllKeys) Process(ctx context.Context, item worker.Item) ([]worker.Item, error) {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ctxlog.FromContext(ctx).Info("item keys", "frame_number", item["frame_number"], "keys", keys)
	return []worker.Item{item}, nil
}
