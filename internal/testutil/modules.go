package testutil

import (
	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/worker"
)

// SimpleModule is a test helper for creating a mock worker module that
// registers a single source or stage factory.
type SimpleModule struct {
	SourceName string
	Source     worker.SourceFactory

	WorkerName string
	Worker     worker.WorkerFactory
}

// Register implements the worker.Module interface.
func (m *SimpleModule) Register(r *worker.Registry) {
	if m.SourceName != "" && m.Source != nil {
		r.RegisterSource(m.SourceName, m.Source)
	}
	if m.WorkerName != "" && m.Worker != nil {
		r.RegisterWorker(m.WorkerName, m.Worker)
	}
}

// StaticSource registers name as a source that always resolves to src. Every
// pool unit shares the same instance, so use NumWorkers = 1 or a
// concurrency-safe source.
func StaticSource(name string, src worker.Source) *SimpleModule {
	return &SimpleModule{
		SourceName: name,
		Source: func(_ *config.Task, _ *worker.Runtime) (worker.Source, error) {
			return src, nil
		},
	}
}

// StaticWorker registers name as a stage worker that always resolves to w.
func StaticWorker(name string, w worker.Worker) *SimpleModule {
	return &SimpleModule{
		WorkerName: name,
		Worker: func(_ *config.Task, _ *worker.Runtime) (worker.Worker, error) {
			return w, nil
		},
	}
}
