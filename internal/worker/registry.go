package worker

import (
	"github.com/vk/vidpipe/internal/config"
)

// WorkerFactory builds one worker unit for a stage task. The engine calls it
// once per pool unit, so instances never share mutable state.
type WorkerFactory func(task *config.Task, rt *Runtime) (Worker, error)

// SourceFactory builds one source unit for a root task.
type SourceFactory func(task *config.Task, rt *Runtime) (Source, error)

// Module is implemented by every compiled-in worker package to register its
// factories under their worker_type names.
type Module interface {
	Register(r *Registry)
}

// Registry maps worker_type strings from the config document to factories.
// It is populated explicitly at startup; there is no reflective dispatch.
type Registry struct {
	workers map[string]WorkerFactory
	sources map[string]SourceFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]WorkerFactory),
		sources: make(map[string]SourceFactory),
	}
}

// RegisterWorker binds a stage worker factory to a worker_type name.
func (r *Registry) RegisterWorker(name string, f WorkerFactory) {
	r.workers[name] = f
}

// RegisterSource binds a source factory to a worker_type name.
func (r *Registry) RegisterSource(name string, f SourceFactory) {
	r.sources[name] = f
}

// NewWorker constructs one stage worker unit, failing with a config error
// when the worker_type is not registered as a stage worker.
func (r *Registry) NewWorker(task *config.Task, rt *Runtime) (Worker, error) {
	f, ok := r.workers[task.WorkerType]
	if !ok {
		return nil, r.unknown(task, "stage")
	}
	return f(task, rt)
}

// NewSource constructs one source unit, failing with a config error when the
// worker_type is not registered as a source.
func (r *Registry) NewSource(task *config.Task, rt *Runtime) (Source, error) {
	f, ok := r.sources[task.WorkerType]
	if !ok {
		return nil, r.unknown(task, "source")
	}
	return f(task, rt)
}

// Resolves reports whether a task's worker_type is registered with the right
// role for its position in the graph. Checked before any pool starts.
func (r *Registry) Resolves(task *config.Task) error {
	if task.IsSource() {
		if _, ok := r.sources[task.WorkerType]; !ok {
			return r.unknown(task, "source")
		}
		return nil
	}
	if _, ok := r.workers[task.WorkerType]; !ok {
		return r.unknown(task, "stage")
	}
	return nil
}

func (r *Registry) unknown(task *config.Task, role string) error {
	return config.Errorf(task.Name, "worker_type %q is not a registered %s worker", task.WorkerType, role)
}
