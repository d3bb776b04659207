package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/vidpipe/internal/config"
)

type nopWorker struct{}

func (nopWorker) Process(context.Context, Item) ([]Item, error) { return nil, nil }

type nopSource struct{}

func (nopSource) Generate(context.Context, EmitFunc) error { return nil }

func testRegistry() *Registry {
	r := NewRegistry()
	r.RegisterWorker("pass", func(*config.Task, *Runtime) (Worker, error) {
		return nopWorker{}, nil
	})
	r.RegisterSource("gen", func(*config.Task, *Runtime) (Source, error) {
		return nopSource{}, nil
	})
	return r
}

func TestRegistry_NewWorker(t *testing.T) {
	t.Parallel()

	r := testRegistry()

	w, err := r.NewWorker(&config.Task{Name: "t", WorkerType: "pass"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, w)

	_, err = r.NewWorker(&config.Task{Name: "t", WorkerType: "nope"}, nil)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "t", cfgErr.Task)
}

func TestRegistry_NewSource(t *testing.T) {
	t.Parallel()

	r := testRegistry()

	s, err := r.NewSource(&config.Task{Name: "t", WorkerType: "gen"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = r.NewSource(&config.Task{Name: "t", WorkerType: "pass"}, nil)
	assert.Error(t, err, "a stage worker does not resolve as a source")
}

func TestRegistry_Resolves_ChecksRole(t *testing.T) {
	t.Parallel()

	r := testRegistry()

	// A root task needs a source registration, a staged task a worker one.
	assert.NoError(t, r.Resolves(&config.Task{Name: "root", WorkerType: "gen"}))
	assert.NoError(t, r.Resolves(&config.Task{Name: "mid", WorkerType: "pass", PrevTask: "root"}))
	assert.Error(t, r.Resolves(&config.Task{Name: "root", WorkerType: "pass"}))
	assert.Error(t, r.Resolves(&config.Task{Name: "mid", WorkerType: "gen", PrevTask: "root"}))
	assert.Error(t, r.Resolves(&config.Task{Name: "root", WorkerType: "unknown"}))
}
