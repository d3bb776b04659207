package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/graph"
)

func gpuGraph(t *testing.T, tasks ...*config.Task) *graph.Graph {
	t.Helper()
	all := append([]*config.Task{
		{Name: "src", WorkerType: "gen", NumWorkers: 1, OutputQueueSize: 1},
	}, tasks...)
	g, err := graph.Build(context.Background(), &config.Pipeline{Name: "gpu", Tasks: all})
	require.NoError(t, err)
	return g
}

func TestCheckDeviceShares_AcceptsExactFull(t *testing.T) {
	t.Parallel()

	g := gpuGraph(t,
		&config.Task{
			Name: "a", WorkerType: "w", NumWorkers: 2, PrevTask: "src",
			OutputQueueSize: 1, GPU: &config.DeviceShare{Device: 0, Share: 0.25},
		},
		&config.Task{
			Name: "b", WorkerType: "w", NumWorkers: 1, PrevTask: "a",
			GPU: &config.DeviceShare{Device: 0, Share: 0.5},
		},
	)

	assert.NoError(t, checkDeviceShares(g))
}

func TestCheckDeviceShares_ToleratesFloatNoise(t *testing.T) {
	t.Parallel()

	// 3 units at 1/3 sums to 1.0 up to float error.
	g := gpuGraph(t, &config.Task{
		Name: "a", WorkerType: "w", NumWorkers: 3, PrevTask: "src",
		GPU: &config.DeviceShare{Device: 0, Share: 1.0 / 3.0},
	})

	assert.NoError(t, checkDeviceShares(g))
}

func TestCheckDeviceShares_RejectsOversubscription(t *testing.T) {
	t.Parallel()

	// 4 units at 0.3 claims 1.2 of device 0.
	g := gpuGraph(t, &config.Task{
		Name: "a", WorkerType: "w", NumWorkers: 4, PrevTask: "src",
		GPU: &config.DeviceShare{Device: 0, Share: 0.3},
	})

	err := checkDeviceShares(g)

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "device 0")
}

func TestCheckDeviceShares_DevicesAreIndependent(t *testing.T) {
	t.Parallel()

	g := gpuGraph(t,
		&config.Task{
			Name: "a", WorkerType: "w", NumWorkers: 1, PrevTask: "src",
			OutputQueueSize: 1, GPU: &config.DeviceShare{Device: 0, Share: 0.9},
		},
		&config.Task{
			Name: "b", WorkerType: "w", NumWorkers: 1, PrevTask: "a",
			GPU: &config.DeviceShare{Device: 1, Share: 0.9},
		},
	)

	assert.NoError(t, checkDeviceShares(g))
}
