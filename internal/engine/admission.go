package engine

import (
	"fmt"
	"sort"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/graph"
)

// shareEpsilon absorbs float noise when shares like 3×1/3 are summed.
const shareEpsilon = 1e-9

// checkDeviceShares enforces the shared-device admission contract: for every
// declared device, the sum of num_workers × gpu_share across tasks must not
// exceed 1.0. This is checked once at construction; the engine never migrates
// work between devices at runtime.
func checkDeviceShares(g *graph.Graph) error {
	totals := make(map[int]float64)
	claimants := make(map[int][]string)
	for _, node := range g.Nodes {
		gpu := node.Task.GPU
		if gpu == nil {
			continue
		}
		totals[gpu.Device] += gpu.Share * float64(node.Task.NumWorkers)
		claimants[gpu.Device] = append(claimants[gpu.Device], node.Task.Name)
	}

	devices := make([]int, 0, len(totals))
	for d := range totals {
		devices = append(devices, d)
	}
	sort.Ints(devices)

	for _, d := range devices {
		if totals[d] > 1.0+shareEpsilon {
			return config.Errorf("", "device %d oversubscribed: tasks %v claim %s of it", d, claimants[d], fmt.Sprintf("%.2f", totals[d]))
		}
	}
	return nil
}
