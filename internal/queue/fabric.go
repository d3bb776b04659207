package queue

import (
	"context"

	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/graph"
)

// Fabric owns every edge queue of a run, indexed by edge. A producer with k
// successors gets k independent queues, each sized by the producer's
// output_queue_size, so every successor observes the complete stream rather
// than a partition of it. Sinks allocate nothing.
type Fabric struct {
	queues  []*Queue
	inputs  map[string]*Queue
	outputs map[string][]*Queue
}

// Build allocates one queue per producer→consumer edge of the graph. The
// expected marker count of each queue is the producer's pool size.
func Build(ctx context.Context, g *graph.Graph) *Fabric {
	logger := ctxlog.FromContext(ctx)

	f := &Fabric{
		inputs:  make(map[string]*Queue),
		outputs: make(map[string][]*Queue),
	}
	for _, node := range g.Nodes {
		for _, succ := range node.Next {
			q := New(node.Task.Name, succ.Task.Name, node.Task.OutputQueueSize, node.Task.NumWorkers)
			f.queues = append(f.queues, q)
			f.inputs[succ.Task.Name] = q
			f.outputs[node.Task.Name] = append(f.outputs[node.Task.Name], q)
		}
	}

	logger.Debug("Queue fabric built.", "edges", len(f.queues))
	return f
}

// Input returns the single input queue of a task, nil for sources.
func (f *Fabric) Input(task string) *Queue { return f.inputs[task] }

// Outputs returns a task's outbound queues in successor declaration order,
// empty for sinks.
func (f *Fabric) Outputs(task string) []*Queue { return f.outputs[task] }

// Queues returns every edge queue, for the monitor.
func (f *Fabric) Queues() []*Queue { return f.queues }
