package graph

import (
	"context"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
)

// Graph is the validated forest of pipeline tasks. Nodes keep the document's
// declaration order; byName supports predecessor lookups.
type Graph struct {
	Pipeline *config.Pipeline
	Nodes    []*Node

	byName map[string]*Node
}

// Node is one task plus its resolved edges.
type Node struct {
	Task *config.Task
	// Prev is the single predecessor, nil for a source task.
	Prev *Node
	// Next is the fan-out group: every task naming this one as predecessor,
	// in declaration order.
	Next []*Node
}

// IsSink reports whether the node has no successors.
func (n *Node) IsSink() bool { return len(n.Next) == 0 }

// Build validates the task list and resolves edges. The returned graph is
// immutable for the duration of a run.
func Build(ctx context.Context, pipeline *config.Pipeline) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	g := &Graph{
		Pipeline: pipeline,
		byName:   make(map[string]*Node, len(pipeline.Tasks)),
	}

	for _, task := range pipeline.Tasks {
		if task.Name == "" {
			return nil, config.Errorf("", "every task needs a name")
		}
		if _, exists := g.byName[task.Name]; exists {
			return nil, &config.DuplicateNameError{Name: task.Name}
		}
		if task.WorkerType == "" {
			return nil, config.Errorf(task.Name, "worker_type is required")
		}
		if task.NumWorkers <= 0 {
			return nil, config.Errorf(task.Name, "num_workers must be a positive integer, got %d", task.NumWorkers)
		}
		if task.GPU != nil && (task.GPU.Share <= 0 || task.GPU.Share > 1) {
			return nil, config.Errorf(task.Name, "gpu_share must be in (0, 1], got %g", task.GPU.Share)
		}

		node := &Node{Task: task}
		if !task.IsSource() {
			// Predecessors must be declared earlier in the list, which is what
			// makes the structure acyclic without a separate cycle check.
			prev, ok := g.byName[task.PrevTask]
			if !ok {
				return nil, &config.UnknownPredecessorError{Task: task.Name, Prev: task.PrevTask}
			}
			node.Prev = prev
			prev.Next = append(prev.Next, node)
		}
		g.Nodes = append(g.Nodes, node)
		g.byName[task.Name] = node
	}

	if len(g.Sources()) == 0 {
		return nil, config.Errorf("", "pipeline has no source task (every task declares a prev_task)")
	}

	// A producer's output_queue_size sizes all of its outgoing edges, so it is
	// only required once the task actually has successors.
	for _, node := range g.Nodes {
		if len(node.Next) > 0 && node.Task.OutputQueueSize <= 0 {
			return nil, config.Errorf(node.Task.Name, "output_queue_size must be a positive integer for tasks with successors")
		}
	}

	logger.Debug("Task graph built.", "tasks", len(g.Nodes), "sources", len(g.Sources()))
	return g, nil
}

// Node returns the node for a task name, or nil when absent.
func (g *Graph) Node(name string) *Node { return g.byName[name] }

// Sources returns the root nodes in declaration order.
func (g *Graph) Sources() []*Node {
	var roots []*Node
	for _, n := range g.Nodes {
		if n.Prev == nil {
			roots = append(roots, n)
		}
	}
	return roots
}
