package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/engine"
	"github.com/vk/vidpipe/internal/graph"
	"github.com/vk/vidpipe/internal/testutil"
	"github.com/vk/vidpipe/internal/worker"
)

// runGraph wires an engine over the given task list and worker modules and
// runs it to completion.
func runGraph(ctx context.Context, t *testing.T, tasks []*config.Task, modules ...worker.Module) error {
	t.Helper()

	pipeline := &config.Pipeline{
		Name: "test",
		Options: config.Options{
			QueueMonitorDelay:     time.Hour,
			QueueMonitorMeterSize: 10,
		},
		Tasks: tasks,
	}
	g, err := graph.Build(ctx, pipeline)
	require.NoError(t, err)

	registry := worker.NewRegistry()
	for _, mod := range modules {
		mod.Register(registry)
	}

	eng, err := engine.New(ctx, g, registry, worker.NewRuntime(pipeline, t.TempDir()))
	require.NoError(t, err)
	return eng.Run(ctx)
}

func chain(srcWorkers, midWorkers, sinkWorkers int) []*config.Task {
	return []*config.Task{
		{Name: "src", WorkerType: "gen", NumWorkers: srcWorkers, OutputQueueSize: 4},
		{Name: "mid", WorkerType: "stage", NumWorkers: midWorkers, PrevTask: "src", OutputQueueSize: 4},
		{Name: "sink", WorkerType: "collect", NumWorkers: sinkWorkers, PrevTask: "mid"},
	}
}

func TestEngine_LinearChain_DeliversAllItemsInOrder(t *testing.T) {
	t.Parallel()

	const n = 50
	mid := &testutil.Collector{}
	sink := &testutil.Collector{}

	err := runGraph(context.Background(), t, chain(1, 1, 1),
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(n)}),
		testutil.StaticWorker("stage", mid),
		testutil.StaticWorker("collect", sink),
	)
	require.NoError(t, err)

	// Single-unit pools preserve arrival order end to end.
	got := sink.Items()
	require.Len(t, got, n)
	for i, item := range got {
		assert.Equal(t, i, item["seq"])
	}
	assert.Equal(t, n, mid.Len())
}

func TestEngine_AsymmetricPools_TerminateCleanly(t *testing.T) {
	t.Parallel()

	const n = 200
	sink := &testutil.Collector{}

	// Pool sizes 2, 5, 3 exercise the per-edge marker countdown across
	// unequal producer and consumer counts.
	tasks := chain(2, 5, 3)
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(n)}),
		testutil.StaticWorker("stage", &testutil.Collector{}),
		testutil.StaticWorker("collect", sink),
	)
	require.NoError(t, err)

	// Two source units each emit the sequence once.
	assert.Equal(t, 2*n, sink.Len())
}

func TestEngine_FanOut_EverySuccessorSeesFullStream(t *testing.T) {
	t.Parallel()

	const n = 30
	left := &testutil.Collector{}
	right := &testutil.Collector{}

	tasks := []*config.Task{
		{Name: "src", WorkerType: "gen", NumWorkers: 1, OutputQueueSize: 4},
		{Name: "left", WorkerType: "left", NumWorkers: 1, PrevTask: "src"},
		{Name: "right", WorkerType: "right", NumWorkers: 1, PrevTask: "src"},
	}
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(n)}),
		testutil.StaticWorker("left", left),
		testutil.StaticWorker("right", right),
	)
	require.NoError(t, err)

	assert.Equal(t, n, left.Len(), "fan-out duplicates the stream, it never partitions it")
	assert.Equal(t, n, right.Len())
}

func TestEngine_FanOut_ClonesAreIndependent(t *testing.T) {
	t.Parallel()

	// The left branch mutates its items; the right branch must not see it.
	left := &testutil.FuncWorker{
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			item["tainted"] = true
			return nil, nil
		},
	}
	right := &testutil.Collector{}

	tasks := []*config.Task{
		{Name: "src", WorkerType: "gen", NumWorkers: 1, OutputQueueSize: 4},
		{Name: "left", WorkerType: "mutate", NumWorkers: 1, PrevTask: "src"},
		{Name: "right", WorkerType: "collect", NumWorkers: 1, PrevTask: "src"},
	}
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(10)}),
		testutil.StaticWorker("mutate", left),
		testutil.StaticWorker("collect", right),
	)
	require.NoError(t, err)

	for _, item := range right.Items() {
		assert.NotContains(t, item, "tainted")
	}
}

func TestEngine_Rename_AppliedBeforeForwarding(t *testing.T) {
	t.Parallel()

	sink := &testutil.Collector{}

	tasks := []*config.Task{
		{Name: "src", WorkerType: "gen", NumWorkers: 1, OutputQueueSize: 4},
		{
			Name: "mid", WorkerType: "stage", NumWorkers: 1, PrevTask: "src",
			OutputQueueSize: 4, Rename: map[string]string{"seq": "frame_number"},
		},
		{Name: "sink", WorkerType: "collect", NumWorkers: 1, PrevTask: "mid"},
	}
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(5)}),
		testutil.StaticWorker("stage", &testutil.Collector{}),
		testutil.StaticWorker("collect", sink),
	)
	require.NoError(t, err)

	for _, item := range sink.Items() {
		assert.Contains(t, item, "frame_number")
		assert.NotContains(t, item, "seq")
	}
}

func TestEngine_OneToManyExpansion(t *testing.T) {
	t.Parallel()

	expand := &testutil.FuncWorker{
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			a, b := item.Clone(), item.Clone()
			a["half"] = 0
			b["half"] = 1
			return []worker.Item{a, b}, nil
		},
	}
	sink := &testutil.Collector{}

	err := runGraph(context.Background(), t, chain(1, 1, 1),
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(10)}),
		testutil.StaticWorker("stage", expand),
		testutil.StaticWorker("collect", sink),
	)
	require.NoError(t, err)

	assert.Equal(t, 20, sink.Len())
}

func TestEngine_ItemFailure_IsIsolated(t *testing.T) {
	t.Parallel()

	flaky := &testutil.FuncWorker{
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			if item["seq"].(int)%5 == 0 {
				return nil, errors.New("corrupt frame")
			}
			return []worker.Item{item}, nil
		},
	}
	sink := &testutil.Collector{}

	err := runGraph(context.Background(), t, chain(1, 1, 1),
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(25)}),
		testutil.StaticWorker("stage", flaky),
		testutil.StaticWorker("collect", sink),
	)

	// Per-item failures drop the item and nothing else.
	require.NoError(t, err)
	assert.Equal(t, 20, sink.Len())
}

func TestEngine_MaxFailures_EscalatesToPoolFatal(t *testing.T) {
	t.Parallel()

	broken := &testutil.FuncWorker{
		Fn: func(context.Context, worker.Item) ([]worker.Item, error) {
			return nil, errors.New("bad item")
		},
	}
	sink := &testutil.Collector{}

	tasks := chain(1, 1, 1)
	tasks[1].MaxFailures = 5
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(100)}),
		testutil.StaticWorker("stage", broken),
		testutil.StaticWorker("collect", sink),
	)

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mid", cfgErr.Task)
	assert.Contains(t, err.Error(), "failure threshold")
}

func TestEngine_ResourceExhaustion_IsPoolFatalButDrains(t *testing.T) {
	t.Parallel()

	poisoned := &testutil.FuncWorker{
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			if item["seq"].(int) == 10 {
				return nil, &worker.ResourceExhaustedError{
					Resource: "gpu:0",
					Err:      errors.New("out of device memory"),
				}
			}
			return []worker.Item{item}, nil
		},
	}
	sink := &testutil.Collector{}

	// Multiple units on the failing pool: the siblings must notice the
	// fatal flag and stop instead of hanging the upstream or downstream.
	tasks := chain(1, 3, 1)
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(500)}),
		testutil.StaticWorker("stage", poisoned),
		testutil.StaticWorker("collect", sink),
	)

	var exhausted *worker.ResourceExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.LessOrEqual(t, sink.Len(), 500)
}

func TestEngine_MissingRequiredKey_DropsItemWithoutCountingFailure(t *testing.T) {
	t.Parallel()

	items := testutil.SequenceItems(10)
	for i, item := range items {
		if i%2 == 0 {
			item["boxes"] = [][]float64{{0, 0, 1, 1, 0.9}}
		}
	}
	picky := &testutil.FuncWorker{
		Requires: []string{"boxes"},
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			return []worker.Item{item}, nil
		},
	}
	sink := &testutil.Collector{}

	// MaxFailures of 1 would escalate instantly if dropped items counted.
	tasks := chain(1, 1, 1)
	tasks[1].MaxFailures = 1
	err := runGraph(context.Background(), t, tasks,
		testutil.StaticSource("gen", &testutil.Emitter{Items: items}),
		testutil.StaticWorker("stage", picky),
		testutil.StaticWorker("collect", sink),
	)

	require.NoError(t, err)
	assert.Equal(t, 5, sink.Len())
}

func TestEngine_SourceFailure_PropagatesAcceleratedShutdown(t *testing.T) {
	t.Parallel()

	src := &testutil.FuncSource{
		Fn: func(_ context.Context, emit worker.EmitFunc) error {
			for i := 0; i < 3; i++ {
				if err := emit(worker.Item{"seq": i}); err != nil {
					return err
				}
			}
			return errors.New("decoder crashed")
		},
	}
	sink := &testutil.Collector{}

	err := runGraph(context.Background(), t, chain(1, 1, 1),
		testutil.StaticSource("gen", src),
		testutil.StaticWorker("stage", &testutil.Collector{}),
		testutil.StaticWorker("collect", sink),
	)

	// The failure surfaces and the already-emitted items still drain.
	require.ErrorContains(t, err, "decoder crashed")
	assert.Equal(t, 3, sink.Len())
}

func TestEngine_FlushForwarding_PartialBatchSurvivesShutdown(t *testing.T) {
	t.Parallel()

	batcher := &testutil.Batcher{Size: 3}
	sink := &testutil.Collector{}

	err := runGraph(context.Background(), t, chain(1, 1, 1),
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(7)}),
		testutil.StaticWorker("stage", batcher),
		testutil.StaticWorker("collect", sink),
	)
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, batcher.Flushes)
	assert.Equal(t, 7, sink.Len())
}

func TestEngine_StartupFailure_AbortsWithoutHanging(t *testing.T) {
	t.Parallel()

	noStart := &testutil.FuncWorker{
		StartupFn: func(context.Context) error { return errors.New("connection refused") },
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			return []worker.Item{item}, nil
		},
	}

	err := runGraph(context.Background(), t, chain(1, 1, 1),
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(10)}),
		testutil.StaticWorker("stage", noStart),
		testutil.StaticWorker("collect", &testutil.Collector{}),
	)

	require.ErrorContains(t, err, "connection refused")
}

func TestEngine_ShutdownHook_RunsOnEveryUnit(t *testing.T) {
	t.Parallel()

	var shutdowns atomic.Int64
	stage := &testutil.FuncWorker{
		Fn: func(_ context.Context, item worker.Item) ([]worker.Item, error) {
			return []worker.Item{item}, nil
		},
		ShutdownFn: func(context.Context) error {
			shutdowns.Add(1)
			return nil
		},
	}

	err := runGraph(context.Background(), t, chain(1, 4, 1),
		testutil.StaticSource("gen", &testutil.Emitter{Items: testutil.SequenceItems(10)}),
		testutil.StaticWorker("stage", stage),
		testutil.StaticWorker("collect", &testutil.Collector{}),
	)
	require.NoError(t, err)

	assert.Equal(t, int64(4), shutdowns.Load())
}

func TestEngine_Cancellation_StopsSourceAndDrains(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once atomic.Bool
	src := &testutil.FuncSource{
		Fn: func(ctx context.Context, emit worker.EmitFunc) error {
			for i := 0; ; i++ {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if err := emit(worker.Item{"seq": i}); err != nil {
					return nil
				}
				if once.CompareAndSwap(false, true) {
					close(started)
				}
			}
		},
	}
	sink := &testutil.Collector{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := runGraph(ctx, t, chain(1, 1, 1),
		testutil.StaticSource("gen", src),
		testutil.StaticWorker("stage", &testutil.Collector{}),
		testutil.StaticWorker("collect", sink),
	)

	// Cancellation is a clean stop, not a failure.
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sink.Len(), 1)
}

func TestEngine_New_RejectsUnresolvedWorkerType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pipeline := &config.Pipeline{Name: "test", Tasks: chain(1, 1, 1)}
	g, err := graph.Build(ctx, pipeline)
	require.NoError(t, err)

	// Only the source is registered.
	registry := worker.NewRegistry()
	testutil.StaticSource("gen", &testutil.Emitter{}).Register(registry)

	_, err = engine.New(ctx, g, registry, worker.NewRuntime(pipeline, t.TempDir()))

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mid", cfgErr.Task)
}
