package config

import "time"

// Pipeline is the unified representation of one pipeline document,
// independent of the format it was loaded from.
type Pipeline struct {
	Name    string
	Options Options
	Tasks   []*Task
}

// Options holds engine-wide knobs.
type Options struct {
	// QueueMonitorDelay is the interval between queue depth samples.
	QueueMonitorDelay time.Duration
	// QueueMonitorMeterSize is the width of the depth meter in log output.
	QueueMonitorMeterSize int
}

// Task describes one pipeline stage: which worker implementation runs it, at
// what concurrency, where its input comes from, and how its outbound queues
// are sized.
type Task struct {
	// Name uniquely identifies the task within the pipeline.
	Name string
	// WorkerType selects a registered worker implementation.
	WorkerType string
	// NumWorkers is the number of concurrent units in the task's pool.
	NumWorkers int
	// OutputQueueSize is the capacity of every outbound edge queue. Zero is
	// valid only for terminal sinks, which allocate no outbound queues.
	OutputQueueSize int
	// PrevTask names the predecessor task, or is empty for a source.
	PrevTask string
	// Rename maps output item keys to new names before items are forwarded.
	Rename map[string]string
	// MaxFailures escalates per-item failures to a pool-fatal error once
	// exceeded. Zero means per-item failures never stop the pool.
	MaxFailures int
	// GPU, when non-nil, declares the task's share of a constrained device.
	GPU *DeviceShare
	// Params carries worker-specific parameters, passed through unexamined.
	Params Params
}

// DeviceShare declares fractional utilization of one shared device. The
// engine refuses configurations that oversubscribe a device at construction
// time; it performs no runtime migration.
type DeviceShare struct {
	Device int
	Share  float64
}

// IsSource reports whether the task has no predecessor.
func (t *Task) IsSource() bool { return t.PrevTask == "" }
