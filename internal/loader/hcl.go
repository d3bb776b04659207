package loader

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
)

// HCLLoader is the HCL implementation of the Loader interface.
type HCLLoader struct{}

// NewHCLLoader creates a new HCL pipeline document loader.
func NewHCLLoader() *HCLLoader { return &HCLLoader{} }

// fileRoot decodes the single top-level pipeline block of a document.
type fileRoot struct {
	Pipeline *pipelineBlock `hcl:"pipeline,block"`
}

type pipelineBlock struct {
	Name    string        `hcl:"name,label"`
	Options *optionsBlock `hcl:"options,block"`
	Tasks   []*taskBlock  `hcl:"task,block"`
}

type optionsBlock struct {
	QueueMonitorDelaySeconds int `hcl:"queue_monitor_delay_seconds,optional"`
	QueueMonitorMeterSize    int `hcl:"queue_monitor_meter_size,optional"`
}

// taskBlock decodes the engine-owned task attributes; everything the engine
// does not recognize stays in Remain and becomes the worker's opaque params.
type taskBlock struct {
	Name            string            `hcl:"name,label"`
	WorkerType      string            `hcl:"worker_type"`
	NumWorkers      int               `hcl:"num_workers"`
	OutputQueueSize *int              `hcl:"output_queue_size,optional"`
	PrevTask        string            `hcl:"prev_task,optional"`
	Rename          map[string]string `hcl:"rename,optional"`
	MaxFailures     int               `hcl:"max_failures,optional"`
	GPUDevice       *int              `hcl:"gpu_device,optional"`
	GPUShare        *float64          `hcl:"gpu_share,optional"`
	Remain          hcl.Body          `hcl:",remain"`
}

// Load parses and translates one HCL pipeline document.
func (l *HCLLoader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
	}
	if root.Pipeline == nil {
		return nil, config.Errorf("", "%s contains no pipeline block", path)
	}

	pipeline := &config.Pipeline{
		Name:    root.Pipeline.Name,
		Options: translateOptions(root.Pipeline.Options),
	}
	for _, tb := range root.Pipeline.Tasks {
		task, err := translateTask(tb)
		if err != nil {
			return nil, err
		}
		pipeline.Tasks = append(pipeline.Tasks, task)
	}

	logger.Debug("HCL document loaded.", "pipeline", pipeline.Name, "tasks", len(pipeline.Tasks))
	return pipeline, nil
}

func translateOptions(ob *optionsBlock) config.Options {
	opts := DefaultOptions()
	if ob == nil {
		return opts
	}
	if ob.QueueMonitorDelaySeconds > 0 {
		opts.QueueMonitorDelay = time.Duration(ob.QueueMonitorDelaySeconds) * time.Second
	}
	if ob.QueueMonitorMeterSize > 0 {
		opts.QueueMonitorMeterSize = ob.QueueMonitorMeterSize
	}
	return opts
}

func translateTask(tb *taskBlock) (*config.Task, error) {
	task := &config.Task{
		Name:        tb.Name,
		WorkerType:  tb.WorkerType,
		NumWorkers:  tb.NumWorkers,
		PrevTask:    tb.PrevTask,
		Rename:      tb.Rename,
		MaxFailures: tb.MaxFailures,
	}
	if tb.OutputQueueSize != nil {
		task.OutputQueueSize = *tb.OutputQueueSize
	}
	if tb.GPUShare != nil {
		device := 0
		if tb.GPUDevice != nil {
			device = *tb.GPUDevice
		}
		task.GPU = &config.DeviceShare{Device: device, Share: *tb.GPUShare}
	}

	params, err := decodeParams(tb.Name, tb.Remain)
	if err != nil {
		return nil, err
	}
	task.Params = params
	return task, nil
}

// decodeParams evaluates every unrecognized attribute of a task block as a
// literal value and collects the results into the opaque params bag.
func decodeParams(taskName string, body hcl.Body) (config.Params, error) {
	if body == nil {
		return config.Params{}, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid parameters for task %q: %w", taskName, diags)
	}

	params := make(config.Params, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parameter %q of task %q is not a literal value: %w", name, taskName, diags)
		}
		converted, err := ctyToGo(val)
		if err != nil {
			return nil, config.Errorf(taskName, "parameter %q: %v", name, err)
		}
		params[name] = converted
	}
	return params, nil
}

// ctyToGo converts a literal cty value into its plain Go representation so
// worker factories never see cty types. Whole numbers become int64.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if i, acc := bf.Int64(); acc == big.Exact {
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			converted, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			converted, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = converted
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}

// DefaultOptions returns the engine options used when a document omits them.
func DefaultOptions() config.Options {
	return config.Options{
		QueueMonitorDelay:     10 * time.Second,
		QueueMonitorMeterSize: 10,
	}
}
