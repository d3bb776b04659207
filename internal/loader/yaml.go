package loader

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
)

// YAMLLoader is the YAML implementation of the Loader interface.
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAML pipeline document loader.
func NewYAMLLoader() *YAMLLoader { return &YAMLLoader{} }

type yamlDoc struct {
	Pipeline *yamlPipeline `yaml:"pipeline"`
}

type yamlPipeline struct {
	Name    string `yaml:"name"`
	Options struct {
		QueueMonitorDelaySeconds int `yaml:"queue_monitor_delay_seconds"`
		QueueMonitorMeterSize    int `yaml:"queue_monitor_meter_size"`
	} `yaml:"options"`
	// Tasks decode as raw maps: the engine-owned keys are extracted below and
	// everything else becomes the worker's opaque params.
	Tasks []map[string]any `yaml:"tasks"`
}

// Load parses and translates one YAML pipeline document.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*config.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if doc.Pipeline == nil {
		return nil, config.Errorf("", "%s contains no pipeline mapping", path)
	}

	opts := DefaultOptions()
	if doc.Pipeline.Options.QueueMonitorDelaySeconds > 0 {
		opts.QueueMonitorDelay = time.Duration(doc.Pipeline.Options.QueueMonitorDelaySeconds) * time.Second
	}
	if doc.Pipeline.Options.QueueMonitorMeterSize > 0 {
		opts.QueueMonitorMeterSize = doc.Pipeline.Options.QueueMonitorMeterSize
	}

	pipeline := &config.Pipeline{Name: doc.Pipeline.Name, Options: opts}
	for i, raw := range doc.Pipeline.Tasks {
		task, err := translateYAMLTask(i, raw)
		if err != nil {
			return nil, err
		}
		pipeline.Tasks = append(pipeline.Tasks, task)
	}

	logger.Debug("YAML document loaded.", "pipeline", pipeline.Name, "tasks", len(pipeline.Tasks))
	return pipeline, nil
}

func translateYAMLTask(index int, raw map[string]any) (*config.Task, error) {
	params := make(config.Params, len(raw))
	for k, v := range raw {
		params[k] = v
	}

	name, ok := takeString(params, "name")
	if !ok {
		return nil, config.Errorf("", "task at index %d has no name", index)
	}
	task := &config.Task{Name: name, Params: params}

	task.WorkerType, _ = takeString(params, "worker_type")
	task.NumWorkers = takeInt(params, "num_workers")
	task.OutputQueueSize = takeInt(params, "output_queue_size")
	task.PrevTask, _ = takeString(params, "prev_task")
	task.MaxFailures = takeInt(params, "max_failures")

	if rename, ok := params["rename"]; ok {
		delete(params, "rename")
		m, err := toStringMap(rename)
		if err != nil {
			return nil, config.Errorf(name, "rename: %v", err)
		}
		task.Rename = m
	}

	if share, ok := params["gpu_share"]; ok {
		delete(params, "gpu_share")
		f, ok := toFloat(share)
		if !ok {
			return nil, config.Errorf(name, "gpu_share must be a number")
		}
		task.GPU = &config.DeviceShare{Device: takeInt(params, "gpu_device"), Share: f}
	}

	return task, nil
}

func takeString(p config.Params, key string) (string, bool) {
	v, ok := p[key].(string)
	if ok {
		delete(p, key)
	}
	return v, ok
}

func takeInt(p config.Params, key string) int {
	v := p.Int(key, 0)
	delete(p, key)
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStringMap(v any) (map[string]string, error) {
	switch m := v.(type) {
	case map[string]string:
		return m, nil
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, e := range m {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("value for %q is not a string", k)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping of strings, got %T", v)
	}
}
