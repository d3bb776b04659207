// Package filesink provides the WriteKeysToFiles sink: for each configured
// item key it maintains one CSV file under the run's output directory,
// buffering rows and writing them out in batches. The engine's end-of-stream
// flush guarantees a partial batch is written rather than lost.
package filesink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/worker"
)

// Module implements worker.Module for this package.
type Module struct{}

// Register registers the worker with the engine.
func (m *Module) Register(r *worker.Registry) {
	r.RegisterWorker("WriteKeysToFiles", newWriteKeysToFiles)
}

type writeKeysToFiles struct {
	task        string
	outPath     string
	keys        []string
	keysHeaders []string
	flushSize   int
	separator   string

	files          map[string]*os.File
	headersWritten map[string]bool
	buffer         []worker.Item
}

func newWriteKeysToFiles(task *config.Task, rt *worker.Runtime) (worker.Worker, error) {
	keys, err := task.Params.RequireStrings(task.Name, "keys")
	if err != nil {
		return nil, err
	}
	w := &writeKeysToFiles{
		task:           task.Name,
		outPath:        rt.OutPath,
		keys:           keys,
		keysHeaders:    task.Params.Strings("keys_headers"),
		flushSize:      task.Params.Int("flush_buffer_size", 100),
		separator:      task.Params.String("field_separator", ","),
		files:          make(map[string]*os.File),
		headersWritten: make(map[string]bool),
	}
	if w.flushSize <= 0 {
		return nil, config.Errorf(task.Name, "flush_buffer_size must be positive")
	}
	if len(w.keysHeaders) > 0 && len(w.keysHeaders) != len(w.keys) {
		return nil, config.Errorf(task.Name, "keys_headers must match keys (%d vs %d)", len(w.keysHeaders), len(w.keys))
	}
	return w, nil
}

func (w *writeKeysToFiles) RequiredKeys() []string { return w.keys }

// Startup opens one output file per configured key.
func (w *writeKeysToFiles) Startup(ctx context.Context) error {
	for _, key := range w.keys {
		path := filepath.Join(w.outPath, fmt.Sprintf("%s_%s.csv", w.task, key))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open output file for key %q: %w", key, err)
		}
		w.files[key] = f
	}
	ctxlog.FromContext(ctx).Debug("Output files opened.", "count", len(w.files))
	return nil
}

// Process buffers the item; a full buffer triggers one write of the whole
// batch. Flushed items are forwarded so the sink can also sit mid-graph.
func (w *writeKeysToFiles) Process(ctx context.Context, item worker.Item) ([]worker.Item, error) {
	w.buffer = append(w.buffer, item)
	if len(w.buffer) < w.flushSize {
		return nil, nil
	}
	return w.flushBuffer(ctx)
}

// Flush writes out whatever the buffer still holds when the input stream
// ends.
func (w *writeKeysToFiles) Flush(ctx context.Context) ([]worker.Item, error) {
	if len(w.buffer) == 0 {
		return nil, nil
	}
	return w.flushBuffer(ctx)
}

// Shutdown closes the output files.
func (w *writeKeysToFiles) Shutdown(ctx context.Context) error {
	var firstErr error
	for key, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close output file for key %q: %w", key, err)
		}
	}
	return firstErr
}

func (w *writeKeysToFiles) flushBuffer(ctx context.Context) ([]worker.Item, error) {
	ctxlog.FromContext(ctx).Debug("Writing batch.", "items", len(w.buffer))
	for i, key := range w.keys {
		f := w.files[key]
		for _, item := range w.buffer {
			if err := w.writeItem(f, i, key, item); err != nil {
				return nil, fmt.Errorf("failed to write key %q: %w", key, err)
			}
		}
	}
	flushed := w.buffer
	w.buffer = nil
	return flushed, nil
}

func (w *writeKeysToFiles) writeItem(f *os.File, keyIdx int, key string, item worker.Item) error {
	if !w.headersWritten[key] && len(w.keysHeaders) > 0 {
		if headers := stringsOf(item[w.keysHeaders[keyIdx]]); len(headers) > 0 {
			if _, err := fmt.Fprintf(f, "frame_number%s%s\n", w.separator, strings.Join(headers, w.separator)); err != nil {
				return err
			}
			w.headersWritten[key] = true
		}
	}

	frame := formatValue(item["frame_number"])
	for _, row := range rowsOf(item[key]) {
		if _, err := fmt.Fprintf(f, "%s%s%s\n", frame, w.separator, strings.Join(row, w.separator)); err != nil {
			return err
		}
	}
	return nil
}
