// Package testutil provides shared helpers for pipeline tests: a log
// capture buffer, scriptable worker implementations and a harness that runs
// a pipeline document end to end against an in-memory worker set.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/vidpipe/internal/app"
	"github.com/vk/vidpipe/internal/worker"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// RunResult holds the outcomes of a harness pipeline run.
type RunResult struct {
	LogOutput string
	Err       error
	App       *app.App
	OutPath   string
}

// RunPipeline writes a pipeline document to a temp directory, wires an App
// against the given worker modules and runs it to completion with a
// background context.
func RunPipeline(t *testing.T, filename, document string, modules ...worker.Module) *RunResult {
	t.Helper()
	return RunPipelineWithContext(context.Background(), t, filename, document, modules...)
}

// RunPipelineWithContext is RunPipeline with a caller-provided context, for
// cancellation tests.
func RunPipelineWithContext(ctx context.Context, t *testing.T, filename, document string, modules ...worker.Module) *RunResult {
	t.Helper()

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, filename)
	require.NoError(t, os.WriteFile(cfgPath, []byte(document), 0o644))

	logBuf := &SafeBuffer{}
	outPath := filepath.Join(tmpDir, "out")

	a, err := app.NewApp(ctx, logBuf, app.Config{
		ConfigPath: cfgPath,
		OutPath:    outPath,
		LogFormat:  "text",
		LogLevel:   "debug",
	}, modules...)
	if err != nil {
		return &RunResult{LogOutput: logBuf.String(), Err: err}
	}

	runErr := a.Run(ctx)
	return &RunResult{
		LogOutput: logBuf.String(),
		Err:       runErr,
		App:       a,
		OutPath:   outPath,
	}
}
