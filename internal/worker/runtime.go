package worker

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vk/vidpipe/internal/config"
)

// Runtime is the explicit per-run state handed to every worker factory in
// place of any ambient global configuration: the run's identity, start time,
// output directory and the full pipeline document.
type Runtime struct {
	// RunID uniquely identifies this run; sinks record it alongside their
	// output so rows from different runs can be told apart.
	RunID uuid.UUID
	// StartTime is when the run began; workers use it for relative timing.
	StartTime time.Time
	// OutPath is the run-scoped directory for file output.
	OutPath string
	// Pipeline is the loaded document, for workers that need sibling task
	// context.
	Pipeline *config.Pipeline
}

// NewRuntime allocates the run identity and stamps the start time. The
// run's output directory is a RunID-scoped subdirectory of baseOut, so
// successive runs never clobber each other's files.
func NewRuntime(pipeline *config.Pipeline, baseOut string) *Runtime {
	id := uuid.New()
	return &Runtime{
		RunID:     id,
		StartTime: time.Now(),
		OutPath:   filepath.Join(baseOut, "run_"+id.String()),
		Pipeline:  pipeline,
	}
}
