// Package vidreader provides the source workers that decode video into raw
// RGB frames by driving ffmpeg as a subprocess, the same contract the rest
// of the pipeline is built around: one item per frame, carrying the frame
// bytes and the video's identity.
package vidreader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/worker"
)

// Module implements worker.Module for this package.
type Module struct{}

// Register registers both source workers with the engine.
func (m *Module) Register(r *worker.Registry) {
	r.RegisterSource("ReadFramesFromVidFile", newReadFramesFromVidFile)
	r.RegisterSource("ReadFramesFromVidFilesInDir", newReadFramesFromVidFilesInDir)
}

// readFramesFromVidFile streams the frames of a single video file.
type readFramesFromVidFile struct {
	path string
	id   string
	meta videoMeta
}

func newReadFramesFromVidFile(task *config.Task, rt *worker.Runtime) (worker.Source, error) {
	path, err := task.Params.RequireString(task.Name, "path")
	if err != nil {
		return nil, err
	}
	return &readFramesFromVidFile{
		path: path,
		id:   task.Params.String("uuid", uuid.NewString()),
		meta: videoMeta{
			Width:  task.Params.Int("width", 0),
			Height: task.Params.Int("height", 0),
			FPS:    task.Params.Float("fps", 0),
		},
	}, nil
}

func (s *readFramesFromVidFile) Generate(ctx context.Context, emit worker.EmitFunc) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("not a readable video file: %w", err)
	}
	meta := s.meta
	if meta.Width == 0 || meta.Height == 0 {
		probed, err := probe(ctx, s.path)
		if err != nil {
			return err
		}
		meta = probed.withDefaults(s.meta)
	}
	ctxlog.FromContext(ctx).Info("Reading frames.", "path", s.path, "width", meta.Width, "height", meta.Height, "fps", meta.FPS)
	return streamFrames(ctx, s.path, s.id, meta, emit)
}

// readFramesFromVidFilesInDir streams every matching video in a directory,
// in lexical order, probing each file for its dimensions.
type readFramesFromVidFilesInDir struct {
	dir     string
	pattern string
}

func newReadFramesFromVidFilesInDir(task *config.Task, rt *worker.Runtime) (worker.Source, error) {
	dir, err := task.Params.RequireString(task.Name, "dir")
	if err != nil {
		return nil, err
	}
	return &readFramesFromVidFilesInDir{
		dir:     dir,
		pattern: task.Params.String("pattern", "*.mp4"),
	}, nil
}

func (s *readFramesFromVidFilesInDir) Generate(ctx context.Context, emit worker.EmitFunc) error {
	logger := ctxlog.FromContext(ctx)

	matches, err := filepath.Glob(filepath.Join(s.dir, s.pattern))
	if err != nil {
		return fmt.Errorf("bad file pattern %q: %w", s.pattern, err)
	}
	if len(matches) == 0 {
		logger.Warn("No video files matched.", "dir", s.dir, "pattern", s.pattern)
		return nil
	}
	sort.Strings(matches)

	for _, path := range matches {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		meta, err := probe(ctx, path)
		if err != nil {
			return err
		}
		logger.Info("Reading frames.", "path", path, "width", meta.Width, "height", meta.Height, "fps", meta.FPS)
		if err := streamFrames(ctx, path, uuid.NewString(), meta, emit); err != nil {
			return err
		}
	}
	return nil
}
