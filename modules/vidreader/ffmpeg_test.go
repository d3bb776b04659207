package vidreader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/worker"
)

func TestParseFrameRate(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 30, parseFrameRate("30"), 1e-9)
	assert.InDelta(t, 29.97002997, parseFrameRate("30000/1001"), 1e-6)
	assert.InDelta(t, 25, parseFrameRate("25/1"), 1e-9)
	assert.Zero(t, parseFrameRate("0/0"))
	assert.Zero(t, parseFrameRate("garbage"))
	assert.Zero(t, parseFrameRate(""))
}

func TestVideoMeta_WithDefaults(t *testing.T) {
	t.Parallel()

	probed := videoMeta{Width: 1920, Height: 1080, FPS: 29.97}

	// Explicit config wins over probed values, field by field.
	got := probed.withDefaults(videoMeta{Width: 640, FPS: 10})
	assert.Equal(t, videoMeta{Width: 640, Height: 1080, FPS: 10}, got)

	// No overrides keeps the probe result.
	assert.Equal(t, probed, probed.withDefaults(videoMeta{}))
}

func TestStreamFrames_RejectsUnknownDimensions(t *testing.T) {
	t.Parallel()

	err := streamFrames(context.Background(), "x.mp4", "id", videoMeta{}, func(worker.Item) error {
		return nil
	})

	require.ErrorContains(t, err, "unknown frame dimensions")
}

func TestNewReadFramesFromVidFile_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := newReadFramesFromVidFile(&config.Task{Name: "decode", Params: config.Params{}}, nil)

	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "decode", cfgErr.Task)
}

func TestNewReadFramesFromVidFile_ParamsOverrideProbe(t *testing.T) {
	t.Parallel()

	src, err := newReadFramesFromVidFile(&config.Task{Name: "decode", Params: config.Params{
		"path":   "/data/cam01.mp4",
		"uuid":   "fixed-id",
		"width":  int64(640),
		"height": int64(480),
		"fps":    30,
	}}, nil)
	require.NoError(t, err)

	r := src.(*readFramesFromVidFile)
	assert.Equal(t, "fixed-id", r.id)
	assert.Equal(t, videoMeta{Width: 640, Height: 480, FPS: 30}, r.meta)
}

func TestNewReadFramesFromVidFilesInDir_Defaults(t *testing.T) {
	t.Parallel()

	src, err := newReadFramesFromVidFilesInDir(&config.Task{Name: "decode", Params: config.Params{
		"dir": "/data/videos",
	}}, nil)
	require.NoError(t, err)

	r := src.(*readFramesFromVidFilesInDir)
	assert.Equal(t, "/data/videos", r.dir)
	assert.Equal(t, "*.mp4", r.pattern)
}

func TestReadFramesFromVidFile_MissingFile(t *testing.T) {
	t.Parallel()

	src := &readFramesFromVidFile{path: "/nonexistent/video.mp4"}

	err := src.Generate(context.Background(), func(worker.Item) error { return nil })

	require.ErrorContains(t, err, "not a readable video file")
}
