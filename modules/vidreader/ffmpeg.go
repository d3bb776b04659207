package vidreader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/vidpipe/internal/worker"
)

// videoMeta describes the decoded frame geometry of one video.
type videoMeta struct {
	Width  int
	Height int
	FPS    float64
}

// withDefaults overlays explicitly configured values over probed ones.
func (m videoMeta) withDefaults(override videoMeta) videoMeta {
	out := m
	if override.Width > 0 {
		out.Width = override.Width
	}
	if override.Height > 0 {
		out.Height = override.Height
	}
	if override.FPS > 0 {
		out.FPS = override.FPS
	}
	return out
}

// streamFrames runs ffmpeg decoding the file into raw RGB24 on stdout and
// emits one item per frame. Backpressure applies inside emit; ffmpeg itself
// is throttled by the pipe fill.
func streamFrames(ctx context.Context, path, videoID string, meta videoMeta, emit worker.EmitFunc) error {
	if meta.Width <= 0 || meta.Height <= 0 {
		return fmt.Errorf("video %s: unknown frame dimensions", path)
	}
	frameSize := meta.Width * meta.Height * 3

	args := []string{"-i", path, "-f", "image2pipe", "-vsync", "0", "-pix_fmt", "rgb24", "-vcodec", "rawvideo", "-"}
	if meta.FPS > 0 {
		args = append([]string{"-r", strconv.FormatFloat(meta.FPS, 'g', -1, 64)}, args...)
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	info := map[string]any{
		"id":        videoID,
		"file_name": filepath.Base(path),
		"fps":       meta.FPS,
		"width":     meta.Width,
		"height":    meta.Height,
	}

	reader := bufio.NewReaderSize(stdout, frameSize)
	frameNumber := 0
	for {
		frame := make([]byte, frameSize)
		if _, err := io.ReadFull(reader, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return fmt.Errorf("failed reading frame %d of %s: %w", frameNumber+1, path, err)
		}
		frameNumber++
		item := worker.Item{
			"video_info":   info,
			"frame_number": frameNumber,
			"frame":        frame,
		}
		if err := emit(item); err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return err
		}
	}
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ffmpeg exited abnormally for %s: %w", path, err)
	}
	return ctx.Err()
}

// probe asks ffprobe for the first video stream's geometry and frame rate.
func probe(ctx context.Context, path string) (videoMeta, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return videoMeta{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var doc struct {
		Streams []struct {
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			FrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		return videoMeta{}, fmt.Errorf("unparseable ffprobe output for %s: %w", path, err)
	}
	if len(doc.Streams) == 0 {
		return videoMeta{}, fmt.Errorf("no video stream in %s", path)
	}

	stream := doc.Streams[0]
	return videoMeta{
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    parseFrameRate(stream.FrameRate),
	}, nil
}

// parseFrameRate evaluates ffprobe's fractional rate ("30000/1001"). Zero
// means unknown.
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
