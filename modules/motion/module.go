// Package motion provides the MeanMotionDirection worker. It associates
// optical-flow tracked points with detected boxes, then reduces each box's
// points to a mean position, mean displacement, angle from vertical and
// magnitude.
//
// Input shape: "tracked_points" is a [][]float64 whose rows are
// [x, y, dx, dy]; "boxes" rows start with [xtl, ytl, xbr, ybr, ...].
package motion

import (
	"context"
	"math"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/worker"
)

// groupedColumns is the per-box output header.
var groupedColumns = []string{"mean_x", "mean_y", "mean_delta_x", "mean_delta_y", "angle_from_vertical", "magnitude"}

// Module implements worker.Module for this package.
type Module struct{}

// Register registers the worker with the engine.
func (m *Module) Register(r *worker.Registry) {
	r.RegisterWorker("MeanMotionDirection", newMeanMotionDirection)
}

type meanMotionDirection struct {
	stationaryThreshold float64
	// emitPerBox switches the worker from annotating the frame item to
	// emitting one item per box, for pipelines that persist per-object rows.
	emitPerBox bool
}

func newMeanMotionDirection(task *config.Task, rt *worker.Runtime) (worker.Worker, error) {
	return &meanMotionDirection{
		stationaryThreshold: task.Params.Float("stationary_threshold", math.Inf(1)),
		emitPerBox:          task.Params.Bool("emit_per_box", false),
	}, nil
}

func (w *meanMotionDirection) RequiredKeys() []string {
	return []string{"tracked_points", "boxes"}
}

func (w *meanMotionDirection) Process(ctx context.Context, item worker.Item) ([]worker.Item, error) {
	item["points_grouped_by_box_header"] = groupedColumns

	points, err := asMatrix(item["tracked_points"], "tracked_points")
	if err != nil {
		return nil, err
	}
	boxes, err := asMatrix(item["boxes"], "boxes")
	if err != nil {
		return nil, err
	}

	if points == nil {
		ctxlog.FromContext(ctx).Info("no tracked points on frame", "frame_number", item["frame_number"])
		item["points_grouped_by_box"] = nil
		return []worker.Item{item}, nil
	}

	grouped := make([][]float64, len(boxes))
	for i, box := range boxes {
		grouped[i] = w.groupBox(box, points)
	}
	item["points_grouped_by_box"] = grouped

	if !w.emitPerBox {
		return []worker.Item{item}, nil
	}

	// One-to-many expansion: one output item per box, each carrying its own
	// row so a downstream sink can persist per-object records directly.
	out := make([]worker.Item, 0, len(grouped))
	for i, row := range grouped {
		boxItem := item.Clone()
		boxItem["box_index"] = i
		boxItem["points_grouped_by_box"] = [][]float64{row}
		out = append(out, boxItem)
	}
	return out, nil
}

// groupBox averages the points falling inside one box and derives the motion
// direction. Boxes with no points reduce to zeros.
func (w *meanMotionDirection) groupBox(box []float64, points [][]float64) []float64 {
	if len(box) < 4 {
		return make([]float64, len(groupedColumns))
	}
	var xs, ys, dxs, dys []float64
	for _, pt := range points {
		if len(pt) < 4 {
			continue
		}
		if box[0] < pt[0] && pt[0] < box[2] && box[1] < pt[1] && pt[1] < box[3] {
			xs = append(xs, pt[0])
			ys = append(ys, pt[1])
			dxs = append(dxs, pt[2])
			dys = append(dys, pt[3])
		}
	}

	xAve := mean(xs)
	yAve := mean(ys)
	dxAve := mean(dxs)
	dyAve := mean(dys)
	angle := math.Atan2(-dyAve, dxAve)
	magnitude := math.Hypot(dxAve, dyAve)
	if magnitude >= w.stationaryThreshold {
		magnitude = 0
	}
	return []float64{xAve, yAve, dxAve, dyAve, angle, magnitude}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
