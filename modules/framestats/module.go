// Package framestats provides the ComputeFrameStats worker. It reduces a
// detector's per-frame box matrix into per-class statistics: object counts
// and probability sums, each gated by a confidence threshold.
//
// Input shape: "boxes" is a [][]float64 whose rows are
// [xtl, ytl, xbr, ybr, objectness, class-1 prob, class-2 prob, ...] and
// "object_classes" is the []string of class names matching the probability
// columns.
package framestats

import (
	"context"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/worker"
)

// boxHeaderCols is the number of geometry/objectness columns preceding the
// per-class probabilities in a box row.
const boxHeaderCols = 5

// Module implements worker.Module for this package.
type Module struct{}

// Register registers the worker with the engine.
func (m *Module) Register(r *worker.Registry) {
	r.RegisterWorker("ComputeFrameStats", newComputeFrameStats)
}

type computeFrameStats struct {
	countByClass          bool
	countThreshold        float64
	countMaxProbClassOnly bool
	sumProbsByClass       bool
	sumThreshold          float64
	sumMaxProbClassOnly   bool
}

func newComputeFrameStats(task *config.Task, rt *worker.Runtime) (worker.Worker, error) {
	return &computeFrameStats{
		countByClass:          task.Params.Bool("count_by_class", true),
		countThreshold:        task.Params.Float("count_threshold", 0.5),
		countMaxProbClassOnly: task.Params.Bool("count_max_prob_class_only", false),
		sumProbsByClass:       task.Params.Bool("sum_probs_by_class", false),
		sumThreshold:          task.Params.Float("sum_threshold", 0.5),
		sumMaxProbClassOnly:   task.Params.Bool("sum_max_prob_class_only", false),
	}, nil
}

func (w *computeFrameStats) RequiredKeys() []string {
	return []string{"boxes", "object_classes"}
}

func (w *computeFrameStats) Process(ctx context.Context, item worker.Item) ([]worker.Item, error) {
	boxes, err := asBoxes(item["boxes"])
	if err != nil {
		return nil, err
	}
	classes, err := asStrings(item["object_classes"])
	if err != nil {
		return nil, err
	}

	var stats []float64
	var labels []string
	if w.countByClass {
		counts := reduceByClass(boxes, len(classes), w.countThreshold, w.countMaxProbClassOnly, func(p float64) float64 { return 1 })
		stats = append(stats, counts...)
		for _, cls := range classes {
			labels = append(labels, cls+"_counts")
		}
	}
	if w.sumProbsByClass {
		sums := reduceByClass(boxes, len(classes), w.sumThreshold, w.sumMaxProbClassOnly, func(p float64) float64 { return p })
		stats = append(stats, sums...)
		for _, cls := range classes {
			labels = append(labels, cls+"_sums")
		}
	}

	item["frame_stats"] = stats
	item["frame_stats_header"] = labels
	return []worker.Item{item}, nil
}

// reduceByClass folds the per-class probability columns of every box into one
// value per class. weight maps a qualifying probability to its contribution
// (1 for counting, p for summing).
func reduceByClass(boxes [][]float64, numClasses int, threshold float64, maxProbOnly bool, weight func(float64) float64) []float64 {
	out := make([]float64, numClasses)
	for _, box := range boxes {
		if len(box) < boxHeaderCols+numClasses {
			continue
		}
		probs := box[boxHeaderCols : boxHeaderCols+numClasses]
		if maxProbOnly {
			best := 0
			for i, p := range probs {
				if p > probs[best] {
					best = i
				}
			}
			if probs[best] > threshold {
				out[best] += weight(probs[best])
			}
			continue
		}
		for i, p := range probs {
			if p > threshold {
				out[i] += weight(p)
			}
		}
	}
	return out
}
