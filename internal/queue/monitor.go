package queue

import (
	"context"
	"strings"
	"time"

	"github.com/vk/vidpipe/internal/ctxlog"
)

// Monitor periodically samples the depth of every edge queue and emits one
// status record per queue per tick. A queue pinned at capacity points at a
// downstream bottleneck; a near-empty queue under a still-running producer
// points at starvation. The monitor only observes: it never touches queue
// state or pool lifecycle.
type Monitor struct {
	delay     time.Duration
	meterSize int
	queues    []*Queue
}

// NewMonitor builds a monitor over the fabric's queues. meterSize is the
// character width of the rendered depth meter.
func NewMonitor(delay time.Duration, meterSize int, queues []*Queue) *Monitor {
	if meterSize <= 0 {
		meterSize = 10
	}
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return &Monitor{delay: delay, meterSize: meterSize, queues: queues}
}

// Run samples until ctx is canceled. The first sample fires after one full
// interval, matching the configured queue_monitor_delay_seconds.
func (m *Monitor) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if len(m.queues) == 0 {
		logger.Debug("Queue monitor idle: no edges to watch.")
		return
	}
	logger.Debug("Queue monitor started.", "interval", m.delay, "queues", len(m.queues))

	ticker := time.NewTicker(m.delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Queue monitor stopped.")
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, q := range m.queues {
		depth, capacity := q.Len(), q.Cap()
		logger.Info("queue depth",
			"queue", q.Name(),
			"depth", depth,
			"capacity", capacity,
			"meter", m.meter(depth, capacity),
		)
	}
}

// meter renders a fixed-width bar like [|||       ], binned to meterSize.
func (m *Monitor) meter(depth, capacity int) string {
	bars := 0
	if capacity > 0 {
		bars = (depth*m.meterSize + capacity - 1) / capacity
	}
	if bars > m.meterSize {
		bars = m.meterSize
	}
	return "[" + strings.Repeat("|", bars) + strings.Repeat(" ", m.meterSize-bars) + "]"
}
