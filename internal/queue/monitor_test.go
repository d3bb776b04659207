package queue

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/worker"
)

type logSink struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *logSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestMonitor_SamplesEveryQueueWithinInterval(t *testing.T) {
	t.Parallel()

	// Arrange: two edges, one partially filled.
	qa := New("src", "mid", 4, 1)
	qb := New("mid", "sink", 4, 1)
	require.NoError(t, qa.Put(worker.Item{}))
	require.NoError(t, qa.Put(worker.Item{}))

	sink := &logSink{}
	logger := slog.New(slog.NewTextHandler(sink, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))
	defer cancel()

	m := NewMonitor(20*time.Millisecond, 10, []*Queue{qa, qb})

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Assert: both queues show up within two intervals.
	deadline := time.After(40 * time.Millisecond)
	<-deadline
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}

	out := sink.String()
	assert.Contains(t, out, "src->mid")
	assert.Contains(t, out, "mid->sink")
	assert.Contains(t, out, "depth=2")
	assert.Contains(t, out, "depth=0")
}

func TestMonitor_MeterBinning(t *testing.T) {
	t.Parallel()

	m := NewMonitor(time.Second, 10, nil)

	assert.Equal(t, "[          ]", m.meter(0, 20))
	// Any nonzero depth rounds up to at least one bar.
	assert.Equal(t, "[|         ]", m.meter(1, 20))
	assert.Equal(t, "[|||||     ]", m.meter(10, 20))
	assert.Equal(t, "[||||||||||]", m.meter(20, 20))
	// Zero capacity never divides by zero.
	assert.Equal(t, "[          ]", m.meter(0, 0))
}

func TestMonitor_NoQueues_ReturnsImmediately(t *testing.T) {
	t.Parallel()

	m := NewMonitor(time.Hour, 10, nil)

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor with no queues should return without waiting a tick")
	}
}

func TestMonitor_MeterSizeDefaultsWhenNonPositive(t *testing.T) {
	t.Parallel()

	m := NewMonitor(time.Second, 0, nil)

	assert.True(t, strings.HasPrefix(m.meter(0, 1), "["))
	assert.Len(t, m.meter(0, 1), 12)
}
