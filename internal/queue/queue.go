package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/vk/vidpipe/internal/worker"
)

// InvariantError reports a put against an edge that has already terminated.
// It indicates a bug in termination accounting, not a recoverable condition:
// the owning pool aborts and the error is surfaced loudly.
type InvariantError struct {
	Queue string
	Op    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("queue %s: %s after edge terminated", e.Queue, e.Op)
}

// Queue is one bounded FIFO edge between a producer pool and a consumer pool.
// It is created knowing the producer's pool size; each producer unit
// contributes exactly one end-of-stream marker via PutSentinel, and the queue
// seals itself once all of them have arrived.
type Queue struct {
	producer string
	consumer string
	capacity int

	ch chan worker.Item
	// pending counts the producer-side markers still outstanding.
	pending atomic.Int64
}

// New creates an edge queue. capacity bounds the buffer; producers is the
// number of units on the producing side, i.e. the number of end-of-stream
// markers to expect before the edge is exhausted.
func New(producer, consumer string, capacity, producers int) *Queue {
	q := &Queue{
		producer: producer,
		consumer: consumer,
		capacity: capacity,
		ch:       make(chan worker.Item, capacity),
	}
	q.pending.Store(int64(producers))
	return q
}

// Name identifies the edge in monitor output and logs.
func (q *Queue) Name() string { return q.producer + "->" + q.consumer }

// Producer returns the producing task's name.
func (q *Queue) Producer() string { return q.producer }

// Consumer returns the consuming task's name.
func (q *Queue) Consumer() string { return q.consumer }

// Len samples the current depth.
func (q *Queue) Len() int { return len(q.ch) }

// Cap is the configured capacity.
func (q *Queue) Cap() int { return q.capacity }

// Put appends one item, blocking while the queue is full. Putting into an
// edge that has already terminated returns an InvariantError.
func (q *Queue) Put(item worker.Item) (err error) {
	defer func() {
		if recover() != nil {
			err = &InvariantError{Queue: q.Name(), Op: "put"}
		}
	}()
	q.ch <- item
	return nil
}

// PutSentinel records one producer unit's end-of-stream marker. The marker
// that completes the expected count seals the edge; items still buffered
// remain takeable. More markers than producer units is an InvariantError.
func (q *Queue) PutSentinel() error {
	n := q.pending.Add(-1)
	switch {
	case n < 0:
		return &InvariantError{Queue: q.Name(), Op: "sentinel"}
	case n == 0:
		close(q.ch)
	}
	return nil
}

// Take removes one item, blocking while the queue is empty. ok is false once
// the edge is exhausted: every producer marker arrived and the buffer is
// drained.
func (q *Queue) Take() (item worker.Item, ok bool) {
	item, ok = <-q.ch
	return item, ok
}
