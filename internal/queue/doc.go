// Package queue provides the bounded FIFO edges connecting worker pools, the
// fabric that allocates one queue per producer→consumer edge, and the
// periodic depth monitor.
//
// Blocking Put and Take are the only synchronization primitives in the
// engine. Termination is tracked per edge: a queue is created knowing how
// many producer units feed it, and each unit contributes exactly one
// end-of-stream marker. When the last marker arrives the queue is sealed and
// consumers drain whatever is still buffered before observing exhaustion.
package queue
