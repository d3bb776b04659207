// Package engine runs a validated task graph: one worker pool per task,
// connected by the queue fabric, with end-of-stream markers counted per edge
// so pools of different sizes terminate cleanly without losing or duplicating
// items.
//
// Failure policy: a per-item processing error is logged and the item dropped;
// an optional per-task threshold escalates repeated failures to pool-fatal.
// Resource exhaustion is always pool-fatal. A fatal pool emits its markers
// immediately (accelerated end-of-stream) and then drains its input so
// upstream producers never block against a dead consumer.
package engine
