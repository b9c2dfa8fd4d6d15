package engine

import "sync/atomic"

// Clock hands out mutation sequence numbers. Load's initial pass is seq 0;
// each accepted mutation takes the next number and its settling pass is
// journaled under the same one, so a replayed session reproduces them
// exactly.
//
// Sessions advance the clock under their mutation guard; the atomic only
// keeps Current safe for concurrent readers.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock at seq 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next reserves the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the last number handed out, or 0 before any mutation.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
