package island

import "sync/atomic"

// Clock is the shared simulation wall clock, advanced by the embedding
// application through world updates and read concurrently by every island
// worker.
type Clock struct {
	nanos atomic.Int64
}

const nanosPerSecond = 1e9

// Now returns the current wall time in seconds.
func (c *Clock) Now() float64 {
	return float64(c.nanos.Load()) / nanosPerSecond
}

// Advance moves the wall clock forward by dt seconds.
func (c *Clock) Advance(dt float64) {
	c.nanos.Add(int64(dt * nanosPerSecond))
}
