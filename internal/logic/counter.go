package logic

import (
	"sync/atomic"
	"time"
)

// EdgeCounter accumulates debounced edge events between periodic reads.
//
// OnEdge is called from the hardware event path and ReadAndReset from the
// cooperative loop. The only state shared between them is the count, which is
// swapped to zero atomically, so an edge racing a read lands in exactly one of
// the two reads.
type EdgeCounter struct {
	polarity Edge
	debounce time.Duration

	count atomic.Uint64

	// Edge path only.
	lastEdge atomic.Int64
	seen     atomic.Bool

	// Read path only.
	lastReset time.Time
}

// NewEdgeCounter creates a counter for edges of the given polarity.
// Edges closer than debounce to the previously accepted edge are discarded.
func NewEdgeCounter(polarity Edge, debounce time.Duration) *EdgeCounter {
	if debounce < 0 {
		debounce = 0
	}
	return &EdgeCounter{polarity: polarity, debounce: debounce}
}

// OnEdge records an edge observed at ts, a monotonic timestamp with an
// arbitrary epoch. It returns false if the edge was rejected, either for the
// wrong polarity or as bounce noise. Rejected edges do not move the debounce
// reference point.
func (c *EdgeCounter) OnEdge(observed Edge, ts time.Duration) bool {
	if !c.polarity.Accepts(observed) {
		return false
	}
	if c.seen.Load() && ts-time.Duration(c.lastEdge.Load()) < c.debounce {
		return false
	}
	c.lastEdge.Store(int64(ts))
	c.seen.Store(true)
	c.count.Add(1)
	return true
}

// ReadAndReset returns the number of edges accepted since the previous read
// and the time elapsed since that read, then zeroes the count. The first read
// has no previous read to measure from and reports zero elapsed time.
func (c *EdgeCounter) ReadAndReset(now time.Time) (uint64, time.Duration) {
	n := c.count.Swap(0)
	var elapsed time.Duration
	if !c.lastReset.IsZero() {
		elapsed = now.Sub(c.lastReset)
	}
	c.lastReset = now
	return n, elapsed
}

// Polarity returns the configured edge polarity.
func (c *EdgeCounter) Polarity() Edge {
	return c.polarity
}

// Debounce returns the configured debounce window.
func (c *EdgeCounter) Debounce() time.Duration {
	return c.debounce
}
