package transform

import (
	"time"

	"github.com/sweeney/sk-sensor/internal/flow"
	"github.com/sweeney/sk-sensor/internal/logic"
)

// Frequency turns periodic edge counts into a rate:
// count / elapsed seconds * multiplier.
//
// The first count only sets the baseline timestamp and is discarded. A count
// that arrives with no time elapsed since the previous one is not emitted; its
// edges are carried into the next window instead of being lost.
type Frequency struct {
	flow.Producer[float64]
	multiplier float64

	last    time.Time
	carried uint64
}

// NewFrequency creates a rate stage. A multiplier of 1 yields hertz.
func NewFrequency(multiplier float64) *Frequency {
	return &Frequency{multiplier: multiplier}
}

// Set consumes one counter read.
func (f *Frequency) Set(c logic.Count) {
	if f.last.IsZero() {
		f.last = c.At
		return
	}

	n := f.carried + c.N
	rate, ok := logic.Rate(n, c.At.Sub(f.last), f.multiplier)
	if !ok {
		f.carried = n
		return
	}
	f.last = c.At
	f.carried = 0
	f.Emit(rate)
}
