package logic

import "time"

// Rate converts count events over elapsed into events per second scaled by
// multiplier. ok is false when elapsed is not positive; no division happens.
func Rate(count uint64, elapsed time.Duration, multiplier float64) (rate float64, ok bool) {
	if elapsed <= 0 {
		return 0, false
	}
	return float64(count) / elapsed.Seconds() * multiplier, true
}
