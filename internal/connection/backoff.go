package connection

import (
	"math"
	"time"
)

// Backoff computes reconnect delays. Attempt 0 is immediate; attempt n waits
// Base * 2^(n-1), clamped to Max.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int // 0 means unlimited
}

// Delay returns the wait before the given attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Base <= 0 {
		return 0
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Allows reports whether another reconnect attempt fits the budget given how
// many have already been made since the last successful open.
func (b Backoff) Allows(made int) bool {
	return b.MaxAttempts <= 0 || made < b.MaxAttempts
}
