package listener

import (
	"math/rand/v2"
	"time"
)

// DefaultRetryDelay is the constant wait between a transport error and the
// next connection attempt.
const DefaultRetryDelay = 3 * time.Second

// RetryPolicy decides how long to wait before reconnect attempt number
// attempt (0 for the first retry after a connection was lost). Returning
// false stops reconnecting.
type RetryPolicy interface {
	Next(attempt int) (time.Duration, bool)
}

// FixedDelay retries forever after the same delay.
type FixedDelay time.Duration

func (f FixedDelay) Next(int) (time.Duration, bool) {
	return time.Duration(f), true
}

// Backoff grows the delay geometrically from Initial up to Max, optionally
// randomized by Jitter and bounded by MaxAttempts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration // 0 = capped at 24h
	Multiplier float64       // values below 1 are treated as 1
	Jitter     float64       // fraction of the delay, in [0,1], added or removed at random
	// MaxAttempts stops retrying after this many attempts. 0 = unlimited.
	MaxAttempts int

	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// maxBackoff caps the delay when Backoff.Max is 0.
const maxBackoff = 24 * time.Hour

func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	limit := float64(maxBackoff)
	if b.Max > 0 {
		limit = float64(b.Max)
	}
	d := float64(b.Initial)
	for i := 0; i < attempt && d < limit; i++ {
		d *= mult
	}
	d = min(d, limit)
	if b.Jitter > 0 {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		j := min(b.Jitter, 1)
		d += d * j * (2*r() - 1)
	}
	d = max(min(d, limit), 0)
	return time.Duration(d), true
}
