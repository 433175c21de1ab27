package dispatch

import (
	"math/rand"
	"time"
)

// backoffDelay computes the wait before retry attempt n (1-based) using
// exponential growth with full jitter, capped at max. Jitter spreads
// retries from concurrent jobs so a provider blip does not produce a
// synchronized thundering herd.
func backoffDelay(attempt int, base, max time.Duration, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = time.Minute
	}

	// Large attempt counts would overflow the shift; anything past 2^30
	// exceeds any sane cap anyway.
	delay := max
	if attempt <= 31 {
		delay = base << (attempt - 1)
		if delay > max || delay <= 0 {
			delay = max
		}
	}

	if rng == nil {
		return delay
	}
	return time.Duration(rng.Int63n(int64(delay) + 1))
}
