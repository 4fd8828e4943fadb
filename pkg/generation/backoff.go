package generation

import (
	"math/rand/v2"
	"time"
)

// fullJitter computes the wait before retry number attempt (0-based):
// a random duration in [0, min(cap, base*2^attempt)]. Full jitter keeps
// concurrent retries from synchronizing against the provider.
func fullJitter(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = time.Millisecond
	}
	ceiling := base
	for i := 0; i < attempt; i++ {
		ceiling *= 2
		if ceiling >= cap {
			ceiling = cap
			break
		}
	}
	if ceiling > cap {
		ceiling = cap
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}
