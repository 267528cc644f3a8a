package scheduler

import (
	"math/rand"
	"time"
)

// Delay computes the wait before retry number attempt (1-based), doubling
// from base up to cap, plus up to 20% jitter so synchronized retries spread
// out. The jittered value may exceed cap by at most that margin.
func Delay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			d = cap
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	return d + jitter
}
