package mqttsession

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 1500 * time.Millisecond
	backoffCap  = 3 * time.Second
)

// nextBackoff computes the exponential-backoff-with-full-jitter delay for
// the given zero-based retry attempt, per spec.md §4.D: base 1.5s, cap 3s,
// full jitter (uniform in [0, min(cap, base*2^attempt)], both ends included).
func nextBackoff(attempt int) time.Duration {
	ceiling := backoffBase
	for i := 0; i < attempt; i++ {
		ceiling *= 2
		if ceiling >= backoffCap {
			ceiling = backoffCap
			break
		}
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
