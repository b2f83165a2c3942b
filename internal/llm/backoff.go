package llm

import (
	"math/rand/v2"
	"time"
)

const maxBackoff = 30 * time.Second

// Backoff doubles base per attempt, capped at 30s, with +/-25% jitter.
// Attempt 0 means no wait.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	if d < 4 {
		return d
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2)) - d/4
	return d + jitter
}
