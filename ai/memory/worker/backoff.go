package worker

import "time"

// Backoff returns the delay before retrying a job that has failed attempts times:
// base doubled per extra attempt, capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		return 0
	}
	// Beyond 2^30 the multiplication may overflow; every sane cap is reached earlier.
	if attempts > 31 {
		return max
	}
	backoff := base * time.Duration(1<<(attempts-1))
	if max > 0 && (backoff > max || backoff <= 0) {
		return max
	}
	return backoff
}
