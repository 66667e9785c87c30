package connection

import "time"

// BackoffDelay returns the wait before reconnection attempt k (zero-based): base * 2^k
func BackoffDelay(base time.Duration, k int) time.Duration {
	if k < 0 {
		k = 0
	}
	// clamp the shift so base*2^k stays inside Duration
	if k > 30 {
		k = 30
	}
	return base * time.Duration(1<<uint(k))
}
