package transfer

import (
	"math"
	"time"
)

// Retry policies for the copy engine.
const (
	RetryNone        = "none"
	RetryLinear      = "linear"
	RetryExponential = "exponential"
)

// maxRetryDelay caps the backoff regardless of policy.
const maxRetryDelay = 10 * time.Second

// RetryDelay returns the pause before the given attempt (1-based).
// Exponential backoff doubles from half a second; linear grows by one second
// per attempt. Both are capped at ten seconds.
func RetryDelay(policy string, attempt int) time.Duration {
	var seconds float64
	switch policy {
	case RetryExponential:
		seconds = 0.5 * math.Pow(2, float64(attempt))
	case RetryLinear:
		seconds = 1.0 * float64(attempt)
	default:
		return 0
	}
	delay := time.Duration(seconds * float64(time.Second))
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
