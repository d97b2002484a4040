package transfer

import "time"

// rateLimiter throttles a copy loop to a byte-per-second budget by sleeping
// whenever the attempt is running ahead of schedule. A zero limit disables
// throttling.
type rateLimiter struct {
	limit int64 // bytes per second, 0 = unlimited
	start time.Time
	sleep func(time.Duration)
}

func newRateLimiter(limit int64) *rateLimiter {
	return &rateLimiter{
		limit: limit,
		start: time.Now(),
		sleep: time.Sleep,
	}
}

// pace blocks until the cumulative byte count is back under the budget.
func (r *rateLimiter) pace(bytesCopied int64) {
	if r.limit <= 0 {
		return
	}
	expected := time.Duration(float64(bytesCopied) / float64(r.limit) * float64(time.Second))
	elapsed := time.Since(r.start)
	if expected > elapsed {
		r.sleep(expected - elapsed)
	}
}
