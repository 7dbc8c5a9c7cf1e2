package resilience

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiters holds one token-bucket limiter per provider key; Allow
// reports whether a call may proceed. The orchestrator's provider attempts
// do not consult it, so E308 errors are not pre-checked. Grounded on
// golang.org/x/time/rate as used by jmylchreest-tvarr and ManuGH-xg2g.
type RateLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewRateLimiters returns a limiter set where every new provider key gets a
// fresh limiter of the given rate (requests/sec) and burst.
func NewRateLimiters(rps float64, burst int) *RateLimiters {
	return &RateLimiters{limiters: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

// Allow reports whether a call to key may proceed under its rate limit,
// consuming a token if so.
func (r *RateLimiters) Allow(key string) bool {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}
