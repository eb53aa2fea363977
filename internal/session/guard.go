package session

import (
	"time"

	"golang.org/x/time/rate"

	"media_tracker/internal/domain"
)

// rateGuard enforces the hourly operation quota locally. The bucket holds
// a full hour's quota and refills evenly over the hour.
type rateGuard struct {
	limiter *rate.Limiter
	quota   int
}

func newRateGuard(quota int) *rateGuard {
	if quota <= 0 {
		return &rateGuard{}
	}
	return &rateGuard{
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(quota)), quota),
		quota:   quota,
	}
}

// allow takes one token or returns a RateLimitError without taking any.
func (g *rateGuard) allow(now time.Time) error {
	if g.limiter == nil {
		return nil
	}
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		return &domain.RateLimitError{Quota: g.quota, RetryAfter: time.Hour}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &domain.RateLimitError{Quota: g.quota, RetryAfter: delay}
	}
	return nil
}
