package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xraph/postmaster/message"
)

// RateLimit caps deliveries at perSecond with the given burst, blocking
// until a token is available or ctx ends. A non-positive perSecond
// disables it.
func RateLimit(perSecond float64, burst int) Middleware {
	if perSecond <= 0 {
		return func(ctx context.Context, _ *message.Message, next Handler) error {
			return next(ctx)
		}
	}
	return RateLimitWithLimiter(rate.NewLimiter(rate.Limit(perSecond), max(burst, 1)))
}

// RateLimitWithLimiter uses a caller-owned limiter, for sharing one budget
// across several schedulers.
func RateLimitWithLimiter(l *rate.Limiter) Middleware {
	return func(ctx context.Context, m *message.Message, next Handler) error {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait for %s: %w", m.ID, err)
		}
		return next(ctx)
	}
}
