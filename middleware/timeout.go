package middleware

import (
	"context"
	"time"

	"github.com/xraph/postmaster/message"
)

// Timeout bounds each transport call. A non-positive d disables it.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *message.Message, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
