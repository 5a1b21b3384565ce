package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/postmaster/message"
)

// Recover converts a panicking transport into a delivery error. The panic is
// logged with a stack trace; the resulting error is transient.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, m *message.Message, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("transport panicked",
					slog.String("message_id", m.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic sending message %s: %v", m.ID, r)
			}
		}()
		return next(ctx)
	}
}
