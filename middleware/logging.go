package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/postmaster/message"
)

// Logging logs every delivery attempt and its outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, m *message.Message, next Handler) error {
		logger.Debug("sending message",
			slog.String("message_id", m.ID.String()),
			slog.Int("priority", m.Priority),
			slog.Int("attempt", m.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("send failed",
				slog.String("message_id", m.ID.String()),
				slog.Int("attempt", m.Attempts),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("message sent",
				slog.String("message_id", m.ID.String()),
				slog.Int("priority", m.Priority),
				slog.Duration("elapsed", elapsed),
			)
		}
		return err
	}
}
