package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention purges entries older than a maximum age on a cron schedule.
type Retention struct {
	store    Store
	maxAge   time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// NewRetention creates a retention sweeper. schedule is a standard cron
// expression or descriptor such as "@hourly".
func NewRetention(store Store, maxAge time.Duration, schedule string, logger *slog.Logger) (*Retention, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("dlq: invalid purge schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
		now:      time.Now,
	}, nil
}

// Sweep removes entries that failed more than maxAge ago.
func (r *Retention) Sweep(ctx context.Context) (int64, error) {
	if r.maxAge <= 0 {
		return 0, nil
	}
	n, err := r.store.PurgeDLQ(ctx, r.now().UTC().Add(-r.maxAge))
	if err != nil {
		return 0, fmt.Errorf("dlq: purge: %w", err)
	}
	if n > 0 {
		r.logger.Info("dlq entries purged", slog.Int64("count", n), slog.Duration("max_age", r.maxAge))
	}
	return n, nil
}

// Start registers the sweep and starts the cron runner.
func (r *Retention) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("dlq retention sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("dlq: schedule purge: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for a running sweep to finish or
// ctx to end.
func (r *Retention) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
