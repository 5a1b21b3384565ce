package middleware

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/postmaster/message"
)

// meterName is the instrumentation scope name for postmaster metrics.
const meterName = "github.com/xraph/postmaster"

// Metrics records per-attempt delivery metrics using the global
// MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
//
// Instruments:
//   - postmaster.send.duration (Float64Histogram, seconds)
//   - postmaster.send.attempts (Int64Counter)
//
// Both carry the attributes priority and status ("ok" or "error").
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram( //nolint:errcheck // noop fallback guaranteed by OTel API contract
		"postmaster.send.duration",
		metric.WithDescription("Duration of transport calls in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter( //nolint:errcheck // noop fallback guaranteed by OTel API contract
		"postmaster.send.attempts",
		metric.WithDescription("Total number of delivery attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, m *message.Message, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("priority", strconv.Itoa(m.Priority)),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
