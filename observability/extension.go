package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/postmaster/ext"
	"github.com/xraph/postmaster/message"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.MessageEnqueued   = (*MetricsExtension)(nil)
	_ ext.MessageDispatched = (*MetricsExtension)(nil)
	_ ext.MessageDelivered  = (*MetricsExtension)(nil)
	_ ext.MessageRetrying   = (*MetricsExtension)(nil)
	_ ext.MessageFailed     = (*MetricsExtension)(nil)
	_ ext.MessageWithdrawn  = (*MetricsExtension)(nil)
	_ ext.BatchSpilled      = (*MetricsExtension)(nil)
	_ ext.BatchLoaded       = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/postmaster/observability"

// MetricsExtension records system-wide lifecycle metrics. Message counters
// carry a priority attribute.
type MetricsExtension struct {
	Enqueued   metric.Int64Counter
	Dispatched metric.Int64Counter
	Delivered  metric.Int64Counter
	Retried    metric.Int64Counter
	Failed     metric.Int64Counter
	Withdrawn  metric.Int64Counter
	Spilled    metric.Int64Counter
	Loaded     metric.Int64Counter
	Latency    metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to the noop instruments the
// API returns alongside them.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop fallback
		return c
	}
	latency, _ := meter.Float64Histogram("postmaster.message.latency", //nolint:errcheck // noop fallback
		metric.WithDescription("Time from enqueue to delivery in seconds"),
		metric.WithUnit("s"),
	)
	return &MetricsExtension{
		Enqueued:   counter("postmaster.message.enqueued", "Messages accepted into the ring"),
		Dispatched: counter("postmaster.message.dispatched", "Delivery attempts started"),
		Delivered:  counter("postmaster.message.delivered", "Messages accepted by the transport"),
		Retried:    counter("postmaster.message.retried", "Failed attempts scheduled for retry"),
		Failed:     counter("postmaster.message.failed", "Messages moved to the dead letter queue"),
		Withdrawn:  counter("postmaster.message.withdrawn", "Messages withdrawn before delivery"),
		Spilled:    counter("postmaster.batch.spilled", "Records moved from memory to the store"),
		Loaded:     counter("postmaster.batch.loaded", "Records moved from the store into the window"),
		Latency:    latency,
	}
}

// Name implements ext.Extension.
func (e *MetricsExtension) Name() string { return "observability-metrics" }

func priorityAttr(m *message.Message) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("priority", strconv.Itoa(m.Priority)))
}

// ── Message lifecycle hooks ─────────────────────────

// OnMessageEnqueued implements ext.MessageEnqueued.
func (e *MetricsExtension) OnMessageEnqueued(ctx context.Context, m *message.Message) error {
	e.Enqueued.Add(ctx, 1, priorityAttr(m))
	return nil
}

// OnMessageDispatched implements ext.MessageDispatched.
func (e *MetricsExtension) OnMessageDispatched(ctx context.Context, m *message.Message) error {
	e.Dispatched.Add(ctx, 1, priorityAttr(m))
	return nil
}

// OnMessageDelivered implements ext.MessageDelivered.
func (e *MetricsExtension) OnMessageDelivered(ctx context.Context, m *message.Message, _ time.Duration) error {
	e.Delivered.Add(ctx, 1, priorityAttr(m))
	if !m.EnqueuedAt.IsZero() {
		e.Latency.Record(ctx, time.Since(m.EnqueuedAt).Seconds(), priorityAttr(m))
	}
	return nil
}

// OnMessageRetrying implements ext.MessageRetrying.
func (e *MetricsExtension) OnMessageRetrying(ctx context.Context, m *message.Message, _ error, _ time.Time) error {
	e.Retried.Add(ctx, 1, priorityAttr(m))
	return nil
}

// OnMessageFailed implements ext.MessageFailed.
func (e *MetricsExtension) OnMessageFailed(ctx context.Context, m *message.Message, _ error) error {
	e.Failed.Add(ctx, 1, priorityAttr(m))
	return nil
}

// OnMessageWithdrawn implements ext.MessageWithdrawn.
func (e *MetricsExtension) OnMessageWithdrawn(ctx context.Context, m *message.Message) error {
	e.Withdrawn.Add(ctx, 1, priorityAttr(m))
	return nil
}

// ── Batch mover hooks ───────────────────────────────

// OnBatchSpilled implements ext.BatchSpilled.
func (e *MetricsExtension) OnBatchSpilled(ctx context.Context, n int) error {
	e.Spilled.Add(ctx, int64(n))
	return nil
}

// OnBatchLoaded implements ext.BatchLoaded.
func (e *MetricsExtension) OnBatchLoaded(ctx context.Context, n int) error {
	e.Loaded.Add(ctx, int64(n))
	return nil
}
