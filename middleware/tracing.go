package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/postmaster/message"
)

// tracerName is the instrumentation scope name for postmaster tracing.
const tracerName = "github.com/xraph/postmaster"

// Tracing wraps each delivery attempt in an OpenTelemetry span using the
// global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
//
// Span attributes: postmaster.message.id, postmaster.priority,
// postmaster.attempt. Errors set the span status to codes.Error.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, m *message.Message, next Handler) error {
		ctx, span := tracer.Start(ctx, "postmaster.message.send",
			trace.WithAttributes(
				attribute.String("postmaster.message.id", m.ID.String()),
				attribute.Int("postmaster.priority", m.Priority),
				attribute.Int("postmaster.attempt", m.Attempts),
			),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
