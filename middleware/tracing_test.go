package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	mw "github.com/xraph/postmaster/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func TestTracing_SpanNameAndAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	m := newTestMessage()

	err := mw.TracingWithTracer(tracer)(context.Background(), m, func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "postmaster.message.send" {
		t.Errorf("span name = %q, want %q", spans[0].Name(), "postmaster.message.send")
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status().Code)
	}

	attrMap := make(map[string]interface{})
	for _, a := range spans[0].Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			attrMap[string(a.Key)] = a.Value.AsString()
		case attribute.INT64:
			attrMap[string(a.Key)] = a.Value.AsInt64()
		}
	}
	expected := map[string]interface{}{
		"postmaster.message.id": m.ID.String(),
		"postmaster.priority":   int64(3),
		"postmaster.attempt":    int64(2),
	}
	for key, want := range expected {
		if got := attrMap[key]; got != want {
			t.Errorf("attribute %q = %v, want %v", key, got, want)
		}
	}
}

func TestTracing_Error_SetsErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()
	sendErr := errors.New("554 transaction failed")

	err := mw.TracingWithTracer(tracer)(context.Background(), newTestMessage(), func(_ context.Context) error {
		return sendErr
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("err = %v, want %v", err, sendErr)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status().Code)
	}
	if spans[0].Status().Description != sendErr.Error() {
		t.Errorf("description = %q, want %q", spans[0].Status().Description, sendErr.Error())
	}
	found := false
	for _, ev := range spans[0].Events() {
		if ev.Name == "exception" {
			found = true
		}
	}
	if !found {
		t.Error("expected exception event on span")
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	sr, tracer := setupTestTracer()

	var handlerSpanCtx trace.SpanContext
	_ = mw.TracingWithTracer(tracer)(context.Background(), newTestMessage(), func(ctx context.Context) error {
		handlerSpanCtx = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if !handlerSpanCtx.IsValid() {
		t.Fatal("expected valid span context in handler")
	}
	if handlerSpanCtx.TraceID() != spans[0].SpanContext().TraceID() {
		t.Error("handler trace ID does not match middleware span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Tracing()(context.Background(), newTestMessage(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}
