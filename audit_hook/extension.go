package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/postmaster/ext"
	"github.com/xraph/postmaster/message"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.MessageEnqueued  = (*Extension)(nil)
	_ ext.MessageDelivered = (*Extension)(nil)
	_ ext.MessageRetrying  = (*Extension)(nil)
	_ ext.MessageFailed    = (*Extension)(nil)
	_ ext.MessageWithdrawn = (*Extension)(nil)
	_ ext.BatchSpilled     = (*Extension)(nil)
	_ ext.BatchLoaded      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder writes each event as a log line on l, at warn level for
// critical events and info otherwise.
func SlogRecorder(l *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		if evt.Severity == SeverityCritical {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
		}
		if evt.Reason != "" {
			attrs = append(attrs, slog.String("reason", evt.Reason))
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		l.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges Postmaster lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Message lifecycle hooks ─────────────────────────

// OnMessageEnqueued implements ext.MessageEnqueued.
func (e *Extension) OnMessageEnqueued(ctx context.Context, m *message.Message) error {
	return e.record(ctx, ActionMessageEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceMessage, m.ID.String(), CategoryMessage, nil,
		"priority", m.Priority,
		"seq", m.Seq,
	)
}

// OnMessageDelivered implements ext.MessageDelivered.
func (e *Extension) OnMessageDelivered(ctx context.Context, m *message.Message, elapsed time.Duration) error {
	return e.record(ctx, ActionMessageDelivered, SeverityInfo, OutcomeSuccess,
		ResourceMessage, m.ID.String(), CategoryMessage, nil,
		"priority", m.Priority,
		"attempts", m.Attempts,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnMessageRetrying implements ext.MessageRetrying.
func (e *Extension) OnMessageRetrying(ctx context.Context, m *message.Message, sendErr error, retryAt time.Time) error {
	return e.record(ctx, ActionMessageRetrying, SeverityWarning, OutcomeFailure,
		ResourceMessage, m.ID.String(), CategoryMessage, sendErr,
		"priority", m.Priority,
		"attempt", m.Attempts,
		"retry_at", retryAt.Format(time.RFC3339),
	)
}

// OnMessageFailed implements ext.MessageFailed.
func (e *Extension) OnMessageFailed(ctx context.Context, m *message.Message, sendErr error) error {
	return e.record(ctx, ActionMessageFailed, SeverityCritical, OutcomeFailure,
		ResourceMessage, m.ID.String(), CategoryMessage, sendErr,
		"priority", m.Priority,
		"attempts", m.Attempts,
	)
}

// OnMessageWithdrawn implements ext.MessageWithdrawn.
func (e *Extension) OnMessageWithdrawn(ctx context.Context, m *message.Message) error {
	return e.record(ctx, ActionMessageWithdrawn, SeverityWarning, OutcomeSuccess,
		ResourceMessage, m.ID.String(), CategoryMessage, nil,
		"priority", m.Priority,
	)
}

// ── Store hooks ─────────────────────────────────────

// OnBatchSpilled implements ext.BatchSpilled.
func (e *Extension) OnBatchSpilled(ctx context.Context, n int) error {
	return e.record(ctx, ActionBatchSpilled, SeverityInfo, OutcomeSuccess,
		ResourceBatch, "", CategoryStore, nil,
		"count", n,
	)
}

// OnBatchLoaded implements ext.BatchLoaded.
func (e *Extension) OnBatchLoaded(ctx context.Context, n int) error {
	return e.record(ctx, ActionBatchLoaded, SeverityInfo, OutcomeSuccess,
		ResourceBatch, "", CategoryStore, nil,
		"count", n,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
