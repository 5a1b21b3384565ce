package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/postmaster/message"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register is not safe for concurrent use; register everything before the
// scheduler starts. Emit methods may be called concurrently.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	messageEnqueued   []entry[MessageEnqueued]
	messageDispatched []entry[MessageDispatched]
	messageDelivered  []entry[MessageDelivered]
	messageRetrying   []entry[MessageRetrying]
	messageFailed     []entry[MessageFailed]
	messageWithdrawn  []entry[MessageWithdrawn]
	batchSpilled      []entry[BatchSpilled]
	batchLoaded       []entry[BatchLoaded]
	shutdown          []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// SetLogger replaces the logger used for hook errors. A nil logger is ignored.
func (r *Registry) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(MessageEnqueued); ok {
		r.messageEnqueued = append(r.messageEnqueued, entry[MessageEnqueued]{name, h})
	}
	if h, ok := e.(MessageDispatched); ok {
		r.messageDispatched = append(r.messageDispatched, entry[MessageDispatched]{name, h})
	}
	if h, ok := e.(MessageDelivered); ok {
		r.messageDelivered = append(r.messageDelivered, entry[MessageDelivered]{name, h})
	}
	if h, ok := e.(MessageRetrying); ok {
		r.messageRetrying = append(r.messageRetrying, entry[MessageRetrying]{name, h})
	}
	if h, ok := e.(MessageFailed); ok {
		r.messageFailed = append(r.messageFailed, entry[MessageFailed]{name, h})
	}
	if h, ok := e.(MessageWithdrawn); ok {
		r.messageWithdrawn = append(r.messageWithdrawn, entry[MessageWithdrawn]{name, h})
	}
	if h, ok := e.(BatchSpilled); ok {
		r.batchSpilled = append(r.batchSpilled, entry[BatchSpilled]{name, h})
	}
	if h, ok := e.(BatchLoaded); ok {
		r.batchLoaded = append(r.batchLoaded, entry[BatchLoaded]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Message event emitters
// ──────────────────────────────────────────────────

// EmitMessageEnqueued notifies all extensions that implement MessageEnqueued.
func (r *Registry) EmitMessageEnqueued(ctx context.Context, m *message.Message) {
	for _, e := range r.messageEnqueued {
		if err := e.hook.OnMessageEnqueued(ctx, m); err != nil {
			r.logHookError("OnMessageEnqueued", e.name, err)
		}
	}
}

// EmitMessageDispatched notifies all extensions that implement MessageDispatched.
func (r *Registry) EmitMessageDispatched(ctx context.Context, m *message.Message) {
	for _, e := range r.messageDispatched {
		if err := e.hook.OnMessageDispatched(ctx, m); err != nil {
			r.logHookError("OnMessageDispatched", e.name, err)
		}
	}
}

// EmitMessageDelivered notifies all extensions that implement MessageDelivered.
func (r *Registry) EmitMessageDelivered(ctx context.Context, m *message.Message, elapsed time.Duration) {
	for _, e := range r.messageDelivered {
		if err := e.hook.OnMessageDelivered(ctx, m, elapsed); err != nil {
			r.logHookError("OnMessageDelivered", e.name, err)
		}
	}
}

// EmitMessageRetrying notifies all extensions that implement MessageRetrying.
func (r *Registry) EmitMessageRetrying(ctx context.Context, m *message.Message, sendErr error, retryAt time.Time) {
	for _, e := range r.messageRetrying {
		if err := e.hook.OnMessageRetrying(ctx, m, sendErr, retryAt); err != nil {
			r.logHookError("OnMessageRetrying", e.name, err)
		}
	}
}

// EmitMessageFailed notifies all extensions that implement MessageFailed.
func (r *Registry) EmitMessageFailed(ctx context.Context, m *message.Message, sendErr error) {
	for _, e := range r.messageFailed {
		if err := e.hook.OnMessageFailed(ctx, m, sendErr); err != nil {
			r.logHookError("OnMessageFailed", e.name, err)
		}
	}
}

// EmitMessageWithdrawn notifies all extensions that implement MessageWithdrawn.
func (r *Registry) EmitMessageWithdrawn(ctx context.Context, m *message.Message) {
	for _, e := range r.messageWithdrawn {
		if err := e.hook.OnMessageWithdrawn(ctx, m); err != nil {
			r.logHookError("OnMessageWithdrawn", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Mover and lifecycle emitters
// ──────────────────────────────────────────────────

// EmitBatchSpilled notifies all extensions that implement BatchSpilled.
func (r *Registry) EmitBatchSpilled(ctx context.Context, n int) {
	for _, e := range r.batchSpilled {
		if err := e.hook.OnBatchSpilled(ctx, n); err != nil {
			r.logHookError("OnBatchSpilled", e.name, err)
		}
	}
}

// EmitBatchLoaded notifies all extensions that implement BatchLoaded.
func (r *Registry) EmitBatchLoaded(ctx context.Context, n int) {
	for _, e := range r.batchLoaded {
		if err := e.hook.OnBatchLoaded(ctx, n); err != nil {
			r.logHookError("OnBatchLoaded", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
