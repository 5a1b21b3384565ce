// Package ext defines the extension system for Postmaster.
// Extensions are notified of lifecycle events (message enqueued, delivered,
// failed, batches moved, etc.) and can react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/postmaster/message"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Message lifecycle hooks
// ──────────────────────────────────────────────────

// MessageEnqueued is called after a message is accepted into the ring.
type MessageEnqueued interface {
	OnMessageEnqueued(ctx context.Context, m *message.Message) error
}

// MessageDispatched is called right before the transport is invoked.
// m.Attempts already counts the attempt being made.
type MessageDispatched interface {
	OnMessageDispatched(ctx context.Context, m *message.Message) error
}

// MessageDelivered is called after the transport accepted the message.
type MessageDelivered interface {
	OnMessageDelivered(ctx context.Context, m *message.Message, elapsed time.Duration) error
}

// MessageRetrying is called when an attempt failed and another is scheduled.
type MessageRetrying interface {
	OnMessageRetrying(ctx context.Context, m *message.Message, err error, retryAt time.Time) error
}

// MessageFailed is called when a message is moved to the dead letter queue.
type MessageFailed interface {
	OnMessageFailed(ctx context.Context, m *message.Message, err error) error
}

// MessageWithdrawn is called after a message was removed before delivery.
type MessageWithdrawn interface {
	OnMessageWithdrawn(ctx context.Context, m *message.Message) error
}

// ──────────────────────────────────────────────────
// Batch mover hooks
// ──────────────────────────────────────────────────

// BatchSpilled is called after n records moved from memory to the store.
type BatchSpilled interface {
	OnBatchSpilled(ctx context.Context, n int) error
}

// BatchLoaded is called after n records moved from the store into the window.
type BatchLoaded interface {
	OnBatchLoaded(ctx context.Context, n int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
