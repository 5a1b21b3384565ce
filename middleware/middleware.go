// Package middleware provides composable middleware around message
// delivery. Middleware wrap each transport call synchronously and can
// modify it (recover from panics, log, trace, rate limit, etc.).
package middleware

import (
	"context"

	"github.com/xraph/postmaster/message"
)

// Handler is the terminal function that hands the message to the transport.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the message being delivered and the next handler.
// Middleware MUST call next to continue the chain unless short-circuiting
// on error.
type Middleware func(ctx context.Context, m *message.Message, next Handler) error

// Chain composes middleware into a single Middleware. The first middleware
// in the list is the outermost wrapper:
//
//	Chain(logging, recover, timeout) runs logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, m *message.Message, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, m, prev)
			}
		}
		return h(ctx)
	}
}
