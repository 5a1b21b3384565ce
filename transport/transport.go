// Package transport defines how a message leaves the scheduler.
//
// A Transport returns nil when the remote side accepted the message. Any
// other error is retried with backoff unless it is marked permanent with
// [Permanent], in which case the message goes straight to the dead letter
// queue.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/postmaster/message"
)

// Transport delivers one message.
type Transport interface {
	Send(ctx context.Context, m *message.Message) error
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, m *message.Message) error

// Send calls f.
func (f Func) Send(ctx context.Context, m *message.Message) error { return f(ctx, m) }

// PermanentError marks a failure that retrying cannot fix, such as a
// rejected recipient or a malformed payload.
type PermanentError struct {
	Err error
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent"
	}
	return fmt.Sprintf("permanent: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Permanent wraps err so that the dispatcher does not retry it. A nil err
// stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Discard accepts every message without sending it anywhere.
var Discard Transport = Func(func(context.Context, *message.Message) error { return nil })
