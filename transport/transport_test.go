package transport_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/transport"
)

func TestPermanent(t *testing.T) {
	base := errors.New("550 no such user")

	err := transport.Permanent(base)
	if !transport.IsPermanent(err) {
		t.Fatal("IsPermanent = false, want true")
	}
	if !errors.Is(err, base) {
		t.Error("permanent error should unwrap to its cause")
	}

	wrapped := fmt.Errorf("send: %w", err)
	if !transport.IsPermanent(wrapped) {
		t.Error("IsPermanent should see through wrapping")
	}
	if transport.Permanent(wrapped) != wrapped {
		t.Error("Permanent should not wrap twice")
	}
}

func TestPermanent_Nil(t *testing.T) {
	if transport.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if transport.IsPermanent(errors.New("451 greylisted")) {
		t.Error("plain error should be transient")
	}
}

func TestFunc(t *testing.T) {
	var got *message.Message
	tr := transport.Func(func(_ context.Context, m *message.Message) error {
		got = m
		return nil
	})
	m := message.New([]byte("x"), 0)
	if err := tr.Send(context.Background(), m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != m {
		t.Error("Func did not receive the message")
	}
	if err := transport.Discard.Send(context.Background(), m); err != nil {
		t.Errorf("Discard.Send = %v, want nil", err)
	}
}
