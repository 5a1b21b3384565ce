package message_test

import (
	"sort"
	"testing"

	"github.com/xraph/postmaster/message"
)

func TestNew(t *testing.T) {
	m := message.New([]byte("Subject: hi\r\n\r\nbody"), 2)
	if m.ID.IsNil() {
		t.Fatal("expected an ID")
	}
	if m.State != message.StateQueued {
		t.Errorf("State = %q, want %q", m.State, message.StateQueued)
	}
	if m.Priority != 2 || m.Attempts != 0 {
		t.Errorf("Priority = %d, Attempts = %d", m.Priority, m.Attempts)
	}
	if m.EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt not set")
	}
}

func TestKeyOrdering(t *testing.T) {
	keys := []message.Key{
		{Priority: 2, Seq: 1},
		{Priority: 0, Seq: 3},
		{Priority: 1, Seq: 0},
		{Priority: 0, Seq: 2},
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	want := []message.Key{
		{Priority: 0, Seq: 2},
		{Priority: 0, Seq: 3},
		{Priority: 1, Seq: 0},
		{Priority: 2, Seq: 1},
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %+v, want %+v", i, keys[i], want[i])
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := message.New(nil, 0)
	cp := m.Clone()
	cp.Attempts = 3
	cp.State = message.StateRetrying
	if m.Attempts != 0 || m.State != message.StateQueued {
		t.Errorf("clone mutated original: %+v", m)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []message.State{message.StateDelivered, message.StateFailed, message.StateWithdrawn} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []message.State{message.StateQueued, message.StateInWindow, message.StateDispatching, message.StateRetrying} {
		if s.Terminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}
