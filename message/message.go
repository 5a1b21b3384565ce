package message

import (
	"time"

	"github.com/xraph/postmaster/id"
)

// State represents the delivery state of a message.
type State string

const (
	// StateQueued means the message waits in the priority ring or the store.
	StateQueued State = "queued"
	// StateInWindow means the message is dispatchable.
	StateInWindow State = "in_window"
	// StateDispatching means the transport is currently sending the message.
	StateDispatching State = "dispatching"
	// StateDelivered means the transport accepted the message.
	StateDelivered State = "delivered"
	// StateRetrying means the last attempt failed and a retry is scheduled.
	StateRetrying State = "retrying"
	// StateFailed means the message will not be retried.
	StateFailed State = "failed"
	// StateWithdrawn means the message was removed before delivery.
	StateWithdrawn State = "withdrawn"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed || s == StateWithdrawn
}

// Message is a unit of outbound mail.
type Message struct {
	ID         id.MessageID `json:"id"`
	Payload    []byte       `json:"payload"`
	Priority   int          `json:"priority"`
	Seq        uint64       `json:"seq"`
	State      State        `json:"state"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"last_error,omitempty"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// New creates a queued message with a fresh ID. Seq is assigned by the
// scheduler.
func New(payload []byte, priority int) *Message {
	return &Message{
		ID:         id.NewMessageID(),
		Payload:    payload,
		Priority:   priority,
		State:      StateQueued,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Key returns the ordering key of m.
func (m *Message) Key() Key {
	return Key{Priority: m.Priority, Seq: m.Seq, ID: m.ID}
}

// Clone returns a copy of m. The payload is shared; it is never mutated.
func (m *Message) Clone() *Message {
	cp := *m
	return &cp
}

// Key is the ordering key of a message: priority first, then sequence.
type Key struct {
	Priority int
	Seq      uint64
	ID       id.MessageID
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	if k.Priority != o.Priority {
		return k.Priority < o.Priority
	}
	return k.Seq < o.Seq
}
