package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// Enqueuer accepts a replayed message. The scheduler satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte, priority int) (*message.Message, error)
}

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	enqueuer Enqueuer
}

// NewService creates a DLQ service. enqueuer may be nil, in which case
// Replay is unavailable.
func NewService(store Store, enqueuer Enqueuer) *Service {
	return &Service{store: store, enqueuer: enqueuer}
}

// SetEnqueuer sets the target of replays (called by engine).
func (s *Service) SetEnqueuer(e Enqueuer) { s.enqueuer = e }

// Push builds an Entry from a failed message and persists it.
func (s *Service) Push(ctx context.Context, m *message.Message, sendErr error) (*Entry, error) {
	reason := m.LastError
	if sendErr != nil {
		reason = sendErr.Error()
	}
	entry := &Entry{
		ID:         id.NewDLQID(),
		MessageID:  m.ID,
		Priority:   m.Priority,
		Payload:    m.Payload,
		Error:      reason,
		Attempts:   m.Attempts,
		EnqueuedAt: m.EnqueuedAt,
		FailedAt:   time.Now().UTC(),
	}
	if err := s.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// DLQStore returns the underlying store for List, Get, Purge and Count.
func (s *Service) DLQStore() Store {
	return s.store
}

var errNoEnqueuer = errors.New("dlq: replay target not configured")
