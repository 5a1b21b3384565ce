package dlq

import (
	"context"

	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// Replay re-enqueues a DLQ entry as a new message at its original priority
// and marks the entry as replayed. The new message gets a fresh ID and a
// zero attempt count.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*message.Message, error) {
	if s.enqueuer == nil {
		return nil, errNoEnqueuer
	}
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	m, err := s.enqueuer.Enqueue(ctx, entry.Payload, entry.Priority)
	if err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The message is already enqueued.
		return m, err
	}
	return m, nil
}
