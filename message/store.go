package message

import (
	"context"

	"github.com/xraph/postmaster/id"
)

// Store defines the persistence contract for overflow messages. A store
// keeps records ordered by Key and is only ever written by the scheduler's
// batch mover, one batch at a time.
type Store interface {
	// AppendMessages persists a batch atomically: either every record is
	// stored or none is. Returns postmaster.ErrPersistenceUnavailable
	// (wrapped) when the backend cannot be reached.
	AppendMessages(ctx context.Context, msgs []*Message) error

	// FetchTopMessages returns up to n records in Key order without
	// removing them.
	FetchTopMessages(ctx context.Context, n int) ([]*Message, error)

	// RemoveMessages deletes the given records atomically. Unknown IDs are
	// ignored.
	RemoveMessages(ctx context.Context, ids []id.MessageID) error

	// CountMessages returns the number of stored records.
	CountMessages(ctx context.Context) (int64, error)

	// MessageKeys returns the Key of every stored record in Key order. It
	// is used to rebuild scheduler bookkeeping at startup.
	MessageKeys(ctx context.Context) ([]Key, error)
}
