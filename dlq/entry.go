package dlq

import (
	"time"

	"github.com/xraph/postmaster/id"
)

// Entry represents a message that failed permanently or exhausted its
// delivery attempts.
type Entry struct {
	ID         id.DLQID     `json:"id"`
	MessageID  id.MessageID `json:"message_id"`
	Priority   int          `json:"priority"`
	Payload    []byte       `json:"payload"`
	Error      string       `json:"error"`
	Attempts   int          `json:"attempts"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
	FailedAt   time.Time    `json:"failed_at"`
	ReplayedAt *time.Time   `json:"replayed_at,omitempty"`
}
