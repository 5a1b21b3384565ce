package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// ── Message model ─────────────────────────────────────────────────

type messageModel struct {
	bun.BaseModel `bun:"table:postmaster_messages"`

	ID         string    `bun:"id,pk"`
	Payload    []byte    `bun:"payload,notnull"`
	Priority   int       `bun:"priority,notnull"`
	Seq        int64     `bun:"seq,notnull"`
	State      string    `bun:"state,notnull"`
	Attempts   int       `bun:"attempts,notnull,default:0"`
	LastError  string    `bun:"last_error"`
	EnqueuedAt time.Time `bun:"enqueued_at,notnull"`
}

func toMessageModel(m *message.Message) *messageModel {
	return &messageModel{
		ID:         m.ID.String(),
		Payload:    m.Payload,
		Priority:   m.Priority,
		Seq:        int64(m.Seq), //nolint:gosec // sequence numbers stay far below 2^63
		State:      string(m.State),
		Attempts:   m.Attempts,
		LastError:  m.LastError,
		EnqueuedAt: m.EnqueuedAt.UTC(),
	}
}

func fromMessageModel(m *messageModel) (*message.Message, error) {
	parsedID, err := id.ParseMessageID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("postmaster/bun: parse message id %q: %w", m.ID, err)
	}
	return &message.Message{
		ID:         parsedID,
		Payload:    m.Payload,
		Priority:   m.Priority,
		Seq:        uint64(m.Seq), //nolint:gosec // written from a uint64
		State:      message.State(m.State),
		Attempts:   m.Attempts,
		LastError:  m.LastError,
		EnqueuedAt: m.EnqueuedAt,
	}, nil
}

// ── DLQ model ─────────────────────────────────────────────────────

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:postmaster_dlq"`

	ID         string     `bun:"id,pk"`
	MessageID  string     `bun:"message_id,notnull"`
	Priority   int        `bun:"priority,notnull"`
	Payload    []byte     `bun:"payload,notnull"`
	Error      string     `bun:"error,notnull"`
	Attempts   int        `bun:"attempts,notnull"`
	EnqueuedAt time.Time  `bun:"enqueued_at,notnull"`
	FailedAt   time.Time  `bun:"failed_at,notnull"`
	ReplayedAt *time.Time `bun:"replayed_at"`
}

func toDLQModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:         e.ID.String(),
		MessageID:  e.MessageID.String(),
		Priority:   e.Priority,
		Payload:    e.Payload,
		Error:      e.Error,
		Attempts:   e.Attempts,
		EnqueuedAt: e.EnqueuedAt.UTC(),
		FailedAt:   e.FailedAt.UTC(),
		ReplayedAt: e.ReplayedAt,
	}
}

func fromDLQModel(m *dlqEntryModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("postmaster/bun: parse dlq id %q: %w", m.ID, err)
	}
	msgID, err := id.ParseMessageID(m.MessageID)
	if err != nil {
		return nil, fmt.Errorf("postmaster/bun: parse message id %q: %w", m.MessageID, err)
	}
	return &dlq.Entry{
		ID:         entryID,
		MessageID:  msgID,
		Priority:   m.Priority,
		Payload:    m.Payload,
		Error:      m.Error,
		Attempts:   m.Attempts,
		EnqueuedAt: m.EnqueuedAt,
		FailedAt:   m.FailedAt,
		ReplayedAt: m.ReplayedAt,
	}, nil
}
