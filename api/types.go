package api

import (
	"time"

	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/scheduler"
)

// EnqueueRequest is the JSON body of POST /v1/messages. Raw is a complete
// RFC 5322 message.
type EnqueueRequest struct {
	Raw      string `json:"raw"`
	Priority int    `json:"priority"`
}

// MessageResponse describes an accepted message.
type MessageResponse struct {
	ID         id.MessageID  `json:"id"`
	Priority   int           `json:"priority"`
	Seq        uint64        `json:"seq"`
	State      message.State `json:"state"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

func newMessageResponse(m *message.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		Priority:   m.Priority,
		Seq:        m.Seq,
		State:      m.State,
		EnqueuedAt: m.EnqueuedAt,
	}
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Mode string `json:"mode"`
	scheduler.Stats
	DLQCount int64 `json:"dlq_count"`
}

// DLQCountResponse is the body of GET /v1/dlq/count.
type DLQCountResponse struct {
	Count int64 `json:"count"`
}

// PurgeDLQResponse is the body of POST /v1/dlq/purge.
type PurgeDLQResponse struct {
	Purged int64 `json:"purged"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
