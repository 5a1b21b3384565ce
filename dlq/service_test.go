package dlq_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/store/memory"
)

// recordingEnqueuer remembers replayed payloads.
type recordingEnqueuer struct {
	calls []*message.Message
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, payload []byte, priority int) (*message.Message, error) {
	if r.err != nil {
		return nil, r.err
	}
	m := message.New(payload, priority)
	r.calls = append(r.calls, m)
	return m, nil
}

func failedMessage() *message.Message {
	m := message.New([]byte("Subject: hi\r\n\r\nbody"), 3)
	m.Attempts = 5
	m.LastError = "421 try later"
	return m
}

// ──────────────────────────────────────────────────
// Push
// ──────────────────────────────────────────────────

func TestService_Push_BuildsEntryFromMessage(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, nil)
	ctx := context.Background()

	m := failedMessage()
	entry, err := svc.Push(ctx, m, errors.New("550 mailbox unavailable"))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	entries, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 DLQ entry, got %d", len(entries))
	}

	got := entries[0]
	if got.ID != entry.ID {
		t.Errorf("ID = %v, want %v", got.ID, entry.ID)
	}
	if got.MessageID != m.ID {
		t.Errorf("MessageID = %v, want %v", got.MessageID, m.ID)
	}
	if got.Priority != 3 {
		t.Errorf("Priority = %d, want 3", got.Priority)
	}
	if string(got.Payload) != string(m.Payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, m.Payload)
	}
	if got.Error != "550 mailbox unavailable" {
		t.Errorf("Error = %q, want %q", got.Error, "550 mailbox unavailable")
	}
	if got.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", got.Attempts)
	}
	if got.FailedAt.IsZero() {
		t.Error("FailedAt should be set")
	}
	if got.ID.Prefix() != id.PrefixDLQ {
		t.Errorf("ID prefix = %q, want %q", got.ID.Prefix(), id.PrefixDLQ)
	}
}

func TestService_Push_FallsBackToLastError(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, nil)

	entry, err := svc.Push(context.Background(), failedMessage(), nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if entry.Error != "421 try later" {
		t.Errorf("Error = %q, want %q", entry.Error, "421 try later")
	}
}

// ──────────────────────────────────────────────────
// Replay
// ──────────────────────────────────────────────────

func TestService_Replay_ReenqueuesAndMarks(t *testing.T) {
	s := memory.New()
	enq := &recordingEnqueuer{}
	svc := dlq.NewService(s, enq)
	ctx := context.Background()

	entry, err := svc.Push(ctx, failedMessage(), errors.New("boom"))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	m, err := svc.Replay(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(enq.calls) != 1 {
		t.Fatalf("enqueue calls = %d, want 1", len(enq.calls))
	}
	if m.Priority != 3 || m.Attempts != 0 {
		t.Errorf("replayed = %+v, want priority 3 and zero attempts", m)
	}

	got, err := s.GetDLQ(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Error("ReplayedAt should be set after replay")
	}
}

func TestService_Replay_NotFound(t *testing.T) {
	svc := dlq.NewService(memory.New(), &recordingEnqueuer{})

	_, err := svc.Replay(context.Background(), id.NewDLQID())
	if !errors.Is(err, postmaster.ErrDLQNotFound) {
		t.Errorf("err = %v, want %v", err, postmaster.ErrDLQNotFound)
	}
}

func TestService_Replay_EnqueueFailureLeavesEntry(t *testing.T) {
	s := memory.New()
	enq := &recordingEnqueuer{err: postmaster.ErrSchedulerStopped}
	svc := dlq.NewService(s, enq)
	ctx := context.Background()

	entry, _ := svc.Push(ctx, failedMessage(), errors.New("boom")) //nolint:errcheck // memory store
	if _, err := svc.Replay(ctx, entry.ID); !errors.Is(err, postmaster.ErrSchedulerStopped) {
		t.Fatalf("err = %v, want %v", err, postmaster.ErrSchedulerStopped)
	}
	got, _ := s.GetDLQ(ctx, entry.ID) //nolint:errcheck // checked below
	if got == nil || got.ReplayedAt != nil {
		t.Errorf("entry = %+v, want it unreplayed", got)
	}
}

func TestService_Replay_WithoutEnqueuer(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s, nil)
	ctx := context.Background()

	entry, _ := svc.Push(ctx, failedMessage(), nil) //nolint:errcheck // memory store
	if _, err := svc.Replay(ctx, entry.ID); err == nil {
		t.Error("expected an error without a replay target")
	}

	svc.SetEnqueuer(&recordingEnqueuer{})
	if _, err := svc.Replay(ctx, entry.ID); err != nil {
		t.Errorf("Replay after SetEnqueuer: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Retention
// ──────────────────────────────────────────────────

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pushAged(t *testing.T, s *memory.Store, age time.Duration) {
	t.Helper()
	entry := &dlq.Entry{
		ID:        id.NewDLQID(),
		MessageID: id.NewMessageID(),
		Payload:   []byte("x"),
		FailedAt:  time.Now().UTC().Add(-age),
	}
	if err := s.PushDLQ(context.Background(), entry); err != nil {
		t.Fatalf("PushDLQ: %v", err)
	}
}

func TestRetention_SweepPurgesOldEntries(t *testing.T) {
	s := memory.New()
	pushAged(t, s, 48*time.Hour)
	pushAged(t, s, 25*time.Hour)
	pushAged(t, s, time.Hour)

	r, err := dlq.NewRetention(s, 24*time.Hour, "@hourly", discard())
	if err != nil {
		t.Fatalf("NewRetention: %v", err)
	}
	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}
	if c, _ := s.CountDLQ(context.Background()); c != 1 {
		t.Errorf("remaining = %d, want 1", c)
	}
}

func TestRetention_ZeroAgeKeepsEverything(t *testing.T) {
	s := memory.New()
	pushAged(t, s, 1000*time.Hour)

	r, err := dlq.NewRetention(s, 0, "@daily", discard())
	if err != nil {
		t.Fatalf("NewRetention: %v", err)
	}
	if n, _ := r.Sweep(context.Background()); n != 0 {
		t.Errorf("purged = %d, want 0", n)
	}
}

func TestRetention_InvalidSchedule(t *testing.T) {
	if _, err := dlq.NewRetention(memory.New(), time.Hour, "not a schedule", discard()); err == nil {
		t.Error("expected an error for an invalid schedule")
	}
}

func TestRetention_StartStop(t *testing.T) {
	r, err := dlq.NewRetention(memory.New(), time.Hour, "@every 10ms", discard())
	if err != nil {
		t.Fatalf("NewRetention: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}
