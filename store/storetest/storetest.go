// Package storetest provides a conformance suite shared by every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/store"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run runs the message and DLQ suites against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	t.Run("Messages", func(t *testing.T) { RunMessages(t, newStore) })
	t.Run("DLQ", func(t *testing.T) { RunDLQ(t, newStore) })
}

// NewMessage builds a record with the given priority and sequence number.
func NewMessage(priority int, seq uint64) *message.Message {
	m := message.New([]byte("Subject: test\r\n\r\nbody"), priority)
	m.Seq = seq
	return m
}

func open(t *testing.T, newStore Factory) (store.Store, context.Context) {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s, context.Background()
}

// RunMessages exercises message.Store.
func RunMessages(t *testing.T, newStore Factory) {
	t.Run("FetchTopOrdersByPriorityThenSeq", func(t *testing.T) {
		s, ctx := open(t, newStore)

		batch1 := []*message.Message{NewMessage(2, 1), NewMessage(0, 5), NewMessage(1, 3)}
		batch2 := []*message.Message{NewMessage(0, 2), NewMessage(2, 10), NewMessage(0, 11)}
		for _, b := range [][]*message.Message{batch1, batch2} {
			if err := s.AppendMessages(ctx, b); err != nil {
				t.Fatalf("AppendMessages: %v", err)
			}
		}

		got, err := s.FetchTopMessages(ctx, 10)
		if err != nil {
			t.Fatalf("FetchTopMessages: %v", err)
		}
		want := []struct {
			Priority int
			Seq      uint64
		}{{0, 2}, {0, 5}, {0, 11}, {1, 3}, {2, 1}, {2, 10}}
		if len(got) != len(want) {
			t.Fatalf("len = %d, want %d", len(got), len(want))
		}
		for i, m := range got {
			if m.Priority != want[i].Priority || m.Seq != want[i].Seq {
				t.Errorf("got[%d] = (%d,%d), want (%d,%d)", i, m.Priority, m.Seq, want[i].Priority, want[i].Seq)
			}
		}

		top, err := s.FetchTopMessages(ctx, 2)
		if err != nil {
			t.Fatalf("FetchTopMessages(2): %v", err)
		}
		if len(top) != 2 || top[0].Seq != 2 || top[1].Seq != 5 {
			t.Errorf("FetchTopMessages(2) = %v", seqs(top))
		}

		// Fetching does not remove.
		if n, _ := s.CountMessages(ctx); n != 6 {
			t.Errorf("CountMessages = %d, want 6", n)
		}
	})

	t.Run("RoundTripsFields", func(t *testing.T) {
		s, ctx := open(t, newStore)

		m := NewMessage(1, 42)
		m.Attempts = 2
		m.LastError = "421 try later"
		m.State = message.StateInWindow
		if err := s.AppendMessages(ctx, []*message.Message{m}); err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
		got, err := s.FetchTopMessages(ctx, 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("FetchTopMessages = %v, %v", got, err)
		}
		g := got[0]
		if g.ID != m.ID {
			t.Errorf("ID = %v, want %v", g.ID, m.ID)
		}
		if string(g.Payload) != string(m.Payload) {
			t.Errorf("Payload = %q, want %q", g.Payload, m.Payload)
		}
		if g.Priority != 1 || g.Seq != 42 || g.Attempts != 2 || g.LastError != "421 try later" {
			t.Errorf("record = %+v", g)
		}
		if d := g.EnqueuedAt.Sub(m.EnqueuedAt); d > time.Millisecond || d < -time.Millisecond {
			t.Errorf("EnqueuedAt = %v, want %v", g.EnqueuedAt, m.EnqueuedAt)
		}
	})

	t.Run("RemoveAndCount", func(t *testing.T) {
		s, ctx := open(t, newStore)

		msgs := []*message.Message{NewMessage(0, 1), NewMessage(0, 2), NewMessage(1, 3), NewMessage(2, 4)}
		if err := s.AppendMessages(ctx, msgs); err != nil {
			t.Fatalf("AppendMessages: %v", err)
		}
		if err := s.RemoveMessages(ctx, []id.MessageID{msgs[0].ID, msgs[2].ID, id.NewMessageID()}); err != nil {
			t.Fatalf("RemoveMessages: %v", err)
		}
		n, err := s.CountMessages(ctx)
		if err != nil {
			t.Fatalf("CountMessages: %v", err)
		}
		if n != 2 {
			t.Errorf("CountMessages = %d, want 2", n)
		}
		keys, err := s.MessageKeys(ctx)
		if err != nil {
			t.Fatalf("MessageKeys: %v", err)
		}
		if len(keys) != 2 || keys[0].ID != msgs[1].ID || keys[1].ID != msgs[3].ID {
			t.Errorf("MessageKeys = %+v", keys)
		}
		if err := s.RemoveMessages(ctx, nil); err != nil {
			t.Errorf("RemoveMessages(nil) = %v", err)
		}
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s, ctx := open(t, newStore)

		got, err := s.FetchTopMessages(ctx, 5)
		if err != nil || len(got) != 0 {
			t.Errorf("FetchTopMessages on empty store = %v, %v", got, err)
		}
		keys, err := s.MessageKeys(ctx)
		if err != nil || len(keys) != 0 {
			t.Errorf("MessageKeys on empty store = %v, %v", keys, err)
		}
		if err := s.Ping(ctx); err != nil {
			t.Errorf("Ping = %v", err)
		}
	})
}

// RunDLQ exercises dlq.Store.
func RunDLQ(t *testing.T, newStore Factory) {
	entry := func(failedAt time.Time) *dlq.Entry {
		return &dlq.Entry{
			ID:         id.NewDLQID(),
			MessageID:  id.NewMessageID(),
			Priority:   1,
			Payload:    []byte("payload"),
			Error:      "550 mailbox unavailable",
			Attempts:   5,
			EnqueuedAt: failedAt.Add(-time.Minute),
			FailedAt:   failedAt,
		}
	}

	t.Run("PushGetList", func(t *testing.T) {
		s, ctx := open(t, newStore)
		now := time.Now().UTC().Truncate(time.Millisecond)

		older, newer := entry(now.Add(-time.Hour)), entry(now)
		for _, e := range []*dlq.Entry{older, newer} {
			if err := s.PushDLQ(ctx, e); err != nil {
				t.Fatalf("PushDLQ: %v", err)
			}
		}

		got, err := s.GetDLQ(ctx, older.ID)
		if err != nil {
			t.Fatalf("GetDLQ: %v", err)
		}
		if got.MessageID != older.MessageID || got.Error != older.Error || got.Attempts != 5 || got.Priority != 1 {
			t.Errorf("GetDLQ = %+v", got)
		}

		list, err := s.ListDLQ(ctx, dlq.ListOpts{})
		if err != nil {
			t.Fatalf("ListDLQ: %v", err)
		}
		if len(list) != 2 || list[0].ID != newer.ID {
			t.Errorf("ListDLQ not newest first: %+v", list)
		}
		page, err := s.ListDLQ(ctx, dlq.ListOpts{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListDLQ page: %v", err)
		}
		if len(page) != 1 || page[0].ID != older.ID {
			t.Errorf("ListDLQ page = %+v", page)
		}
		if n, _ := s.CountDLQ(ctx); n != 2 {
			t.Errorf("CountDLQ = %d, want 2", n)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s, ctx := open(t, newStore)
		if _, err := s.GetDLQ(ctx, id.NewDLQID()); !errors.Is(err, postmaster.ErrDLQNotFound) {
			t.Errorf("GetDLQ = %v, want ErrDLQNotFound", err)
		}
		if err := s.ReplayDLQ(ctx, id.NewDLQID()); !errors.Is(err, postmaster.ErrDLQNotFound) {
			t.Errorf("ReplayDLQ = %v, want ErrDLQNotFound", err)
		}
	})

	t.Run("ReplayAndPurge", func(t *testing.T) {
		s, ctx := open(t, newStore)
		now := time.Now().UTC()

		old, fresh := entry(now.Add(-48*time.Hour)), entry(now)
		_ = s.PushDLQ(ctx, old)
		_ = s.PushDLQ(ctx, fresh)

		if err := s.ReplayDLQ(ctx, fresh.ID); err != nil {
			t.Fatalf("ReplayDLQ: %v", err)
		}
		got, err := s.GetDLQ(ctx, fresh.ID)
		if err != nil {
			t.Fatalf("GetDLQ: %v", err)
		}
		if got.ReplayedAt == nil {
			t.Error("ReplayedAt not set")
		}

		n, err := s.PurgeDLQ(ctx, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("PurgeDLQ: %v", err)
		}
		if n != 1 {
			t.Errorf("PurgeDLQ removed %d, want 1", n)
		}
		if c, _ := s.CountDLQ(ctx); c != 1 {
			t.Errorf("CountDLQ = %d, want 1", c)
		}
	})
}

func seqs(msgs []*message.Message) []uint64 {
	out := make([]uint64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Seq
	}
	return out
}
