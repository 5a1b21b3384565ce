package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// maxPassBatches bounds the batches moved per mover pass so a large
// backlog does not starve the stop signal.
const maxPassBatches = 16

// runMover moves batches between memory and the store on every tick or
// wake-up until stop.
func (s *Scheduler) runMover(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.moveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		case <-s.moveCh:
		}
		s.movePass(ctx)
	}
}

// movePass refills first, then spills, until neither has work.
func (s *Scheduler) movePass(ctx context.Context) {
	if time.Now().Before(s.ioRetryAt) {
		return
	}
	for range maxPassBatches {
		select {
		case <-s.stopCh:
			return
		default:
		}
		moved, err := s.refill(ctx)
		if err == nil && !moved {
			moved, err = s.spill(ctx)
		}
		if err != nil {
			s.ioFailed(err)
			return
		}
		if !moved {
			return
		}
	}
	// More work remains; come back without waiting for the tick.
	s.kickMover()
}

// ioFailed degrades the window and backs off further store I/O.
func (s *Scheduler) ioFailed(err error) {
	s.ioFails++
	delay := s.ioBackoff.Delay(s.ioFails)
	s.ioRetryAt = time.Now().Add(delay)

	s.mu.Lock()
	wasDown := s.storeDown
	s.storeDown = true
	s.promote()
	s.cond.Broadcast()
	s.mu.Unlock()

	if !wasDown {
		s.logger.Error("persistence store unavailable, window unbounded until it recovers",
			slog.String("error", err.Error()),
		)
	}
	s.logger.Debug("mover backing off",
		slog.Int("failures", s.ioFails),
		slog.Duration("delay", delay),
	)
}

// ioOK clears the degraded state. Caller holds mu.
func (s *Scheduler) ioOK() {
	if s.storeDown {
		s.logger.Info("persistence store recovered")
	}
	s.storeDown = false
	s.ioFails = 0
	s.ioRetryAt = time.Time{}
}

// refill loads the top stored records into the window tails.
func (s *Scheduler) refill(ctx context.Context) (bool, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	if s.storeDown {
		// Probe with a load only when there is room under the usual bound.
		s.storeDown = false
		ok := s.needsRefill()
		s.storeDown = true
		if !ok {
			s.mu.Unlock()
			return false, nil
		}
	} else if !s.needsRefill() {
		s.mu.Unlock()
		return false, nil
	}
	n := min(s.batch, s.maxKept-s.window.Len())
	if n <= 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.loading = n
	s.mu.Unlock()

	msgs, err := s.store.FetchTopMessages(ctx, n)
	if err == nil && len(msgs) > 0 {
		ids := make([]id.MessageID, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		err = s.store.RemoveMessages(ctx, ids)
	}

	s.mu.Lock()
	s.loading = 0
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	for _, m := range msgs {
		p, ok := s.storedIDs[m.ID]
		if !ok {
			p = m.Priority
		} else {
			s.unstore(m.ID, p)
		}
		m.Priority = p
		m.State = message.StateInWindow
		_ = s.window.Push(m) //nolint:errcheck // lane validated at recovery
	}
	s.ioOK()
	s.promote()
	s.cond.Broadcast()
	// A short batch with records still counted as stored means the store
	// lost some of them.
	short := len(msgs) < n && s.storedN > 0
	s.mu.Unlock()

	if short {
		s.reconcile(ctx)
	}
	if len(msgs) == 0 {
		return false, nil
	}
	s.logger.Debug("loaded batch", slog.Int("count", len(msgs)))
	s.extensions.EmitBatchLoaded(ctx, len(msgs))
	return true, nil
}

// reconcile drops the bookkeeping of stored records the store no longer
// holds, so lanes are not held back waiting for them. Caller holds ioMu.
func (s *Scheduler) reconcile(ctx context.Context) {
	keys, err := s.store.MessageKeys(ctx)
	if err != nil {
		s.logger.Warn("cannot reconcile stored messages", slog.String("error", err.Error()))
		return
	}
	present := make(map[id.MessageID]struct{}, len(keys))
	for _, k := range keys {
		present[k.ID] = struct{}{}
	}

	s.mu.Lock()
	var lost []id.MessageID
	for mID, p := range s.storedIDs {
		if _, ok := present[mID]; !ok {
			s.unstore(mID, p)
			lost = append(lost, mID)
		}
	}
	if len(lost) > 0 {
		s.promote()
		s.cond.Broadcast()
	}
	s.mu.Unlock()

	for _, mID := range lost {
		s.logger.Warn("stored message vanished from the store",
			slog.String("message_id", mID.String()),
		)
	}
}

// taken records where a spilled record came from, for rollback.
type taken struct {
	msg      *message.Message
	fromRing bool
}

// spill moves a batch from memory to the store. The batch counts as stored
// while the append runs and is put back in place if it fails.
func (s *Scheduler) spill(ctx context.Context) (bool, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	if !s.storeDown && !s.needsSpill() {
		s.mu.Unlock()
		return false, nil
	}
	if s.storeDown && s.window.Len()+s.ring.Len() <= s.maxKept {
		s.mu.Unlock()
		return false, nil
	}
	batch := s.pickSpill()
	if len(batch) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	msgs := make([]*message.Message, len(batch))
	for i, t := range batch {
		t.msg.State = message.StateQueued
		msgs[i] = t.msg
		s.storedIDs[t.msg.ID] = t.msg.Priority
		s.stored[t.msg.Priority]++
		s.storedN++
	}
	s.mu.Unlock()

	err := s.store.AppendMessages(ctx, msgs)

	s.mu.Lock()
	if err != nil {
		s.rollback(batch)
		s.cond.Broadcast()
		s.mu.Unlock()
		return false, err
	}
	s.ioOK()
	s.promote()
	s.cond.Broadcast()
	s.mu.Unlock()

	s.logger.Debug("spilled batch", slog.Int("count", len(msgs)))
	s.extensions.EmitBatchSpilled(ctx, len(msgs))
	return true, nil
}

// pickSpill detaches up to one batch. Ring heads of the highest lanes go
// first since they are not dispatchable yet; window tails of the highest
// lanes follow. When a full window blocks the most urgent lane, window
// tails go first to make room for it. Caller holds mu.
func (s *Scheduler) pickSpill() []taken {
	over := s.window.Len() + s.ring.Len() - s.maxKept
	blocked := !s.storeDown && s.blocked()
	k := min(s.batch, over)
	if blocked {
		k = s.batch
	}
	if k <= 0 {
		return nil
	}

	floor := -1
	if blocked {
		floor = s.lowestOutstanding()
	}
	batch := make([]taken, 0, k)
	fromRing := func() {
		for p := s.levels - 1; p >= 0 && len(batch) < k; p-- {
			for s.ring.LaneLen(p) > 0 && len(batch) < k {
				batch = append(batch, taken{msg: s.ring.PopFront(p), fromRing: true})
			}
		}
	}
	fromWindow := func() {
		for p := s.levels - 1; p > floor && len(batch) < k; p-- {
			for s.window.LaneLen(p) > 0 && len(batch) < k {
				batch = append(batch, taken{msg: s.window.PopBack(p)})
			}
		}
	}
	if blocked {
		fromWindow()
		if over > 0 {
			fromRing()
		}
	} else {
		fromRing()
		fromWindow()
	}
	return batch
}

// rollback restores a failed batch: ring heads back to the front, window
// tails back to the end. Caller holds mu.
func (s *Scheduler) rollback(batch []taken) {
	for i := len(batch) - 1; i >= 0; i-- {
		t := batch[i]
		s.unstore(t.msg.ID, t.msg.Priority)
		if t.fromRing {
			t.msg.State = message.StateQueued
			_ = s.ring.PushFront(t.msg) //nolint:errcheck // lane taken from ring
		} else {
			t.msg.State = message.StateInWindow
			_ = s.window.Push(t.msg) //nolint:errcheck // lane taken from window
		}
	}
}
