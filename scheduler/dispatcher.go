package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/transport"
)

// runWorker hands window records to the transport until stop.
func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		m, ok := s.next()
		if !ok {
			return
		}
		s.deliver(ctx, m)
	}
}

// next blocks until a record can be handed off or the scheduler stops.
func (s *Scheduler) next() (*message.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.state != stateRunning {
			return nil, false
		}
		m, wantMove := s.take()
		if wantMove {
			s.kickMover()
		}
		if m != nil {
			return m, true
		}
		s.cond.Wait()
	}
}

// deliver runs one attempt through the middleware chain and settles the
// outcome.
func (s *Scheduler) deliver(ctx context.Context, m *message.Message) {
	snapshot := m.Clone()
	s.extensions.EmitMessageDispatched(ctx, snapshot)

	start := time.Now()
	err := s.mw(ctx, snapshot, func(ctx context.Context) error {
		return s.transport.Send(ctx, snapshot)
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.delivered(ctx, m, elapsed)
	case transport.IsPermanent(err) || m.Attempts >= s.maxAttempts:
		s.failed(ctx, m, err)
	default:
		s.retry(ctx, m, err)
	}
}

func (s *Scheduler) delivered(ctx context.Context, m *message.Message, elapsed time.Duration) {
	s.mu.Lock()
	delete(s.inflight, m.ID)
	m.State = message.StateDelivered
	m.LastError = ""
	s.mu.Unlock()

	s.logger.Debug("message delivered",
		slog.String("message_id", m.ID.String()),
		slog.Int("attempts", m.Attempts),
	)
	s.extensions.EmitMessageDelivered(ctx, m.Clone(), elapsed)
}

// retry parks m in the delay queue; it re-enters the ring with a new
// sequence number once its backoff expires.
func (s *Scheduler) retry(ctx context.Context, m *message.Message, sendErr error) {
	delay := s.backoff.Delay(m.Attempts)
	retryAt := time.Now().Add(delay)

	s.mu.Lock()
	delete(s.inflight, m.ID)
	m.State = message.StateRetrying
	m.LastError = sendErr.Error()
	s.retries.push(m, retryAt)
	snapshot := m.Clone()
	s.mu.Unlock()
	s.kickRetries()

	s.logger.Info("message scheduled for retry",
		slog.String("message_id", m.ID.String()),
		slog.Int("attempt", m.Attempts),
		slog.Int("max_attempts", s.maxAttempts),
		slog.Duration("delay", delay),
	)
	s.extensions.EmitMessageRetrying(ctx, snapshot, sendErr, retryAt)
}

// failed moves m to the dead letter queue.
func (s *Scheduler) failed(ctx context.Context, m *message.Message, sendErr error) {
	if !transport.IsPermanent(sendErr) {
		sendErr = fmt.Errorf("%w: %w", postmaster.ErrMaxAttemptsReached, sendErr)
	}

	s.mu.Lock()
	delete(s.inflight, m.ID)
	m.State = message.StateFailed
	m.LastError = sendErr.Error()
	snapshot := m.Clone()
	s.mu.Unlock()

	if s.dlq != nil {
		if _, err := s.dlq.Push(context.WithoutCancel(ctx), snapshot, sendErr); err != nil {
			s.logger.Error("failed to push message to DLQ",
				slog.String("message_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	} else {
		s.logger.Error("no dead letter queue configured, failed message kept only in hooks",
			slog.String("message_id", m.ID.String()),
		)
	}

	s.logger.Warn("message failed",
		slog.String("message_id", m.ID.String()),
		slog.Int("attempts", m.Attempts),
		slog.String("error", sendErr.Error()),
	)
	s.extensions.EmitMessageFailed(ctx, snapshot, fmt.Errorf("%w: %w", postmaster.ErrDeliveryFailed, sendErr))
}

// runRetries moves expired retries back into the ring until stop. Retries
// still waiting at stop stay in the delay queue for the shutdown flush.
func (s *Scheduler) runRetries() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		ready := s.retries.popReady(time.Now())
		for _, m := range ready {
			m.Seq = s.nextSeq()
			m.State = message.StateQueued
			_ = s.ring.Push(m) //nolint:errcheck // priority unchanged since enqueue
		}
		spill := false
		if len(ready) > 0 {
			s.promote()
			spill = s.needsSpill()
			s.cond.Broadcast()
		}
		wait := time.Hour
		if at, ok := s.retries.next(); ok {
			wait = max(time.Until(at), 0)
		}
		s.mu.Unlock()

		if spill {
			s.kickMover()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stopCh:
			return
		case <-s.retryCh:
		case <-timer.C:
		}
	}
}
