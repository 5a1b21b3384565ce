// Package scheduler is the priority mail scheduler: it accepts messages into
// a priority ring, keeps a bounded window of dispatchable records in memory,
// moves overflow to a persistence store in batches and hands window records
// to the transport with retry and dead lettering.
//
// Records are always in exactly one of the ring, the window or the store
// while they wait. Within a priority lane the window holds the oldest
// records, the store the middle and the ring the newest, so dispatch order
// is priority first and enqueue order within a priority, across restarts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/backoff"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/ext"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/middleware"
	"github.com/xraph/postmaster/ring"
	"github.com/xraph/postmaster/transport"
)

// Compile-time check.
var _ dlq.Enqueuer = (*Scheduler)(nil)

type runState int

const (
	stateNew runState = iota
	stateRunning
	stateStopped
)

// Scheduler owns every queued record until it is delivered, dead lettered
// or withdrawn.
type Scheduler struct {
	levels       int
	minKept      int
	maxKept      int
	batch        int
	concurrency  int
	maxAttempts  int
	moveInterval time.Duration

	store      message.Store
	dlq        *dlq.Service
	transport  transport.Transport
	extensions *ext.Registry
	backoff    backoff.Strategy
	ioBackoff  backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger

	// mu guards everything below up to ioMu.
	mu        sync.Mutex
	cond      *sync.Cond
	ring      *ring.Ring
	window    *ring.Ring
	stored    []int
	storedIDs map[id.MessageID]int
	storedN   int
	loading   int
	inflight  map[id.MessageID]*message.Message
	retries   *delayQueue
	seq       uint64
	state     runState
	storeDown bool

	// ioMu serializes store mutations: mover batches, withdrawals and the
	// shutdown flush.
	ioMu      sync.Mutex
	ioFails   int
	ioRetryAt time.Time

	moveCh  chan struct{}
	retryCh chan struct{}
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStore sets the overflow store. Without one the window is unbounded
// and nothing survives a restart.
func WithStore(s message.Store) Option {
	return func(sc *Scheduler) { sc.store = s }
}

// WithDLQ sets the dead letter service that receives failed messages.
func WithDLQ(svc *dlq.Service) Option {
	return func(sc *Scheduler) { sc.dlq = svc }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) Option {
	return func(sc *Scheduler) { sc.extensions = r }
}

// WithBackoff overrides the retry delay strategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(sc *Scheduler) { sc.backoff = b }
}

// WithMiddleware wraps every transport call. The first middleware is the
// outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(sc *Scheduler) { sc.mw = middleware.Chain(mws...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sc *Scheduler) { sc.logger = l }
}

// New creates a scheduler for cfg delivering through tr. The configuration
// must be resolved and enabled.
func New(cfg postmaster.Config, tr transport.Transport, opts ...Option) (*Scheduler, error) {
	if cfg.Mode() == postmaster.ModeDisabled {
		return nil, postmaster.ErrDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errors.New("postmaster/scheduler: transport is required")
	}

	s := &Scheduler{
		levels:       cfg.PriorityLevels,
		concurrency:  cfg.Dispatch.Concurrency,
		maxAttempts:  cfg.Dispatch.MaxAttempts,
		moveInterval: cfg.Dispatch.MoveInterval,
		transport:    tr,
		backoff:      backoff.Default(cfg.Dispatch.BackoffInitial, cfg.Dispatch.BackoffMax),
		mw:           middleware.Chain(),
		logger:       slog.Default(),
		ring:         ring.New(cfg.PriorityLevels),
		window:       ring.New(cfg.PriorityLevels),
		stored:       make([]int, cfg.PriorityLevels),
		storedIDs:    make(map[id.MessageID]int),
		inflight:     make(map[id.MessageID]*message.Message),
		retries:      newDelayQueue(),
		moveCh:       make(chan struct{}, 1),
		retryCh:      make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
	if p := cfg.Persistence; p != nil {
		s.minKept = p.MinKeptInMemory
		s.maxKept = p.MaxKeptInMemory
		s.batch = p.DesiredBatchSize
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	if s.moveInterval <= 0 {
		s.moveInterval = 100 * time.Millisecond
	}
	if s.store != nil && cfg.Persistence == nil {
		return nil, fmt.Errorf("%w: a store needs 'persistence' window bounds", postmaster.ErrInvalidConfiguration)
	}
	s.ioBackoff = backoff.NewExponential(s.moveInterval, 30*time.Second)
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Persistent reports whether the scheduler spills to a store.
func (s *Scheduler) Persistent() bool { return s.store != nil }

// Start rebuilds bookkeeping from the store and launches the mover, the
// retry timer and the dispatch workers. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateNew {
		st := s.state
		s.mu.Unlock()
		if st == stateRunning {
			return nil
		}
		return postmaster.ErrSchedulerStopped
	}
	s.mu.Unlock()

	if err := s.recover(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.state = stateRunning
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("scheduler starting",
		slog.Int("priority_levels", s.levels),
		slog.Int("concurrency", s.concurrency),
		slog.Bool("persistent", s.Persistent()),
		slog.Int("stored", s.storedN),
	)

	if s.store != nil {
		s.wg.Add(1)
		go s.runMover(runCtx)
		s.kickMover()
	}
	s.wg.Add(1)
	go s.runRetries()
	for range s.concurrency {
		s.wg.Add(1)
		go s.runWorker(runCtx)
	}
	return nil
}

// recover scans the store keys to rebuild per-lane counts and resume the
// sequence after the highest stored one.
func (s *Scheduler) recover(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	keys, err := s.store.MessageKeys(ctx)
	if err != nil {
		return fmt.Errorf("postmaster/scheduler: recover: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k.Priority < 0 || k.Priority >= s.levels {
			return fmt.Errorf("%w: stored message %s has priority %d, review 'priorityLevels'",
				postmaster.ErrInvalidConfiguration, k.ID, k.Priority)
		}
		s.stored[k.Priority]++
		s.storedIDs[k.ID] = k.Priority
		s.storedN++
		if k.Seq >= s.seq {
			s.seq = k.Seq + 1
		}
	}
	return nil
}

// Enqueue accepts a message at the given priority.
func (s *Scheduler) Enqueue(ctx context.Context, payload []byte, priority int) (*message.Message, error) {
	if !s.ring.Valid(priority) {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", postmaster.ErrInvalidPriority, priority, s.levels-1)
	}

	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil, postmaster.ErrSchedulerStopped
	}
	m := message.New(payload, priority)
	m.Seq = s.nextSeq()
	_ = s.ring.Push(m) //nolint:errcheck // priority validated above
	s.promote()
	spill := s.needsSpill()
	s.cond.Broadcast()
	snapshot := m.Clone()
	s.mu.Unlock()

	if spill {
		s.kickMover()
	}
	s.extensions.EmitMessageEnqueued(ctx, snapshot)
	return snapshot, nil
}

func (s *Scheduler) nextSeq() uint64 {
	n := s.seq
	s.seq++
	return n
}

// Withdraw removes a waiting message. A message currently being sent
// cannot be withdrawn.
func (s *Scheduler) Withdraw(ctx context.Context, msgID id.MessageID) error {
	for {
		s.mu.Lock()
		if s.state == stateStopped {
			s.mu.Unlock()
			return postmaster.ErrSchedulerStopped
		}
		if m, err := s.withdrawMemory(msgID); m != nil || err != nil {
			s.mu.Unlock()
			if err != nil {
				return err
			}
			s.extensions.EmitMessageWithdrawn(ctx, m)
			return nil
		}
		_, inStore := s.storedIDs[msgID]
		s.mu.Unlock()
		if !inStore {
			return postmaster.ErrMessageNotFound
		}

		done, err := s.withdrawStored(ctx, msgID)
		if err != nil {
			return err
		}
		if done != nil {
			s.extensions.EmitMessageWithdrawn(ctx, done)
			return nil
		}
		// Loaded into the window meanwhile; look again.
	}
}

// withdrawMemory must be called with mu held.
func (s *Scheduler) withdrawMemory(msgID id.MessageID) (*message.Message, error) {
	if _, ok := s.inflight[msgID]; ok {
		return nil, postmaster.ErrMessageInFlight
	}
	for p := range s.levels {
		if m, ok := s.window.Remove(p, msgID); ok {
			m.State = message.StateWithdrawn
			s.promote()
			return m.Clone(), nil
		}
		if m, ok := s.ring.Remove(p, msgID); ok {
			m.State = message.StateWithdrawn
			return m.Clone(), nil
		}
	}
	if m, ok := s.retries.remove(msgID); ok {
		m.State = message.StateWithdrawn
		return m.Clone(), nil
	}
	return nil, nil
}

// withdrawStored removes a stored record under the I/O lock. It returns nil
// without error when the record left the store before the lock was taken.
func (s *Scheduler) withdrawStored(ctx context.Context, msgID id.MessageID) (*message.Message, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	p, ok := s.storedIDs[msgID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	if err := s.store.RemoveMessages(ctx, []id.MessageID{msgID}); err != nil {
		return nil, fmt.Errorf("postmaster/scheduler: withdraw %s: %w", msgID, err)
	}

	s.mu.Lock()
	s.unstore(msgID, p)
	s.promote()
	s.cond.Broadcast()
	s.mu.Unlock()

	return &message.Message{ID: msgID, Priority: p, State: message.StateWithdrawn}, nil
}

// unstore drops a record from the store bookkeeping. Caller holds mu.
func (s *Scheduler) unstore(msgID id.MessageID, p int) {
	delete(s.storedIDs, msgID)
	s.stored[p]--
	s.storedN--
}

// LaneStats describes one priority lane.
type LaneStats struct {
	Priority int `json:"priority"`
	Ring     int `json:"ring"`
	Window   int `json:"window"`
	Stored   int `json:"stored"`
}

// Stats is a point-in-time view of where records are.
type Stats struct {
	Ring     int         `json:"ring"`
	Window   int         `json:"window"`
	Stored   int         `json:"stored"`
	InFlight int         `json:"in_flight"`
	Retrying int         `json:"retrying"`
	Degraded bool        `json:"degraded"`
	Lanes    []LaneStats `json:"lanes"`
}

// Outstanding is the number of records waiting in the ring, the window or
// the store.
func (st Stats) Outstanding() int { return st.Ring + st.Window + st.Stored }

// Stats returns current counts. Records of a batch being spilled count as
// stored.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Ring:     s.ring.Len(),
		Window:   s.window.Len(),
		Stored:   s.storedN,
		InFlight: len(s.inflight),
		Retrying: s.retries.Len(),
		Degraded: s.storeDown,
	}
	for p := range s.levels {
		if s.ring.LaneLen(p)+s.window.LaneLen(p)+s.stored[p] == 0 {
			continue
		}
		st.Lanes = append(st.Lanes, LaneStats{
			Priority: p,
			Ring:     s.ring.LaneLen(p),
			Window:   s.window.LaneLen(p),
			Stored:   s.stored[p],
		})
	}
	return st
}

// Stop stops accepting messages, waits for in-flight sends and, when a
// store is configured, spills every record still in memory so that a
// restart resumes in the same order. If ctx ends first, in-flight sends are
// cancelled and become retries before the flush.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.state = stateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = stateStopped
	s.cond.Broadcast()
	s.mu.Unlock()

	s.logger.Info("scheduler stopping")
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out, cancelling in-flight sends")
		s.cancel()
		<-done
	}
	s.cancel()

	err := s.flush(ctx)
	s.extensions.EmitShutdown(ctx)
	if err == nil {
		s.logger.Info("scheduler stopped gracefully")
	}
	return err
}

// flushAttempts bounds the appends of a shutdown flush whose context has
// no deadline.
const flushAttempts = 5

// flush spills ring, window and pending retries to the store in batches.
// A failed batch is retried with the store backoff until ctx ends; the
// appends themselves are not cancelled by ctx.
func (s *Scheduler) flush(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	var pending []*message.Message
	pending = append(pending, s.window.Drain()...)
	pending = append(pending, s.ring.Drain()...)
	for _, m := range s.retries.drain() {
		m.Seq = s.nextSeq()
		pending = append(pending, m)
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if s.store == nil {
		s.logger.Warn("discarding in-memory messages on shutdown without persistence",
			slog.Int("count", len(pending)),
		)
		return nil
	}

	size := max(s.batch, 1)
	for start := 0; start < len(pending); start += size {
		chunk := pending[start:min(start+size, len(pending))]
		for _, m := range chunk {
			m.State = message.StateQueued
		}
		if err := s.appendRetrying(ctx, chunk); err != nil {
			s.logger.Error("shutdown flush failed",
				slog.Int("flushed", start),
				slog.Int("lost", len(pending)-start),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("postmaster/scheduler: flush %d of %d: %w", len(pending)-start, len(pending), err)
		}
		s.extensions.EmitBatchSpilled(context.WithoutCancel(ctx), len(chunk))
	}
	s.logger.Info("flushed in-memory messages", slog.Int("count", len(pending)))
	return nil
}

// appendRetrying appends one flush batch, backing off between failures.
func (s *Scheduler) appendRetrying(ctx context.Context, chunk []*message.Message) error {
	storeCtx := context.WithoutCancel(ctx)
	_, bounded := ctx.Deadline()
	for attempt := 1; ; attempt++ {
		err := s.store.AppendMessages(storeCtx, chunk)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || (!bounded && attempt >= flushAttempts) {
			return err
		}
		delay := s.ioBackoff.Delay(attempt)
		s.logger.Warn("shutdown flush batch failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// kickMover wakes the mover without blocking.
func (s *Scheduler) kickMover() {
	if s.store == nil {
		return
	}
	select {
	case s.moveCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) kickRetries() {
	select {
	case s.retryCh <- struct{}{}:
	default:
	}
}
