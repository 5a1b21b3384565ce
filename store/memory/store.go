// Package memory provides a fully in-memory implementation of store.Store.
// It is safe for concurrent access and intended for unit testing and
// development. Fault injection lets tests simulate an unreachable backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// Ensure Store implements the subsystem stores at compile time.
// We can't import store here (import cycle in tests), so we verify each
// subsystem.
var (
	_ message.Store = (*Store)(nil)
	_ dlq.Store     = (*Store)(nil)
)

// Op names a message store operation for fault injection.
type Op string

const (
	OpAppend Op = "append"
	OpFetch  Op = "fetch"
	OpRemove Op = "remove"
	OpCount  Op = "count"
	OpKeys   Op = "keys"
)

// FaultFunc decides whether an operation fails. A non-nil error aborts the
// operation before it has any effect.
type FaultFunc func(op Op) error

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex

	// messages is kept sorted by message.Key.
	messages []*message.Message
	index    map[id.MessageID]struct{}
	dlqs     map[string]*dlq.Entry

	fault FaultFunc
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		index: make(map[id.MessageID]struct{}),
		dlqs:  make(map[string]*dlq.Entry),
	}
}

// SetFault installs a fault injector. Pass nil to clear it.
func (m *Store) SetFault(fn FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

// Unavailable returns a FaultFunc that fails every operation.
func Unavailable() FaultFunc {
	return func(op Op) error {
		return fmt.Errorf("postmaster/memory: %s: %w", op, postmaster.ErrPersistenceUnavailable)
	}
}

func (m *Store) check(op Op) error {
	if m.fault == nil {
		return nil
	}
	return m.fault(op)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only when a fault is installed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(OpCount)
}

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Message Store
// ──────────────────────────────────────────────────

// AppendMessages stores copies of msgs. The batch is rejected as a whole
// when any ID is already present.
func (m *Store) AppendMessages(_ context.Context, msgs []*message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpAppend); err != nil {
		return err
	}
	for _, msg := range msgs {
		if _, exists := m.index[msg.ID]; exists {
			return fmt.Errorf("postmaster/memory: append %s: %w", msg.ID, postmaster.ErrMessageExists)
		}
	}
	for _, msg := range msgs {
		m.messages = append(m.messages, msg.Clone())
		m.index[msg.ID] = struct{}{}
	}
	sort.SliceStable(m.messages, func(i, k int) bool {
		return m.messages[i].Key().Less(m.messages[k].Key())
	})
	return nil
}

// FetchTopMessages returns copies of the first n records in key order.
func (m *Store) FetchTopMessages(_ context.Context, n int) ([]*message.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(OpFetch); err != nil {
		return nil, err
	}
	if n > len(m.messages) {
		n = len(m.messages)
	}
	out := make([]*message.Message, 0, n)
	for _, msg := range m.messages[:n] {
		out = append(out, msg.Clone())
	}
	return out, nil
}

// RemoveMessages deletes the given records.
func (m *Store) RemoveMessages(_ context.Context, ids []id.MessageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpRemove); err != nil {
		return err
	}
	drop := make(map[id.MessageID]struct{}, len(ids))
	for _, msgID := range ids {
		if _, ok := m.index[msgID]; ok {
			drop[msgID] = struct{}{}
			delete(m.index, msgID)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if _, ok := drop[msg.ID]; !ok {
			kept = append(kept, msg)
		}
	}
	clear(m.messages[len(kept):])
	m.messages = kept
	return nil
}

// CountMessages returns the number of stored records.
func (m *Store) CountMessages(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(OpCount); err != nil {
		return 0, err
	}
	return int64(len(m.messages)), nil
}

// MessageKeys returns every stored key in order.
func (m *Store) MessageKeys(_ context.Context) ([]message.Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(OpKeys); err != nil {
		return nil, err
	}
	keys := make([]message.Key, len(m.messages))
	for i, msg := range m.messages {
		keys[i] = msg.Key()
	}
	return keys, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed message entry.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries newest first.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.After(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// GetDLQ retrieves an entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, postmaster.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks an entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return postmaster.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the number of entries.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}
