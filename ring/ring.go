// Package ring implements the priority ring: one FIFO lane per priority
// level, drained lowest level first.
//
// A Ring is not safe for concurrent use; the scheduler guards it with its
// own lock.
package ring

import (
	"fmt"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// Ring holds messages in per-priority FIFO lanes.
type Ring struct {
	lanes []lane
	size  int
}

// New creates a ring with the given number of priority levels.
func New(levels int) *Ring {
	if levels <= 0 {
		panic(fmt.Sprintf("ring: invalid level count %d", levels))
	}
	return &Ring{lanes: make([]lane, levels)}
}

// Levels returns the number of priority levels.
func (r *Ring) Levels() int { return len(r.lanes) }

// Len returns the number of messages across all lanes.
func (r *Ring) Len() int { return r.size }

// LaneLen returns the number of messages in lane p.
func (r *Ring) LaneLen(p int) int { return r.lanes[p].len() }

// Valid reports whether p names a lane of r.
func (r *Ring) Valid(p int) bool { return p >= 0 && p < len(r.lanes) }

// Push appends m to the tail of its priority lane.
func (r *Ring) Push(m *message.Message) error {
	if !r.Valid(m.Priority) {
		return fmt.Errorf("%w: %d not in [0, %d]", postmaster.ErrInvalidPriority, m.Priority, len(r.lanes)-1)
	}
	r.lanes[m.Priority].pushBack(m)
	r.size++
	return nil
}

// PushFront puts m back at the head of its lane.
func (r *Ring) PushFront(m *message.Message) error {
	if !r.Valid(m.Priority) {
		return fmt.Errorf("%w: %d not in [0, %d]", postmaster.ErrInvalidPriority, m.Priority, len(r.lanes)-1)
	}
	r.lanes[m.Priority].pushFront(m)
	r.size++
	return nil
}

// Lowest returns the lowest non-empty lane index, or -1 when r is empty.
func (r *Ring) Lowest() int {
	for p := range r.lanes {
		if r.lanes[p].len() > 0 {
			return p
		}
	}
	return -1
}

// Highest returns the highest non-empty lane index, or -1 when r is empty.
func (r *Ring) Highest() int {
	for p := len(r.lanes) - 1; p >= 0; p-- {
		if r.lanes[p].len() > 0 {
			return p
		}
	}
	return -1
}

// Peek returns the head of the lowest non-empty lane without removing it.
func (r *Ring) Peek() *message.Message {
	p := r.Lowest()
	if p < 0 {
		return nil
	}
	return r.lanes[p].front()
}

// Pop removes and returns the head of the lowest non-empty lane.
func (r *Ring) Pop() *message.Message {
	p := r.Lowest()
	if p < 0 {
		return nil
	}
	return r.PopFront(p)
}

// PeekFront returns the head of lane p, or nil.
func (r *Ring) PeekFront(p int) *message.Message { return r.lanes[p].front() }

// PopFront removes and returns the head of lane p, or nil.
func (r *Ring) PopFront(p int) *message.Message {
	m := r.lanes[p].popFront()
	if m != nil {
		r.size--
	}
	return m
}

// PopBack removes and returns the tail of lane p, or nil.
func (r *Ring) PopBack(p int) *message.Message {
	m := r.lanes[p].popBack()
	if m != nil {
		r.size--
	}
	return m
}

// Remove deletes the message with the given ID from lane p.
func (r *Ring) Remove(p int, msgID id.MessageID) (*message.Message, bool) {
	if !r.Valid(p) {
		return nil, false
	}
	m, ok := r.lanes[p].remove(msgID)
	if ok {
		r.size--
	}
	return m, ok
}

// Drain removes every message and returns them in dispatch order.
func (r *Ring) Drain() []*message.Message {
	out := make([]*message.Message, 0, r.size)
	for p := range r.lanes {
		for m := r.lanes[p].popFront(); m != nil; m = r.lanes[p].popFront() {
			out = append(out, m)
		}
	}
	r.size = 0
	return out
}

// Snapshot returns the messages in dispatch order without removing them.
func (r *Ring) Snapshot() []*message.Message {
	out := make([]*message.Message, 0, r.size)
	for p := range r.lanes {
		out = append(out, r.lanes[p].items[r.lanes[p].head:]...)
	}
	return out
}

// lane is a FIFO backed by a slice. Popped slots at the front are
// reclaimed once they make up half of the backing array.
type lane struct {
	items []*message.Message
	head  int
}

func (l *lane) len() int { return len(l.items) - l.head }

func (l *lane) front() *message.Message {
	if l.len() == 0 {
		return nil
	}
	return l.items[l.head]
}

func (l *lane) pushBack(m *message.Message) {
	l.items = append(l.items, m)
}

func (l *lane) pushFront(m *message.Message) {
	if l.head > 0 {
		l.head--
		l.items[l.head] = m
		return
	}
	l.items = append(l.items, nil)
	copy(l.items[1:], l.items)
	l.items[0] = m
}

func (l *lane) popFront() *message.Message {
	if l.len() == 0 {
		return nil
	}
	m := l.items[l.head]
	l.items[l.head] = nil
	l.head++
	l.compact()
	return m
}

func (l *lane) popBack() *message.Message {
	if l.len() == 0 {
		return nil
	}
	last := len(l.items) - 1
	m := l.items[last]
	l.items[last] = nil
	l.items = l.items[:last]
	l.compact()
	return m
}

func (l *lane) remove(msgID id.MessageID) (*message.Message, bool) {
	for i := l.head; i < len(l.items); i++ {
		if l.items[i].ID == msgID {
			m := l.items[i]
			copy(l.items[i:], l.items[i+1:])
			l.items[len(l.items)-1] = nil
			l.items = l.items[:len(l.items)-1]
			l.compact()
			return m, true
		}
	}
	return nil, false
}

func (l *lane) compact() {
	if l.len() == 0 {
		l.items = l.items[:0]
		l.head = 0
		return
	}
	if l.head > 16 && l.head*2 >= len(l.items) {
		n := copy(l.items, l.items[l.head:])
		clear(l.items[n:])
		l.items = l.items[:n]
		l.head = 0
	}
}
