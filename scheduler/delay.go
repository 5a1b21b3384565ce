package scheduler

import (
	"container/heap"
	"time"

	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
)

// delayed is a message waiting out its retry backoff.
type delayed struct {
	msg     *message.Message
	readyAt time.Time
	idx     int
}

// delayHeap orders delayed messages by readyAt, earliest first. Ties keep
// insertion order through the message sequence.
type delayHeap []*delayed

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	if h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].msg.Seq < h[j].msg.Seq
	}
	return h[i].readyAt.Before(h[j].readyAt)
}

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *delayHeap) Push(x any) {
	d := x.(*delayed)
	d.idx = len(*h)
	*h = append(*h, d)
}

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	d.idx = -1
	*h = old[:n-1]
	return d
}

// delayQueue is a min-heap of retries with lookup by message ID.
type delayQueue struct {
	h    delayHeap
	byID map[id.MessageID]*delayed
}

func newDelayQueue() *delayQueue {
	return &delayQueue{byID: make(map[id.MessageID]*delayed)}
}

func (q *delayQueue) Len() int { return q.h.Len() }

func (q *delayQueue) push(m *message.Message, readyAt time.Time) {
	d := &delayed{msg: m, readyAt: readyAt}
	heap.Push(&q.h, d)
	q.byID[m.ID] = d
}

// next returns the earliest ready time, or false when empty.
func (q *delayQueue) next() (time.Time, bool) {
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].readyAt, true
}

// popReady removes and returns every message ready at now.
func (q *delayQueue) popReady(now time.Time) []*message.Message {
	var out []*message.Message
	for len(q.h) > 0 && !q.h[0].readyAt.After(now) {
		d := heap.Pop(&q.h).(*delayed)
		delete(q.byID, d.msg.ID)
		out = append(out, d.msg)
	}
	return out
}

// remove deletes the message with the given ID.
func (q *delayQueue) remove(msgID id.MessageID) (*message.Message, bool) {
	d, ok := q.byID[msgID]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.h, d.idx)
	delete(q.byID, msgID)
	return d.msg, true
}

// drain removes everything in readyAt order.
func (q *delayQueue) drain() []*message.Message {
	out := make([]*message.Message, 0, len(q.h))
	for len(q.h) > 0 {
		d := heap.Pop(&q.h).(*delayed)
		out = append(out, d.msg)
	}
	clear(q.byID)
	return out
}
