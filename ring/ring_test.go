package ring_test

import (
	"errors"
	"testing"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/message"
	"github.com/xraph/postmaster/ring"
)

func msg(priority int, seq uint64) *message.Message {
	m := message.New([]byte("x"), priority)
	m.Seq = seq
	return m
}

func TestPopOrder(t *testing.T) {
	r := ring.New(3)
	a, b, c := msg(2, 1), msg(0, 2), msg(0, 3)
	for _, m := range []*message.Message{a, b, c} {
		if err := r.Push(m); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	for i, want := range []*message.Message{b, c, a} {
		if got := r.Pop(); got != want {
			t.Fatalf("Pop() #%d = seq %d, want seq %d", i, got.Seq, want.Seq)
		}
	}
	if r.Pop() != nil || r.Peek() != nil {
		t.Error("expected empty ring")
	}
}

func TestPushInvalidPriority(t *testing.T) {
	r := ring.New(3)
	for _, p := range []int{-1, 3, 10} {
		err := r.Push(msg(p, 0))
		if !errors.Is(err, postmaster.ErrInvalidPriority) {
			t.Errorf("Push(priority %d) = %v, want ErrInvalidPriority", p, err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after rejected pushes", r.Len())
	}
}

func TestFrontAndBackOperations(t *testing.T) {
	r := ring.New(2)
	for seq := uint64(1); seq <= 4; seq++ {
		_ = r.Push(msg(1, seq))
	}
	if got := r.PopBack(1); got.Seq != 4 {
		t.Errorf("PopBack = %d, want 4", got.Seq)
	}
	head := r.PopFront(1)
	if head.Seq != 1 {
		t.Errorf("PopFront = %d, want 1", head.Seq)
	}
	_ = r.PushFront(head)
	if got := r.PeekFront(1); got != head {
		t.Errorf("PeekFront after PushFront = %d, want 1", got.Seq)
	}
	if r.LaneLen(1) != 3 || r.Len() != 3 {
		t.Errorf("LaneLen = %d, Len = %d, want 3, 3", r.LaneLen(1), r.Len())
	}
	if r.Lowest() != 1 || r.Highest() != 1 {
		t.Errorf("Lowest = %d, Highest = %d", r.Lowest(), r.Highest())
	}
}

func TestRemove(t *testing.T) {
	r := ring.New(2)
	a, b, c := msg(0, 1), msg(0, 2), msg(1, 3)
	_ = r.Push(a)
	_ = r.Push(b)
	_ = r.Push(c)

	if _, ok := r.Remove(1, b.ID); ok {
		t.Error("Remove found message in the wrong lane")
	}
	got, ok := r.Remove(0, b.ID)
	if !ok || got != b {
		t.Fatalf("Remove(b) = %v, %v", got, ok)
	}
	snap := r.Snapshot()
	if len(snap) != 2 || snap[0] != a || snap[1] != c {
		t.Errorf("Snapshot after remove = %v", snap)
	}
}

func TestFIFOAcrossCompaction(t *testing.T) {
	r := ring.New(1)
	next := uint64(0)
	want := uint64(0)
	for round := 0; round < 50; round++ {
		for i := 0; i < 7; i++ {
			_ = r.Push(msg(0, next))
			next++
		}
		for i := 0; i < 5; i++ {
			m := r.Pop()
			if m.Seq != want {
				t.Fatalf("Pop() = %d, want %d", m.Seq, want)
			}
			want++
		}
	}
	drained := r.Drain()
	for _, m := range drained {
		if m.Seq != want {
			t.Fatalf("Drain yielded %d, want %d", m.Seq, want)
		}
		want++
	}
	if want != next || r.Len() != 0 {
		t.Errorf("drained up to %d of %d, Len = %d", want, next, r.Len())
	}
}
