package scheduler

import "github.com/xraph/postmaster/message"

// Every function in this file must be called with mu held.

// bounded reports whether the window is capped at maxKept. Without a
// store, or while the store is unreachable, the window takes everything.
func (s *Scheduler) bounded() bool {
	return s.store != nil && !s.storeDown
}

// windowFull reports whether the window, counting a batch being loaded,
// has reached its upper bound.
func (s *Scheduler) windowFull() bool {
	return s.bounded() && s.window.Len()+s.loading >= s.maxKept
}

// promote moves ring heads into the window, lowest lane first. A lane with
// stored records is skipped: its ring records are newer than the stored
// ones and must wait for them.
func (s *Scheduler) promote() {
	for p := range s.levels {
		if s.stored[p] > 0 {
			continue
		}
		for s.ring.LaneLen(p) > 0 {
			if s.windowFull() {
				return
			}
			m := s.ring.PopFront(p)
			m.State = message.StateInWindow
			_ = s.window.Push(m) //nolint:errcheck // same lane count as ring
		}
	}
}

// lowestOutstanding returns the lowest lane with a record in the window,
// the store or the ring, or -1.
func (s *Scheduler) lowestOutstanding() int {
	for p := range s.levels {
		if s.window.LaneLen(p)+s.stored[p]+s.ring.LaneLen(p) > 0 {
			return p
		}
	}
	return -1
}

func (s *Scheduler) outstanding() int {
	return s.window.Len() + s.ring.Len() + s.storedN
}

// needsRefill reports whether the mover should load from the store: the
// window is at or below its low watermark, or the most urgent lane only
// has stored records.
func (s *Scheduler) needsRefill() bool {
	if s.storedN == 0 || s.windowFull() {
		return false
	}
	if s.window.Len() <= s.minKept {
		return true
	}
	l := s.lowestOutstanding()
	return l >= 0 && s.window.LaneLen(l) == 0 && s.stored[l] > 0
}

// blocked reports whether the most urgent lane cannot enter the window
// because the window is full of less urgent records.
func (s *Scheduler) blocked() bool {
	if !s.windowFull() {
		return false
	}
	l := s.lowestOutstanding()
	return l >= 0 && s.window.LaneLen(l) == 0
}

// needsSpill reports whether memory holds more than maxKept records or a
// full window blocks the most urgent lane.
func (s *Scheduler) needsSpill() bool {
	if s.store == nil {
		return false
	}
	return s.window.Len()+s.ring.Len() > s.maxKept || s.blocked()
}

// take hands off the next record, or returns nil when dispatch has to wait.
//
// The record is the window head of the lowest outstanding lane. The hand
// off is held back when it would drop the window below minKept while the
// store could still refill it.
func (s *Scheduler) take() (m *message.Message, wantMove bool) {
	s.promote()
	l := s.lowestOutstanding()
	if l < 0 {
		return nil, false
	}
	if s.window.LaneLen(l) == 0 {
		if !s.storeDown {
			return nil, true
		}
		// Degraded: serve the most urgent lane that is in memory.
		l = -1
		for p := range s.levels {
			if s.window.LaneLen(p) > 0 {
				l = p
				break
			}
		}
		if l < 0 {
			return nil, false
		}
	}

	if s.storedN > 0 && !s.storeDown &&
		s.window.Len()-1 < s.minKept &&
		s.outstanding()-1 >= s.minKept &&
		s.window.Len()+s.loading < s.maxKept {
		return nil, true
	}

	m = s.window.PopFront(l)
	m.State = message.StateDispatching
	m.Attempts++
	s.inflight[m.ID] = m
	s.promote()
	return m, s.needsRefill()
}
