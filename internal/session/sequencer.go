package session

import (
	"container/heap"
	"time"
)

const (
	classGesture = iota
	classControl
)

type pendingEvent struct {
	seq     uint64
	class   int
	arrival uint64
	at      time.Time
	ev      event
}

type pendingHeap []pendingEvent

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].seq != h[j].seq {
		return h[i].seq < h[j].seq
	}
	if h[i].class != h[j].class {
		return h[i].class < h[j].class
	}
	return h[i].arrival < h[j].arrival
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(pendingEvent)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = pendingEvent{}
	*h = old[:n-1]
	return it
}

// sequencer is the reorder buffer for sequenced events. Gesture events are
// released strictly in frame sequence; a stamped control is released once
// the gesture of its frame has been released. Gaps in the sequence are given
// up on when the oldest pending event has waited too long, or, with a
// positive window, when more than window events are waiting.
type sequencer struct {
	window int
	delay  time.Duration

	applied  uint64
	h        pendingHeap
	gestures map[uint64]struct{}
	arrivals uint64
	skipped  uint64
}

func newSequencer(window int, delay time.Duration) *sequencer {
	return &sequencer{
		window:   window,
		delay:    delay,
		gestures: make(map[uint64]struct{}),
	}
}

// push adds a sequenced event. It returns false for gesture events whose
// frame has already been released or is already pending.
func (s *sequencer) push(seq uint64, class int, ev event, now time.Time) bool {
	if class == classGesture {
		if seq <= s.applied {
			return false
		}
		if _, dup := s.gestures[seq]; dup {
			return false
		}
		s.gestures[seq] = struct{}{}
	}
	s.arrivals++
	heap.Push(&s.h, pendingEvent{seq: seq, class: class, arrival: s.arrivals, at: now, ev: ev})
	return true
}

// next returns the next releasable event.
func (s *sequencer) next(now time.Time) (event, bool) {
	for s.h.Len() > 0 {
		top := s.h[0]
		if (top.class == classControl && top.seq <= s.applied) ||
			(top.class == classGesture && top.seq == s.applied+1) {
			heap.Pop(&s.h)
			if top.class == classGesture {
				s.applied = top.seq
				delete(s.gestures, top.seq)
			}
			return top.ev, true
		}
		if !s.overdue(now) {
			return event{}, false
		}

		// Give up on the missing sequence numbers below top.
		if top.class == classGesture {
			s.applied = top.seq - 1
		} else {
			s.applied = top.seq
		}
		s.skipped++
	}
	return event{}, false
}

func (s *sequencer) overdue(now time.Time) bool {
	if s.window > 0 && s.h.Len() > s.window {
		return true
	}
	if s.delay < 0 {
		return false
	}
	oldest := s.h[0].at
	for _, p := range s.h[1:] {
		if p.at.Before(oldest) {
			oldest = p.at
		}
	}
	return now.Sub(oldest) >= s.delay
}

// drain removes every pending event.
func (s *sequencer) drain() []event {
	out := make([]event, 0, s.h.Len())
	for _, p := range s.h {
		out = append(out, p.ev)
	}
	s.h = nil
	clear(s.gestures)
	return out
}

func (s *sequencer) pending() int { return s.h.Len() }
