package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscriber receives session updates through a single-slot mailbox. A new
// update replaces one that has not been read yet, so a slow reader only ever
// sees the most recent state and never holds up the session.
type Subscriber struct {
	mu      sync.Mutex
	pending *Update
	closed  bool
	err     error

	notify chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64

	remove func(*Subscriber)
}

func newSubscriber(remove func(*Subscriber)) *Subscriber {
	return &Subscriber{
		notify: make(chan struct{}, 1),
		remove: remove,
	}
}

func (s *Subscriber) offer(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		s.dropped.Add(1)
	}
	s.pending = &u
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next waits for the next update. Once the session ends it returns the
// reason, after any update still in the mailbox has been read.
func (s *Subscriber) Next(ctx context.Context) (Update, error) {
	for {
		s.mu.Lock()
		if s.pending != nil {
			u := *s.pending
			s.pending = nil
			s.mu.Unlock()
			s.delivered.Add(1)
			return u, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			return Update{}, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Update{}, ctx.Err()
		}
	}
}

func (s *Subscriber) close(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close detaches the subscriber from its session.
func (s *Subscriber) Close() {
	if s.remove != nil {
		s.remove(s)
	}
	s.close(ErrSessionStopped)
}

// Delivered returns how many updates were read.
func (s *Subscriber) Delivered() uint64 { return s.delivered.Load() }

// Dropped returns how many updates were replaced before being read.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// fanout is the set of subscribers of one session.
type fanout struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
	err    error
}

func newFanout() *fanout {
	return &fanout{subs: make(map[*Subscriber]struct{})}
}

func (f *fanout) subscribe(initial Update) *Subscriber {
	s := newSubscriber(f.remove)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		s.close(f.err)
		return s
	}
	f.subs[s] = struct{}{}
	s.offer(initial)
	return s
}

func (f *fanout) remove(s *Subscriber) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

func (f *fanout) publish(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs {
		s.offer(u)
	}
}

func (f *fanout) close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	for s := range f.subs {
		s.close(err)
	}
	clear(f.subs)
}

func (f *fanout) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
