package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubscriber_LatestWins(t *testing.T) {
	f := newFanout()
	s := f.subscribe(Update{Frame: &Frame{Seq: 1}})

	for seq := uint64(2); seq <= 4; seq++ {
		f.publish(Update{Frame: &Frame{Seq: seq}})
	}

	u, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if u.Frame.Seq != 4 {
		t.Errorf("Next() frame = %d, want 4", u.Frame.Seq)
	}
	if s.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", s.Dropped())
	}
}

func TestSubscriber_NextWaits(t *testing.T) {
	f := newFanout()
	s := f.subscribe(Update{})
	s.Next(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.publish(Update{Frame: &Frame{Seq: 9}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u, err := s.Next(ctx)
	if err != nil || u.Frame.Seq != 9 {
		t.Errorf("Next() = %+v, %v", u.Frame, err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := s.Next(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() with no update error = %v, want deadline exceeded", err)
	}
}

func TestSubscriber_Close(t *testing.T) {
	f := newFanout()
	s := f.subscribe(Update{})
	s.Close()

	if f.len() != 0 {
		t.Errorf("fanout still has %d subscribers", f.len())
	}
	f.publish(Update{Frame: &Frame{Seq: 2}})

	// The initial update is still readable, then the close reason.
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Next() after Close error = %v", err)
	}
}

func TestFanout_SubscribeAfterClose(t *testing.T) {
	f := newFanout()
	f.close(ErrQueueOverflow)

	s := f.subscribe(Update{})
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrQueueOverflow) {
		t.Errorf("Next() error = %v, want ErrQueueOverflow", err)
	}
}
