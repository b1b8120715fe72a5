package remote

import (
	"context"
	"sync"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Snapshot is one complete materialization of a live query. A non-nil Err is
// terminal: no further snapshots follow it.
type Snapshot struct {
	Messages chat.List
	Err      error
}

// Subscription is a handle to one live query. Snapshots that the consumer has
// not read yet are replaced by newer ones.
type Subscription struct {
	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

// NewSubscription starts run on its own goroutine. run calls push for every
// snapshot and must return once ctx is cancelled; push reports false when the
// subscription has been cancelled.
func NewSubscription(ctx context.Context, run func(ctx context.Context, push func(Snapshot) bool)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		ch:     make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		run(ctx, s.push)
	}()
	return s
}

// Snapshots returns the delivery channel. It is never closed; stop reading
// after Cancel or after a snapshot carrying an error.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.ch
}

func (s *Subscription) push(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	return true
}

// Cancel stops the producer and waits for it to exit. Nothing is observable on
// Snapshots after Cancel returns. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		<-s.done
		select {
		case <-s.ch:
		default:
		}
	})
}
