// Package memstore is an in-process remote.Store used in tests and in the
// daemon's single-process mode.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/remote"
)

type conversation struct {
	messages chat.List
	watchers map[int]chan struct{}
}

// Store keeps conversations in memory.
type Store struct {
	now func() time.Time

	mu      sync.Mutex
	convs   map[string]*conversation
	nextID  int
	fault   error
	closed  bool
	opened  int
	active  int
	appends int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the server clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		convs: make(map[string]*conversation),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) conv(id string) *conversation {
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{watchers: make(map[int]chan struct{})}
		s.convs[id] = c
	}
	return c
}

// Subscribe opens a live query. The first snapshot is delivered immediately.
func (s *Store) Subscribe(ctx context.Context, conversationID string) (*remote.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, remote.ErrClosed
	}
	if s.fault != nil {
		err := s.fault
		s.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", conversationID, err)
	}
	c := s.conv(conversationID)
	id := s.nextID
	s.nextID++
	notify := make(chan struct{}, 1)
	notify <- struct{}{}
	c.watchers[id] = notify
	s.opened++
	s.active++
	s.mu.Unlock()

	return remote.NewSubscription(ctx, func(ctx context.Context, push func(remote.Snapshot) bool) {
		defer func() {
			s.mu.Lock()
			delete(c.watchers, id)
			s.active--
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
			}
			s.mu.Lock()
			snap := remote.Snapshot{Messages: c.messages.Normalize(), Err: s.fault}
			s.mu.Unlock()
			if snap.Err != nil {
				snap.Messages = nil
				push(snap)
				return
			}
			if !push(snap) {
				return
			}
		}
	}), nil
}

// Append stores a message stamped with the server clock.
func (s *Store) Append(ctx context.Context, conversationID string, d chat.Draft) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return chat.Message{}, remote.ErrClosed
	}
	if s.fault != nil {
		return chat.Message{}, fmt.Errorf("append to %s: %w", conversationID, s.fault)
	}
	m := chat.Message{
		ID:         uuid.NewString(),
		Text:       d.Text,
		CreatedAt:  s.now().UTC(),
		Author:     d.Author,
		Attachment: d.Attachment,
	}
	c := s.conv(conversationID)
	c.messages = append(chat.List{m}, c.messages...)
	s.appends++
	s.notifyLocked(c)
	return m, nil
}

// Ping fails while a fault is injected or after Close.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.ErrClosed
	}
	return s.fault
}

// Seed replaces a conversation's contents and notifies live queries.
func (s *Store) Seed(conversationID string, msgs chat.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conv(conversationID)
	c.messages = msgs.Normalize()
	s.notifyLocked(c)
}

// Fail injects err into every operation. Live queries terminate with err.
// Fail(nil) clears the fault.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
	if err == nil {
		return
	}
	for _, c := range s.convs {
		s.notifyLocked(c)
	}
}

// Close shuts the store down. Live queries keep running until cancelled.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Stats reports how many live queries were opened, how many are still active,
// and how many appends succeeded.
func (s *Store) Stats() (opened, active, appends int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.active, s.appends
}

func (s *Store) notifyLocked(c *conversation) {
	for _, w := range c.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
