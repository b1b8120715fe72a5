package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/chatsync/internal/chat"
)

// ErrWriterClosed is returned by Load after Close.
var ErrWriterClosed = errors.New("cache writer closed")

// Writer serializes cache access for one conversation. Saves are queued and
// coalesced: while a write is in flight only the latest queued list is kept.
type Writer struct {
	cache          Cache
	conversationID string
	onWrite        func(error)

	ioMu  sync.Mutex
	loads sync.WaitGroup

	mu         sync.Mutex
	cond       *sync.Cond
	pending    chat.List
	hasPending bool
	inflight   chat.List
	hasFlight  bool
	running    bool
	closed     bool
}

// NewWriter creates a writer. onWrite, if non-nil, is called after every
// backend write with its result.
func NewWriter(c Cache, conversationID string, onWrite func(error)) *Writer {
	w := &Writer{
		cache:          c,
		conversationID: conversationID,
		onWrite:        onWrite,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Save queues l for writing and returns immediately.
func (w *Writer) Save(l chat.List) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.pending = l
	w.hasPending = true
	if !w.running {
		w.running = true
		go w.drain()
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if !w.hasPending {
			w.running = false
			w.cond.Broadcast()
			w.mu.Unlock()
			return
		}
		l := w.pending
		w.pending, w.hasPending = nil, false
		w.inflight, w.hasFlight = l, true
		w.mu.Unlock()

		w.ioMu.Lock()
		err := w.cache.Save(context.Background(), w.conversationID, l)
		w.ioMu.Unlock()

		w.mu.Lock()
		w.inflight, w.hasFlight = nil, false
		w.mu.Unlock()
		if w.onWrite != nil {
			w.onWrite(err)
		}
	}
}

// Load returns the newest list known to the writer: a queued value, then an
// in-flight value, then the backend.
func (w *Writer) Load(ctx context.Context) (chat.List, bool, error) {
	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return nil, false, ErrWriterClosed
	case w.hasPending:
		l := w.pending
		w.mu.Unlock()
		return l, true, nil
	case w.hasFlight:
		l := w.inflight
		w.mu.Unlock()
		return l, true, nil
	}
	w.loads.Add(1)
	w.mu.Unlock()
	defer w.loads.Done()

	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	return w.cache.Load(ctx, w.conversationID)
}

// Close stops accepting saves and waits for queued ones to be written. No
// backend I/O happens after Close returns.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	for w.running {
		w.cond.Wait()
	}
	w.mu.Unlock()
	w.loads.Wait()
}
