package connectivity

import (
	"sync"
)

// Source delivers connectivity readings to one consumer.
type Source interface {
	// Subscribe returns a channel of readings and a function that releases it.
	Subscribe() (<-chan State, func())
}

// Feed fans readings out to every subscriber. Each subscriber sees only the
// latest unread reading; older unread readings are replaced.
type Feed struct {
	tracker *Tracker

	mu     sync.Mutex
	nextID int
	subs   map[int]chan State
}

// NewFeed creates a feed on top of a tracker.
func NewFeed(t *Tracker) *Feed {
	return &Feed{
		tracker: t,
		subs:    make(map[int]chan State),
	}
}

// Current returns the trusted state.
func (f *Feed) Current() State {
	return f.tracker.Current()
}

// Set applies a reading and notifies subscribers when the state changed.
func (f *Feed) Set(reading State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, changed := f.tracker.Set(reading)
	if !changed {
		return false
	}
	for _, ch := range f.subs {
		offer(ch, c.To)
	}
	return true
}

// Subscribe registers a consumer. A consumer joining after the first real
// reading is primed with the current state.
func (f *Feed) Subscribe() (<-chan State, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan State, 1)
	if cur := f.tracker.Current(); cur != Unknown {
		ch <- cur
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// offer replaces any unread value in ch with s. Callers hold the feed lock,
// so ch has a single writer.
func offer(ch chan State, s State) {
	select {
	case <-ch:
	default:
	}
	ch <- s
}
