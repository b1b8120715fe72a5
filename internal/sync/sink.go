package sync

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/connectivity"
)

// Source tells where a republished list came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// Update is one republished message list. Messages is always a complete
// newest-first snapshot.
type Update struct {
	ConversationID string
	Messages       chat.List
	Source         Source
	Connectivity   connectivity.State
	At             time.Time
}

// WarningKind classifies non-fatal failures.
type WarningKind string

const (
	WarningSubscription WarningKind = "subscription_error"
	WarningCacheRead    WarningKind = "cache_read_error"
	WarningCacheWrite   WarningKind = "cache_write_error"
)

// Warning reports a failure the controller recovered from.
type Warning struct {
	ConversationID string
	Kind           WarningKind
	Err            error
	At             time.Time
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s %s: %v", w.ConversationID, w.Kind, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Sink receives controller output. Warn may be called from goroutines other
// than the one calling Republish; implementations must not block.
type Sink interface {
	Republish(Update)
	Warn(Warning)
}

// BusSink publishes updates and warnings on the event bus.
type BusSink struct {
	Bus *bus.Bus
}

func (s BusSink) Republish(u Update) {
	s.Bus.Publish(bus.NewEvent(bus.KindConversationUpdated, u))
}

func (s BusSink) Warn(w Warning) {
	s.Bus.Publish(bus.NewEvent(bus.KindConversationWarning, w))
}

type nopSink struct{}

func (nopSink) Republish(Update) {}
func (nopSink) Warn(Warning)     {}
