package connectivity

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State is a trusted connectivity reading.
type State string

const (
	Unknown State = "UNKNOWN"
	Online  State = "ONLINE"
	Offline State = "OFFLINE"
)

// Parse converts a user-supplied string into a State.
func Parse(s string) (State, error) {
	switch State(strings.ToUpper(strings.TrimSpace(s))) {
	case Unknown:
		return Unknown, nil
	case Online:
		return Online, nil
	case Offline:
		return Offline, nil
	}
	return Unknown, fmt.Errorf("unknown connectivity state %q", s)
}

// validTransitions defines which readings change the trusted state.
// Unknown is only ever the initial value.
var validTransitions = map[State][]State{
	Unknown: {Online, Offline},
	Online:  {Offline},
	Offline: {Online},
}

// Next returns the state that results from applying reading to current and
// whether it differs. Duplicates and late Unknown readings are no-ops.
func Next(current, reading State) (State, bool) {
	if !slices.Contains(validTransitions[current], reading) {
		return current, false
	}
	return reading, true
}

// Change is the payload for connectivity.changed events.
type Change struct {
	From State
	To   State
}

// Tracker holds the process-wide trusted connectivity state.
type Tracker struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewTracker creates a tracker starting in Unknown.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{current: Unknown, bus: b}
}

// Current returns the current state.
func (t *Tracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Set applies a reading. It returns the change and true when the trusted
// state moved.
func (t *Tracker) Set(reading State) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	to, ok := Next(t.current, reading)
	if !ok {
		return Change{}, false
	}
	c := Change{From: t.current, To: to}
	t.current = to
	t.bus.Publish(bus.NewEvent(bus.KindConnectivityChanged, c))
	return c, true
}
