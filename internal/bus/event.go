package bus

import "time"

// Event kinds published by the sync engine. Subscribers filter by prefix,
// e.g. "conversation." or "message.".
const (
	KindConversationUpdated = "conversation.updated"
	KindConversationWarning = "conversation.warning"
	KindConversationOpened  = "conversation.opened"
	KindConversationClosed  = "conversation.closed"
	KindConnectivityChanged = "connectivity.changed"
	KindMessagePending      = "message.pending"
	KindMessageSendAck      = "message.send_ack"
	KindMessageSendFailed   = "message.send_failed"
	KindMessageRejected     = "message.rejected"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
