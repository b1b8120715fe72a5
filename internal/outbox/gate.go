// Package outbox gates outgoing messages on trusted connectivity.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected rejects a submission made while not Online. Nothing is
	// queued; the caller decides whether to try again.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidDraft wraps draft validation failures.
	ErrInvalidDraft = errors.New("invalid draft")
)

// AppendFailedError reports that the remote store did not accept a draft.
type AppendFailedError struct {
	ClientID string
	Err      error
}

func (e *AppendFailedError) Error() string {
	return fmt.Sprintf("append %s: %v", e.ClientID, e.Err)
}

func (e *AppendFailedError) Unwrap() error { return e.Err }

// Appender is the remote append primitive.
type Appender interface {
	Append(ctx context.Context, conversationID string, d chat.Draft) (chat.Message, error)
}

// Status reports trusted connectivity for a conversation.
type Status interface {
	Connectivity() connectivity.State
}

// Receipt acknowledges a submission. Message carries the server-assigned ID
// and CreatedAt; it becomes visible in the list through a later snapshot.
type Receipt struct {
	ClientID string
	Message  chat.Message
}

// Pending is the payload of a message.pending event: the draft rendered as a
// local placeholder while its append is in flight. It is never written to the
// cache or merged into the conversation list.
type Pending struct {
	ConversationID string
	ClientID       string
	Message        chat.Message
}

// Gate forwards drafts for one conversation to the remote store.
type Gate struct {
	conv     string
	status   Status
	appender Appender
	bus      *bus.Bus
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewGate creates a gate.
func NewGate(conversationID string, status Status, appender Appender, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		conv:     conversationID,
		status:   status,
		appender: appender,
		bus:      b,
		logger:   logger.With(zap.String("conversation", conversationID)),
		metrics:  m,
	}
}

// Submit appends d exactly once if connectivity is Online, otherwise it
// returns ErrNotConnected without touching the remote store. There is no
// retry.
func (g *Gate) Submit(ctx context.Context, d chat.Draft) (Receipt, error) {
	if d.ClientID == "" {
		d.ClientID = uuid.NewString()
	}
	if err := d.Validate(); err != nil {
		g.reject(d, err.Error())
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if state := g.status.Connectivity(); state != connectivity.Online {
		g.reject(d, "connectivity "+string(state))
		return Receipt{}, ErrNotConnected
	}

	g.bus.Publish(bus.NewEvent(bus.KindMessagePending, Pending{
		ConversationID: g.conv,
		ClientID:       d.ClientID,
		Message:        d.Placeholder(time.Now()),
	}))
	msg, err := g.appender.Append(ctx, g.conv, d)
	if err != nil {
		g.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", d.ClientID))
		g.metrics.Submit("failed")
		g.bus.Publish(bus.NewEvent(bus.KindMessageSendFailed, map[string]string{
			"conversation_id": g.conv,
			"client_msg_id":   d.ClientID,
			"error":           err.Error(),
		}))
		return Receipt{}, &AppendFailedError{ClientID: d.ClientID, Err: err}
	}

	g.logger.Info("message sent", zap.String("client_msg_id", d.ClientID), zap.String("server_msg_id", msg.ID))
	g.metrics.Submit("sent")
	g.bus.Publish(bus.NewEvent(bus.KindMessageSendAck, map[string]string{
		"conversation_id": g.conv,
		"client_msg_id":   d.ClientID,
		"server_msg_id":   msg.ID,
	}))
	return Receipt{ClientID: d.ClientID, Message: msg}, nil
}

func (g *Gate) reject(d chat.Draft, reason string) {
	g.logger.Info("message rejected", zap.String("client_msg_id", d.ClientID), zap.String("reason", reason))
	g.metrics.Submit("rejected")
	g.bus.Publish(bus.NewEvent(bus.KindMessageRejected, map[string]string{
		"conversation_id": g.conv,
		"client_msg_id":   d.ClientID,
		"reason":          reason,
	}))
}
