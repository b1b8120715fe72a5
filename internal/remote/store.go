// Package remote defines the contract with the authoritative message store.
package remote

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/chat"
)

// ErrClosed is returned by stores that have been shut down.
var ErrClosed = errors.New("remote store closed")

// Store is an append-only, timestamp-ordered message store with live queries.
type Store interface {
	// Subscribe opens a live query over a conversation, newest first.
	Subscribe(ctx context.Context, conversationID string) (*Subscription, error)
	// Append stores one message. The store assigns the ID and CreatedAt.
	Append(ctx context.Context, conversationID string, d chat.Draft) (chat.Message, error)
	// Ping checks reachability.
	Ping(ctx context.Context) error
}
