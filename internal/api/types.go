package api

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	intsync "github.com/matheus3301/chatsync/internal/sync"
)

// Attachment is the wire form of chat.Attachment. Kind is "image" or
// "location".
type Attachment struct {
	Kind      string  `json:"kind"`
	URL       string  `json:"url,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Message is the wire form of chat.Message.
type Message struct {
	ID         string      `json:"id"`
	Text       string      `json:"text,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	AuthorID   string      `json:"author_id"`
	AuthorName string      `json:"author_name,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Conversation is the wire form of a controller view.
type Conversation struct {
	ID           string    `json:"id"`
	Connectivity string    `json:"connectivity"`
	Source       string    `json:"source,omitempty"`
	Subscribed   bool      `json:"subscribed"`
	Messages     []Message `json:"messages"`
}

// ConversationSummary is a view without its messages.
type ConversationSummary struct {
	ID           string `json:"id"`
	Connectivity string `json:"connectivity"`
	Source       string `json:"source,omitempty"`
	Subscribed   bool   `json:"subscribed"`
	MessageCount int    `json:"message_count"`
}

type OpenConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type CloseConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type CloseConversationResponse struct{}

type GetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

type SendMessageRequest struct {
	ConversationID string      `json:"conversation_id"`
	ClientMsgID    string      `json:"client_msg_id,omitempty"`
	AuthorID       string      `json:"author_id"`
	AuthorName     string      `json:"author_name,omitempty"`
	Text           string      `json:"text,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
}

type SendMessageResponse struct {
	ClientMsgID string  `json:"client_msg_id"`
	Message     Message `json:"message"`
}

type SetConnectivityRequest struct {
	State string `json:"state"`
}

type SetConnectivityResponse struct {
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile       string                `json:"profile"`
	Backend       string                `json:"backend"`
	Connectivity  string                `json:"connectivity"`
	UptimeMs      int64                 `json:"uptime_ms"`
	Watchers      int                   `json:"watchers"`
	Conversations []ConversationSummary `json:"conversations"`
}

// WatchConversationRequest selects the events to stream. An empty
// ConversationID streams every conversation.
type WatchConversationRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
}

// WatchEvent is one streamed bus event. Only the fields relevant to Kind are
// set.
type WatchEvent struct {
	EventID          string    `json:"event_id"`
	Kind             string    `json:"kind"`
	OccurredAtUnixMs int64     `json:"occurred_at_unix_ms"`
	ConversationID   string    `json:"conversation_id,omitempty"`
	Connectivity     string    `json:"connectivity,omitempty"`
	Source           string    `json:"source,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	WarningKind      string    `json:"warning_kind,omitempty"`
	ClientMsgID      string    `json:"client_msg_id,omitempty"`
	ServerMsgID      string    `json:"server_msg_id,omitempty"`
	Error            string    `json:"error,omitempty"`
}

func messageToWire(m chat.Message) Message {
	w := Message{
		ID:         m.ID,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.DisplayName,
	}
	if a := m.Attachment; a != nil {
		w.Attachment = &Attachment{Kind: a.Kind.String(), URL: a.URL, Latitude: a.Latitude, Longitude: a.Longitude}
	}
	return w
}

func messagesToWire(l chat.List) []Message {
	out := make([]Message, 0, len(l))
	for _, m := range l {
		out = append(out, messageToWire(m))
	}
	return out
}

func viewToWire(v intsync.View) Conversation {
	return Conversation{
		ID:           v.ConversationID,
		Connectivity: string(v.Connectivity),
		Source:       string(v.Source),
		Subscribed:   v.Subscribed,
		Messages:     messagesToWire(v.Messages),
	}
}

func attachmentFromWire(a *Attachment) (*chat.Attachment, error) {
	if a == nil {
		return nil, nil
	}
	switch a.Kind {
	case "image":
		return chat.Image(a.URL), nil
	case "location":
		return chat.Location(a.Latitude, a.Longitude), nil
	default:
		return nil, fmt.Errorf("unknown attachment kind %q", a.Kind)
	}
}

func (r *SendMessageRequest) draft() (chat.Draft, error) {
	att, err := attachmentFromWire(r.Attachment)
	if err != nil {
		return chat.Draft{}, err
	}
	return chat.Draft{
		ClientID:   r.ClientMsgID,
		Text:       r.Text,
		Author:     chat.Author{ID: r.AuthorID, DisplayName: r.AuthorName},
		Attachment: att,
	}, nil
}
