// Package redisstore implements remote.Store on Redis streams. Each
// conversation is one stream; entry IDs are assigned by the server and their
// millisecond part is the message's CreatedAt.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// Block bounds each XREAD wait.
	Block time.Duration
}

// Store is a Redis-streams-backed remote store.
type Store struct {
	client *redis.Client
	prefix string
	block  time.Duration
	logger *zap.Logger
}

// New creates a store. It does not contact the server.
func New(cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		ContextTimeoutEnabled: true,
	})
	return NewWithClient(client, cfg.Prefix, cfg.Block, logger)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, block time.Duration, logger *zap.Logger) *Store {
	if prefix == "" {
		prefix = "chatsync"
	}
	if block <= 0 {
		block = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, block: block, logger: logger}
}

func (s *Store) key(conversationID string) string {
	return fmt.Sprintf("%s:conv:%s", s.prefix, conversationID)
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Append adds an entry with a server-assigned ID.
func (s *Store) Append(ctx context.Context, conversationID string, d chat.Draft) (chat.Message, error) {
	values := encodeDraft(d)
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key(conversationID),
		ID:     "*",
		Values: values,
	}).Result()
	if err != nil {
		return chat.Message{}, fmt.Errorf("xadd %s: %w", conversationID, err)
	}
	return decodeEntry(redis.XMessage{ID: id, Values: values})
}

// Subscribe emits the full stream, newest first, whenever new entries appear.
func (s *Store) Subscribe(ctx context.Context, conversationID string) (*remote.Subscription, error) {
	key := s.key(conversationID)
	return remote.NewSubscription(ctx, func(ctx context.Context, push func(remote.Snapshot) bool) {
		msgs, err := s.list(ctx, key)
		if err != nil {
			if ctx.Err() == nil {
				push(remote.Snapshot{Err: fmt.Errorf("subscribe %s: %w", conversationID, err)})
			}
			return
		}
		last := "0-0"
		if len(msgs) > 0 {
			last = msgs[0].ID
		}
		if !push(remote.Snapshot{Messages: msgs}) {
			return
		}
		for {
			res, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, last},
				Count:   1,
				Block:   s.block,
			}).Result()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				push(remote.Snapshot{Err: fmt.Errorf("xread %s: %w", conversationID, err)})
				return
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}

			msgs, err := s.list(ctx, key)
			if err != nil {
				if ctx.Err() == nil {
					push(remote.Snapshot{Err: err})
				}
				return
			}
			if len(msgs) > 0 {
				last = msgs[0].ID
			}
			if !push(remote.Snapshot{Messages: msgs}) {
				return
			}
		}
	}), nil
}

func (s *Store) list(ctx context.Context, key string) (chat.List, error) {
	entries, err := s.client.XRevRange(ctx, key, "+", "-").Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}
	out := make(chat.List, 0, len(entries))
	for _, e := range entries {
		m, err := decodeEntry(e)
		if err != nil {
			s.logger.Warn("skipping malformed stream entry", zap.String("key", key), zap.String("id", e.ID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func encodeDraft(d chat.Draft) map[string]any {
	v := map[string]any{
		"client_id":   d.ClientID,
		"author_id":   d.Author.ID,
		"author_name": d.Author.DisplayName,
		"text":        d.Text,
	}
	if a := d.Attachment; a != nil {
		switch a.Kind {
		case chat.AttachmentImage:
			v["image"] = a.URL
		case chat.AttachmentLocation:
			v["lat"] = strconv.FormatFloat(a.Latitude, 'f', -1, 64)
			v["lng"] = strconv.FormatFloat(a.Longitude, 'f', -1, 64)
		}
	}
	return v
}

func decodeEntry(e redis.XMessage) (chat.Message, error) {
	createdAt, err := entryTime(e.ID)
	if err != nil {
		return chat.Message{}, err
	}
	m := chat.Message{
		ID:        e.ID,
		Text:      field(e.Values, "text"),
		CreatedAt: createdAt,
		Author: chat.Author{
			ID:          field(e.Values, "author_id"),
			DisplayName: field(e.Values, "author_name"),
		},
	}
	if img := field(e.Values, "image"); img != "" {
		m.Attachment = chat.Image(img)
		return m, nil
	}
	if lat, lng := field(e.Values, "lat"), field(e.Values, "lng"); lat != "" && lng != "" {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return chat.Message{}, fmt.Errorf("parse lat: %w", err)
		}
		lo, err := strconv.ParseFloat(lng, 64)
		if err != nil {
			return chat.Message{}, fmt.Errorf("parse lng: %w", err)
		}
		m.Attachment = chat.Location(la, lo)
	}
	return m, nil
}

// entryTime extracts the millisecond timestamp from a stream entry ID.
func entryTime(id string) (time.Time, error) {
	ms, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("malformed stream id %q", id)
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	return time.UnixMilli(n).UTC(), nil
}

func field(values map[string]any, k string) string {
	switch v := values[k].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
