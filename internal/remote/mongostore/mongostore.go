// Package mongostore implements remote.Store on a MongoDB collection. Live
// queries use change streams, so the server must run as a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/remote"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Config selects the collection holding messages.
type Config struct {
	URI        string
	Database   string
	Collection string
}

type author struct {
	ID          string `bson:"id"`
	DisplayName string `bson:"display_name,omitempty"`
}

type location struct {
	Latitude  float64 `bson:"lat"`
	Longitude float64 `bson:"lng"`
}

type document struct {
	ID             primitive.ObjectID `bson:"_id"`
	ConversationID string             `bson:"conversation_id"`
	ClientID       string             `bson:"client_id,omitempty"`
	Text           string             `bson:"text,omitempty"`
	CreatedAt      time.Time          `bson:"created_at"`
	Author         author             `bson:"author"`
	Image          string             `bson:"image,omitempty"`
	Location       *location          `bson:"location,omitempty"`
}

func (d document) message() chat.Message {
	m := chat.Message{
		ID:        d.ID.Hex(),
		Text:      d.Text,
		CreatedAt: d.CreatedAt.UTC(),
		Author:    chat.Author{ID: d.Author.ID, DisplayName: d.Author.DisplayName},
	}
	switch {
	case d.Image != "":
		m.Attachment = chat.Image(d.Image)
	case d.Location != nil:
		m.Attachment = chat.Location(d.Location.Latitude, d.Location.Longitude)
	}
	return m
}

// Store is a MongoDB-backed remote store.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// Open connects to MongoDB and ensures the conversation index exists.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conversation_created_idx"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		// Unreachable servers are reported by the connectivity prober.
		logger.Warn("ensure mongo index", zap.Error(err))
	}
	return &Store{client: client, coll: coll, logger: logger}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Append inserts a message. CreatedAt is set by the server with $currentDate.
func (s *Store) Append(ctx context.Context, conversationID string, d chat.Draft) (chat.Message, error) {
	id := primitive.NewObjectID()
	fields := bson.M{
		"conversation_id": conversationID,
		"client_id":       d.ClientID,
		"author":          author{ID: d.Author.ID, DisplayName: d.Author.DisplayName},
	}
	if d.Text != "" {
		fields["text"] = d.Text
	}
	if a := d.Attachment; a != nil {
		switch a.Kind {
		case chat.AttachmentImage:
			fields["image"] = a.URL
		case chat.AttachmentLocation:
			fields["location"] = location{Latitude: a.Latitude, Longitude: a.Longitude}
		}
	}
	update := bson.M{
		"$setOnInsert": fields,
		"$currentDate": bson.M{"created_at": true},
	}
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true)); err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}

	var doc document
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return chat.Message{}, fmt.Errorf("read back message %s: %w", id.Hex(), err)
	}
	return doc.message(), nil
}

// Subscribe watches the collection for changes in one conversation and
// re-reads the full ordered list on every change.
func (s *Store) Subscribe(ctx context.Context, conversationID string) (*remote.Subscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "fullDocument.conversation_id", Value: conversationID}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	return remote.NewSubscription(ctx, func(ctx context.Context, push func(remote.Snapshot) bool) {
		stream, err := s.coll.Watch(ctx, pipeline, opts)
		if err != nil {
			if ctx.Err() == nil {
				push(remote.Snapshot{Err: fmt.Errorf("watch %s: %w", conversationID, err)})
			}
			return
		}
		defer func() { _ = stream.Close(context.Background()) }()

		emit := func() bool {
			msgs, err := s.list(ctx, conversationID)
			if err != nil {
				if ctx.Err() == nil {
					push(remote.Snapshot{Err: err})
				}
				return false
			}
			return push(remote.Snapshot{Messages: msgs})
		}

		if !emit() {
			return
		}
		for stream.Next(ctx) {
			if !emit() {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		err = stream.Err()
		if err == nil {
			err = errors.New("change stream closed")
		}
		push(remote.Snapshot{Err: fmt.Errorf("watch %s: %w", conversationID, err)})
	}), nil
}

func (s *Store) list(ctx context.Context, conversationID string) (chat.List, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var out chat.List
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, doc.message())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
