// Package api implements the daemon's gRPC conversation service.
package api

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/outbox"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ConversationService exposes the sync manager over gRPC.
type ConversationService struct {
	profile   string
	backend   string
	startedAt time.Time
	manager   *intsync.Manager
	feed      *connectivity.Feed
	bus       *bus.Bus

	done     chan struct{}
	doneOnce gosync.Once
}

// NewConversationService creates the service.
func NewConversationService(profile, backend string, m *intsync.Manager, feed *connectivity.Feed, b *bus.Bus) *ConversationService {
	return &ConversationService{
		profile:   profile,
		backend:   backend,
		startedAt: time.Now(),
		manager:   m,
		feed:      feed,
		bus:       b,
		done:      make(chan struct{}),
	}
}

// Shutdown ends every open watch stream.
func (s *ConversationService) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *ConversationService) OpenConversation(_ context.Context, req *OpenConversationRequest) (*ConversationResponse, error) {
	if err := intsync.ValidateConversationID(req.ConversationID); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	v, err := s.manager.Open(req.ConversationID)
	if err != nil {
		return nil, toStatus("open conversation", err)
	}
	return &ConversationResponse{Conversation: viewToWire(v)}, nil
}

func (s *ConversationService) CloseConversation(_ context.Context, req *CloseConversationRequest) (*CloseConversationResponse, error) {
	if err := s.manager.Close(req.ConversationID); err != nil {
		return nil, toStatus("close conversation", err)
	}
	return &CloseConversationResponse{}, nil
}

func (s *ConversationService) GetConversation(_ context.Context, req *GetConversationRequest) (*ConversationResponse, error) {
	v, err := s.manager.Get(req.ConversationID)
	if err != nil {
		return nil, toStatus("get conversation", err)
	}
	return &ConversationResponse{Conversation: viewToWire(v)}, nil
}

func (s *ConversationService) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	d, err := req.draft()
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	r, err := s.manager.Submit(ctx, req.ConversationID, d)
	if err != nil {
		return nil, toStatus("send message", err)
	}
	return &SendMessageResponse{ClientMsgID: r.ClientID, Message: messageToWire(r.Message)}, nil
}

func (s *ConversationService) SetConnectivity(_ context.Context, req *SetConnectivityRequest) (*SetConnectivityResponse, error) {
	state, err := connectivity.Parse(req.State)
	if err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	changed := s.feed.Set(state)
	return &SetConnectivityResponse{State: string(s.feed.Current()), Changed: changed}, nil
}

func (s *ConversationService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	views := s.manager.Conversations()
	resp := &GetStatusResponse{
		Profile:       s.profile,
		Backend:       s.backend,
		Connectivity:  string(s.feed.Current()),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
		Watchers:      s.bus.Subscribers(),
		Conversations: make([]ConversationSummary, 0, len(views)),
	}
	for _, v := range views {
		resp.Conversations = append(resp.Conversations, ConversationSummary{
			ID:           v.ConversationID,
			Connectivity: string(v.Connectivity),
			Source:       string(v.Source),
			Subscribed:   v.Subscribed,
			MessageCount: len(v.Messages),
		})
	}
	return resp, nil
}

// WatchConversation streams bus events. When a conversation is named, the
// stream starts with its current view and carries only its events plus
// connectivity changes.
func (s *ConversationService) WatchConversation(req *WatchConversationRequest, stream grpc.ServerStreamingServer[WatchEvent]) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	if id := req.ConversationID; id != "" {
		v, err := s.manager.Get(id)
		if err != nil {
			return toStatus("watch conversation", err)
		}
		if err := stream.Send(&WatchEvent{
			EventID:          uuid.NewString(),
			Kind:             bus.KindConversationUpdated,
			OccurredAtUnixMs: time.Now().UnixMilli(),
			ConversationID:   id,
			Connectivity:     string(v.Connectivity),
			Source:           string(v.Source),
			Messages:         messagesToWire(v.Messages),
		}); err != nil {
			return err
		}
	}

	for {
		select {
		case evt := <-ch:
			we, ok := eventToWire(evt)
			if !ok {
				continue
			}
			if req.ConversationID != "" && we.ConversationID != "" && we.ConversationID != req.ConversationID {
				continue
			}
			if err := stream.Send(we); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		case <-s.done:
			return nil
		}
	}
}

func eventToWire(evt bus.Event) (*WatchEvent, bool) {
	we := &WatchEvent{
		EventID:          uuid.NewString(),
		Kind:             evt.Kind,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
	}
	switch p := evt.Payload.(type) {
	case intsync.Update:
		we.ConversationID = p.ConversationID
		we.Connectivity = string(p.Connectivity)
		we.Source = string(p.Source)
		we.Messages = messagesToWire(p.Messages)
	case intsync.Warning:
		we.ConversationID = p.ConversationID
		we.WarningKind = string(p.Kind)
		we.Error = p.Err.Error()
	case connectivity.Change:
		we.Connectivity = string(p.To)
	case outbox.Pending:
		we.ConversationID = p.ConversationID
		we.ClientMsgID = p.ClientID
		we.Messages = []Message{messageToWire(p.Message)}
	case map[string]string:
		we.ConversationID = p["conversation_id"]
		we.ClientMsgID = p["client_msg_id"]
		we.ServerMsgID = p["server_msg_id"]
		we.Error = p["error"]
		if reason, ok := p["reason"]; ok {
			we.Error = reason
		}
	default:
		return nil, false
	}
	return we, true
}

// toStatus maps domain errors to gRPC codes.
func toStatus(op string, err error) error {
	var appendErr *outbox.AppendFailedError
	switch {
	case errors.Is(err, intsync.ErrNotOpen):
		return grpcstatus.Errorf(codes.NotFound, "%s: %v", op, err)
	case errors.Is(err, intsync.ErrManagerClosed):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	case errors.Is(err, outbox.ErrNotConnected):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%s: %v", op, err)
	case errors.Is(err, outbox.ErrInvalidDraft):
		return grpcstatus.Errorf(codes.InvalidArgument, "%s: %v", op, err)
	case errors.As(err, &appendErr):
		return grpcstatus.Errorf(codes.Unavailable, "%s: %v", op, err)
	default:
		return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
	}
}
