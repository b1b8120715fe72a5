package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/remote/memstore"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
)

type harness struct {
	client ConversationServiceClient
	remote *memstore.Store
	feed   *connectivity.Feed
}

func startServer(t *testing.T) *harness {
	t.Helper()
	// Short path for the Unix socket length limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "d.sock")

	b := bus.New()
	feed := connectivity.NewFeed(connectivity.NewTracker(b))
	remote := memstore.New()
	mgr := intsync.NewManager(intsync.ManagerConfig{
		Remote: remote,
		Cache:  cache.New(cache.NewMemoryStore()),
		Source: feed,
		Bus:    b,
	})
	t.Cleanup(mgr.Shutdown)

	srv := grpc.NewServer()
	RegisterConversationServiceServer(srv, NewConversationService("test", "memory", mgr, feed, b))
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewConversationServiceClient(conn), remote: remote, feed: feed}
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %v (%v), want %v", got, err, code)
	}
}

func waitConversation(t *testing.T, c ConversationServiceClient, id string, cond func(Conversation) bool) Conversation {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := c.GetConversation(context.Background(), &GetConversationRequest{ConversationID: id})
		if err != nil {
			t.Fatalf("GetConversation() error = %v", err)
		}
		if cond(resp.Conversation) {
			return resp.Conversation
		}
		if time.Now().After(deadline) {
			t.Fatalf("conversation %s never matched, last = %+v", id, resp.Conversation)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConversationLifecycle(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	open, err := h.client.OpenConversation(ctx, &OpenConversationRequest{ConversationID: "room"})
	if err != nil {
		t.Fatalf("OpenConversation() error = %v", err)
	}
	if open.Conversation.ID != "room" || open.Conversation.Connectivity != "UNKNOWN" {
		t.Errorf("open = %+v", open.Conversation)
	}

	set, err := h.client.SetConnectivity(ctx, &SetConnectivityRequest{State: "online"})
	if err != nil {
		t.Fatalf("SetConnectivity() error = %v", err)
	}
	if !set.Changed || set.State != "ONLINE" {
		t.Errorf("SetConnectivity() = %+v", set)
	}
	waitConversation(t, h.client, "room", func(c Conversation) bool { return c.Subscribed })

	sent, err := h.client.SendMessage(ctx, &SendMessageRequest{
		ConversationID: "room",
		ClientMsgID:    "c1",
		AuthorID:       "u1",
		Text:           "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if sent.ClientMsgID != "c1" || sent.Message.ID == "" || sent.Message.CreatedAt.IsZero() {
		t.Errorf("SendMessage() = %+v", sent)
	}
	conv := waitConversation(t, h.client, "room", func(c Conversation) bool { return len(c.Messages) == 1 })
	if conv.Messages[0].Text != "hello" || conv.Source != "remote" {
		t.Errorf("conversation = %+v", conv)
	}

	status, err := h.client.GetStatus(ctx, &GetStatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if status.Profile != "test" || status.Connectivity != "ONLINE" || len(status.Conversations) != 1 || status.Conversations[0].MessageCount != 1 {
		t.Errorf("GetStatus() = %+v", status)
	}

	if _, err := h.client.CloseConversation(ctx, &CloseConversationRequest{ConversationID: "room"}); err != nil {
		t.Fatalf("CloseConversation() error = %v", err)
	}
	_, err = h.client.GetConversation(ctx, &GetConversationRequest{ConversationID: "room"})
	wantCode(t, err, codes.NotFound)
}

func TestSendMessageErrors(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	_, err := h.client.SendMessage(ctx, &SendMessageRequest{ConversationID: "nope", AuthorID: "u1", Text: "x"})
	wantCode(t, err, codes.NotFound)

	if _, err := h.client.OpenConversation(ctx, &OpenConversationRequest{ConversationID: "room"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.SetConnectivity(ctx, &SetConnectivityRequest{State: "OFFLINE"}); err != nil {
		t.Fatal(err)
	}
	waitConversation(t, h.client, "room", func(c Conversation) bool { return c.Connectivity == "OFFLINE" })

	_, err = h.client.SendMessage(ctx, &SendMessageRequest{ConversationID: "room", AuthorID: "u1", Text: "hi"})
	wantCode(t, err, codes.FailedPrecondition)
	if _, _, appends := h.remote.Stats(); appends != 0 {
		t.Errorf("appends = %d, want 0", appends)
	}

	_, err = h.client.SendMessage(ctx, &SendMessageRequest{ConversationID: "room", AuthorID: "u1"})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.client.SendMessage(ctx, &SendMessageRequest{
		ConversationID: "room",
		AuthorID:       "u1",
		Attachment:     &Attachment{Kind: "video"},
	})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.client.SetConnectivity(ctx, &SetConnectivityRequest{State: "sideways"})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.client.OpenConversation(ctx, &OpenConversationRequest{})
	wantCode(t, err, codes.InvalidArgument)
}

func TestSendMessageAppendFailure(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	if _, err := h.client.OpenConversation(ctx, &OpenConversationRequest{ConversationID: "room"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.client.SetConnectivity(ctx, &SetConnectivityRequest{State: "ONLINE"}); err != nil {
		t.Fatal(err)
	}
	waitConversation(t, h.client, "room", func(c Conversation) bool { return c.Connectivity == "ONLINE" })

	h.remote.Fail(errors.New("write refused"))
	_, err := h.client.SendMessage(ctx, &SendMessageRequest{ConversationID: "room", AuthorID: "u1", Text: "hi"})
	wantCode(t, err, codes.Unavailable)
}

func TestWatchConversation(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.client.OpenConversation(ctx, &OpenConversationRequest{ConversationID: "room"}); err != nil {
		t.Fatal(err)
	}
	stream, err := h.client.WatchConversation(ctx, &WatchConversationRequest{ConversationID: "room"})
	if err != nil {
		t.Fatalf("WatchConversation() error = %v", err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if first.Kind != bus.KindConversationUpdated || first.ConversationID != "room" {
		t.Errorf("first event = %+v", first)
	}
	status, err := h.client.GetStatus(ctx, &GetStatusRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if status.Watchers != 1 {
		t.Errorf("watchers = %d, want 1", status.Watchers)
	}

	if _, err := h.client.SetConnectivity(ctx, &SetConnectivityRequest{State: "ONLINE"}); err != nil {
		t.Fatal(err)
	}
	waitConversation(t, h.client, "room", func(c Conversation) bool { return c.Subscribed })
	sent, err := h.client.SendMessage(ctx, &SendMessageRequest{ConversationID: "room", AuthorID: "u1", Text: "hey"})
	if err != nil {
		t.Fatal(err)
	}

	pending := false
	for {
		evt, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if evt.Kind == bus.KindMessagePending {
			pending = true
			if evt.ClientMsgID != sent.ClientMsgID || len(evt.Messages) != 1 || evt.Messages[0].ID != "local-"+sent.ClientMsgID {
				t.Errorf("pending = %+v", evt)
			}
		}
		if evt.Kind == bus.KindConversationUpdated && len(evt.Messages) == 1 {
			if evt.Messages[0].Text != "hey" || evt.Source != "remote" {
				t.Errorf("update = %+v", evt)
			}
			if !pending {
				t.Error("no message.pending before the remote update")
			}
			return
		}
	}
}

func TestWatchUnknownConversation(t *testing.T) {
	h := startServer(t)
	stream, err := h.client.WatchConversation(context.Background(), &WatchConversationRequest{ConversationID: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = stream.Recv()
	wantCode(t, err, codes.NotFound)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: x", intsync.ErrNotOpen), codes.NotFound},
		{intsync.ErrManagerClosed, codes.Unavailable},
		{outbox.ErrNotConnected, codes.FailedPrecondition},
		{fmt.Errorf("%w: empty", outbox.ErrInvalidDraft), codes.InvalidArgument},
		{&outbox.AppendFailedError{ClientID: "c", Err: errors.New("boom")}, codes.Unavailable},
		{errors.New("other"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus("op", tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
