package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/connectivity"
	"go.uber.org/zap"
)

// mockAppender records calls and returns configurable results.
type mockAppender struct {
	mu    sync.Mutex
	calls []chat.Draft
	err   error
}

func (m *mockAppender) Append(_ context.Context, conv string, d chat.Draft) (chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, d)
	if m.err != nil {
		return chat.Message{}, m.err
	}
	return chat.Message{ID: "server-" + d.ClientID, Text: d.Text, CreatedAt: time.Unix(100, 0), Author: d.Author}, nil
}

func (m *mockAppender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type fixedStatus connectivity.State

func (s fixedStatus) Connectivity() connectivity.State { return connectivity.State(s) }

var author = chat.Author{ID: "u1", DisplayName: "Ann"}

func TestSubmitOnlineAppendsOnce(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	app := &mockAppender{}
	logger, _ := zap.NewDevelopment()
	g := NewGate("room", fixedStatus(connectivity.Online), app, b, logger, nil)

	d := chat.NewDraft(author, "hi", nil)
	r, err := g.Submit(context.Background(), d)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if app.count() != 1 {
		t.Fatalf("append calls = %d, want 1", app.count())
	}
	if r.ClientID != d.ClientID || r.Message.ID != "server-"+d.ClientID {
		t.Errorf("receipt = %+v", r)
	}

	select {
	case evt := <-ch:
		p := evt.Payload.(map[string]string)
		if p["client_msg_id"] != d.ClientID || p["server_msg_id"] != r.Message.ID {
			t.Errorf("ack payload = %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.send_ack")
	}
}

func TestSubmitPublishesPlaceholderBeforeAck(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	g := NewGate("room", fixedStatus(connectivity.Online), &mockAppender{}, b, nil, nil)
	d := chat.NewDraft(author, "hi", nil)
	if _, err := g.Submit(context.Background(), d); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
			if p, ok := evt.Payload.(Pending); ok {
				if p.ConversationID != "room" || p.ClientID != d.ClientID || p.Message.ID != "local-"+d.ClientID || p.Message.Text != "hi" {
					t.Errorf("pending payload = %+v", p)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout, events so far %v", kinds)
		}
	}
	if kinds[0] != bus.KindMessagePending || kinds[1] != bus.KindMessageSendAck {
		t.Errorf("events = %v, want pending then ack", kinds)
	}
}

func TestSubmitRejectedWhenNotOnline(t *testing.T) {
	for _, state := range []connectivity.State{connectivity.Offline, connectivity.Unknown} {
		t.Run(string(state), func(t *testing.T) {
			b := bus.New()
			ch, unsub := b.Subscribe("message.rejected", 10)
			defer unsub()

			app := &mockAppender{}
			g := NewGate("room", fixedStatus(state), app, b, nil, nil)

			_, err := g.Submit(context.Background(), chat.NewDraft(author, "hi", nil))
			if !errors.Is(err, ErrNotConnected) {
				t.Fatalf("Submit() error = %v, want ErrNotConnected", err)
			}
			if app.count() != 0 {
				t.Errorf("append calls = %d, want 0", app.count())
			}
			select {
			case <-ch:
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for message.rejected")
			}
		})
	}
}

func TestSubmitAppendFailure(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	boom := errors.New("permission denied")
	app := &mockAppender{err: boom}
	g := NewGate("room", fixedStatus(connectivity.Online), app, b, nil, nil)

	d := chat.NewDraft(author, "hi", nil)
	_, err := g.Submit(context.Background(), d)

	var af *AppendFailedError
	if !errors.As(err, &af) {
		t.Fatalf("Submit() error = %v, want *AppendFailedError", err)
	}
	if af.ClientID != d.ClientID || !errors.Is(err, boom) {
		t.Errorf("error = %+v", af)
	}
	if app.count() != 1 {
		t.Errorf("append calls = %d, want exactly 1 (no retry)", app.count())
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.send_failed")
	}
}

func TestSubmitInvalidDraft(t *testing.T) {
	app := &mockAppender{}
	g := NewGate("room", fixedStatus(connectivity.Online), app, nil, nil, nil)

	_, err := g.Submit(context.Background(), chat.Draft{Author: author})
	if !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("Submit() error = %v, want ErrInvalidDraft", err)
	}
	if app.count() != 0 {
		t.Errorf("append calls = %d, want 0", app.count())
	}
}

func TestSubmitAssignsClientID(t *testing.T) {
	app := &mockAppender{}
	g := NewGate("room", fixedStatus(connectivity.Online), app, nil, nil, nil)

	r, err := g.Submit(context.Background(), chat.Draft{Author: author, Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if r.ClientID == "" {
		t.Error("Submit did not assign a client id")
	}
}
