package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/remote"
)

var _ remote.Store = (*Store)(nil)

func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func next(t *testing.T, sub *remote.Subscription) remote.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.Snapshots():
		return snap
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return remote.Snapshot{}
}

func TestSubscribeDeliversInitialAndAppends(t *testing.T) {
	s := New(WithClock(stepClock(time.Unix(0, 0))))
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "room")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	if snap := next(t, sub); len(snap.Messages) != 0 {
		t.Fatalf("initial snapshot = %v, want empty", snap.Messages.IDs())
	}

	author := chat.Author{ID: "u1", DisplayName: "Ann"}
	first, err := s.Append(ctx, "room", chat.NewDraft(author, "one", nil))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if snap := next(t, sub); len(snap.Messages) != 1 {
		t.Fatalf("after first append got %d messages", len(snap.Messages))
	}
	second, err := s.Append(ctx, "room", chat.NewDraft(author, "two", nil))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	snap := next(t, sub)
	if len(snap.Messages) != 2 || snap.Messages[0].ID != second.ID || snap.Messages[1].ID != first.ID {
		t.Errorf("snapshot = %v, want [%s %s]", snap.Messages.IDs(), second.ID, first.ID)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Error("server clock should stamp later appends later")
	}
}

func TestCancelReleasesWatcher(t *testing.T) {
	s := New()
	sub, err := s.Subscribe(context.Background(), "room")
	if err != nil {
		t.Fatal(err)
	}
	if _, active, _ := s.Stats(); active != 1 {
		t.Fatalf("active = %d, want 1", active)
	}
	sub.Cancel()
	opened, active, _ := s.Stats()
	if opened != 1 || active != 0 {
		t.Errorf("opened=%d active=%d, want 1 and 0", opened, active)
	}
}

func TestFailTerminatesSubscription(t *testing.T) {
	s := New()
	sub, err := s.Subscribe(context.Background(), "room")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	next(t, sub)

	boom := errors.New("network down")
	s.Fail(boom)

	if snap := next(t, sub); !errors.Is(snap.Err, boom) {
		t.Errorf("snapshot err = %v, want %v", snap.Err, boom)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Ping() = %v, want %v", err, boom)
	}
	if _, err := s.Append(context.Background(), "room", chat.NewDraft(chat.Author{ID: "u"}, "x", nil)); !errors.Is(err, boom) {
		t.Errorf("Append() = %v, want %v", err, boom)
	}
	if _, err := s.Subscribe(context.Background(), "room"); !errors.Is(err, boom) {
		t.Errorf("Subscribe() = %v, want %v", err, boom)
	}

	s.Fail(nil)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() after clearing fault = %v", err)
	}
}

func TestClosed(t *testing.T) {
	s := New()
	_ = s.Close()
	if _, err := s.Subscribe(context.Background(), "room"); !errors.Is(err, remote.ErrClosed) {
		t.Errorf("Subscribe() = %v, want ErrClosed", err)
	}
}
