package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/remote"
	"github.com/redis/go-redis/v9"
)

var _ remote.Store = (*Store)(nil)

func TestEntryTime(t *testing.T) {
	got, err := entryTime("1700000000123-4")
	if err != nil {
		t.Fatalf("entryTime() error = %v", err)
	}
	if want := time.UnixMilli(1700000000123).UTC(); !got.Equal(want) {
		t.Errorf("entryTime() = %v, want %v", got, want)
	}
	for _, bad := range []string{"", "abc", "x-1"} {
		if _, err := entryTime(bad); err == nil {
			t.Errorf("entryTime(%q) should fail", bad)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	author := chat.Author{ID: "u1", DisplayName: "Ann"}
	tests := []struct {
		name  string
		draft chat.Draft
	}{
		{"text", chat.NewDraft(author, "hello", nil)},
		{"image", chat.NewDraft(author, "", chat.Image("https://cdn/x.png"))},
		{"location", chat.NewDraft(author, "here", chat.Location(-33.92, 18.42))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := decodeEntry(redis.XMessage{ID: "1000-0", Values: encodeDraft(tt.draft)})
			if err != nil {
				t.Fatalf("decodeEntry() error = %v", err)
			}
			want := chat.Message{
				ID:         "1000-0",
				Text:       tt.draft.Text,
				CreatedAt:  time.UnixMilli(1000).UTC(),
				Author:     author,
				Attachment: tt.draft.Attachment,
			}
			if !m.Equal(want) {
				t.Errorf("decoded = %+v, want %+v", m, want)
			}
		})
	}
}

func TestKeyPrefix(t *testing.T) {
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0, nil)
	defer s.Close()
	if got := s.key("room"); got != "chatsync:conv:room" {
		t.Errorf("key = %q", got)
	}
	if s.block != time.Second {
		t.Errorf("block = %v, want 1s default", s.block)
	}
}

func TestSubscribeReportsUnreachableServerAsSnapshot(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	s := NewWithClient(client, "", 0, nil)
	defer s.Close()

	sub, err := s.Subscribe(context.Background(), "room")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	select {
	case snap := <-sub.Snapshots():
		if snap.Err == nil {
			t.Fatalf("snapshot = %+v, want error", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot from unreachable server")
	}
}
