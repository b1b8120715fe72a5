package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
)

func sample() chat.List {
	return chat.List{
		{
			ID:         "m3",
			CreatedAt:  time.Date(2024, 5, 1, 12, 0, 3, 123456789, time.UTC),
			Author:     chat.Author{ID: "u2", DisplayName: "Bob"},
			Attachment: chat.Location(-33.9249, 18.4241),
		},
		{
			ID:         "m2",
			Text:       "look",
			CreatedAt:  time.Date(2024, 5, 1, 12, 0, 2, 0, time.UTC),
			Author:     chat.Author{ID: "u1", DisplayName: "Ann"},
			Attachment: chat.Image("https://cdn.example/p.png"),
		},
		{
			ID:        "m1",
			Text:      "hello, world",
			CreatedAt: time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC),
			Author:    chat.Author{ID: "u1"},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	in := sample()
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestCodecEmptyList(t *testing.T) {
	out, err := Decode(Encode(nil))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("got %d messages, want 0", len(out))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0xff}); err == nil {
		t.Error("Decode(garbage) should fail")
	}
	if _, err := Decode(nil); err == nil {
		t.Error("Decode(nil) should fail on missing version")
	}
	blob := Encode(sample())
	if _, err := Decode(blob[:len(blob)-3]); err == nil {
		t.Error("Decode(truncated) should fail")
	}
}

func TestBlobCacheLoadSave(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore())

	if _, found, err := c.Load(ctx, "room"); err != nil || found {
		t.Fatalf("Load() on empty = found %v, err %v", found, err)
	}
	if err := c.Save(ctx, "room", sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, found, err := c.Load(ctx, "room")
	if err != nil || !found {
		t.Fatalf("Load() = found %v, err %v", found, err)
	}
	if !got.Equal(sample()) {
		t.Errorf("Load() = %v, want %v", got.IDs(), sample().IDs())
	}
	if _, found, _ := c.Load(ctx, "other"); found {
		t.Error("conversations must not share a key")
	}
}

func TestPebbleStore(t *testing.T) {
	ps, err := OpenPebble(filepath.Join(t.TempDir(), "pebble"), nil)
	if err != nil {
		t.Fatalf("OpenPebble() error = %v", err)
	}
	defer ps.Close()

	ctx := context.Background()
	c := New(ps)
	if _, found, err := c.Load(ctx, "room"); err != nil || found {
		t.Fatalf("Load() on empty = found %v, err %v", found, err)
	}
	if err := c.Save(ctx, "room", sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, found, err := c.Load(ctx, "room")
	if err != nil || !found || !got.Equal(sample()) {
		t.Errorf("Load() = %v, %v, %v", got.IDs(), found, err)
	}
}

// slowStore blocks the first SetBlob until released.
type slowStore struct {
	*MemoryStore
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	writes int
}

func newSlowStore() *slowStore {
	return &slowStore{
		MemoryStore: NewMemoryStore(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *slowStore) SetBlob(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	s.writes++
	first := s.writes == 1
	s.mu.Unlock()
	if first {
		close(s.started)
		<-s.release
	}
	return s.MemoryStore.SetBlob(ctx, key, blob)
}

func TestWriterCoalescesDuringSlowWrite(t *testing.T) {
	store := newSlowStore()
	c := New(store)
	w := NewWriter(c, "room", nil)

	l := sample()
	first, second, third := l[2:], l[1:], l

	w.Save(first)
	<-store.started
	w.Save(second)
	w.Save(third)

	// Queued value is served before the backend.
	got, found, err := w.Load(context.Background())
	if err != nil || !found || !got.Equal(third) {
		t.Errorf("Load() while pending = %v, %v, %v", got.IDs(), found, err)
	}

	close(store.release)
	// Close drains the queue.
	w.Close()

	store.mu.Lock()
	writes := store.writes
	store.mu.Unlock()
	if writes != 2 {
		t.Errorf("backend writes = %d, want 2", writes)
	}
	persisted, _, err := c.Load(context.Background(), "room")
	if err != nil || !persisted.Equal(third) {
		t.Errorf("persisted = %v, want %v", persisted.IDs(), third.IDs())
	}
}

func TestWriterReportsErrors(t *testing.T) {
	boom := errors.New("disk full")
	errs := make(chan error, 1)
	w := NewWriter(New(failingStore{err: boom}), "room", func(err error) { errs <- err })
	w.Save(sample())

	select {
	case err := <-errs:
		if !errors.Is(err, boom) {
			t.Errorf("onWrite err = %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for write result")
	}
	w.Close()
}

func TestWriterClose(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(New(store), "room", nil)
	w.Save(sample())
	w.Close()

	if _, found, _ := store.GetBlob(context.Background(), Key("room")); !found {
		t.Error("Close did not drain the queued save")
	}
	if _, _, err := w.Load(context.Background()); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Load() after Close = %v, want ErrWriterClosed", err)
	}
	w.Save(nil)
	got, _, _ := New(store).Load(context.Background(), "room")
	if len(got) != len(sample()) {
		t.Error("Save after Close reached the backend")
	}
}

type failingStore struct{ err error }

func (f failingStore) GetBlob(context.Context, string) ([]byte, bool, error) {
	return nil, false, f.err
}
func (f failingStore) SetBlob(context.Context, string, []byte) error { return f.err }
