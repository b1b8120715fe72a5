package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireRecordsOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "work", "LOCK")

	l, err := Acquire(path, Owner{Profile: "work", Socket: "/tmp/work.sock"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	got := parseOwner(string(data))
	if got.Profile != "work" || got.PID != os.Getpid() || got.Socket != "/tmp/work.sock" {
		t.Errorf("recorded owner = %+v", got)
	}
	if got.Since.IsZero() {
		t.Error("recorded owner has no start time")
	}
	if l.Owner().PID != os.Getpid() {
		t.Errorf("Owner().PID = %d, want %d", l.Owner().PID, os.Getpid())
	}
}

func TestSecondAcquireNamesTheHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l1, err := Acquire(path, Owner{Profile: "work", Socket: "/run/work.sock", Since: since})
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(path, Owner{Profile: "work"})
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire() error = %T %v, want *HeldError", err, err)
	}
	if held.Owner.PID != os.Getpid() || held.Owner.Socket != "/run/work.sock" || !held.Owner.Since.Equal(since) {
		t.Errorf("HeldError.Owner = %+v", held.Owner)
	}
	msg := err.Error()
	for _, want := range []string{`profile "work"`, "/run/work.sock", "pid ", path} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestHeldErrorWithUnreadableOwner(t *testing.T) {
	err := &HeldError{Owner: Owner{Profile: "default"}, Path: "/x/LOCK"}
	msg := err.Error()
	if strings.Contains(msg, "pid") || !strings.Contains(msg, `profile "default"`) {
		t.Errorf("Error() = %q", msg)
	}
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l, err := Acquire(path, Owner{Profile: "default"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release: %v", err)
	}

	l2, err := Acquire(path, Owner{Profile: "default"})
	if err != nil {
		t.Fatalf("Acquire() after Release error = %v", err)
	}
	_ = l2.Release()
}
