package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProbeWithoutDaemon(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "chatsync-c-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	socketPath := filepath.Join(dir, "d.sock")
	if Probe(socketPath) {
		t.Error("Probe() = true with no daemon listening")
	}
	start := time.Now()
	if WaitForDaemon(socketPath, 500*time.Millisecond) {
		t.Error("WaitForDaemon() = true with no daemon listening")
	}
	if time.Since(start) < 500*time.Millisecond {
		t.Error("WaitForDaemon() returned before the timeout")
	}
}
