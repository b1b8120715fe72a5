package client

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
)

// Probe reports whether a daemon answers on socketPath.
func Probe(socketPath string) bool {
	c, err := New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Conversation.GetStatus(ctx, &api.GetStatusRequest{})
	return err == nil
}

// StartDaemon launches chatsyncd for a profile in the background. The
// binary next to the running executable wins over the one on PATH.
func StartDaemon(profileName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	bin := filepath.Join(filepath.Dir(executable), "chatsyncd")
	if _, err := os.Stat(bin); err != nil {
		bin = "chatsyncd"
	}

	cmd := exec.Command(bin, "--profile", profileName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// WaitForDaemon polls with a real RPC until the daemon answers or timeout
// passes.
func WaitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if Probe(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
