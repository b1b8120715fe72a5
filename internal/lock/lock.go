// Package lock keeps two chatsyncd processes from serving the same profile.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Owner identifies the daemon serving a profile. It is written into the lock
// file so that a second daemon can say who is in the way.
type Owner struct {
	Profile string
	PID     int
	Socket  string
	Since   time.Time
}

// HeldError is returned when another daemon already serves the profile.
type HeldError struct {
	Owner Owner
	Path  string
}

func (e *HeldError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "profile %q is already served by chatsyncd", e.Owner.Profile)
	if e.Owner.PID > 0 {
		fmt.Fprintf(&b, " pid %d", e.Owner.PID)
	}
	if e.Owner.Socket != "" {
		fmt.Fprintf(&b, " on %s", e.Owner.Socket)
	}
	if !e.Owner.Since.IsZero() {
		fmt.Fprintf(&b, " since %s", e.Owner.Since.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "; stop it or choose another profile (lock %s)", e.Path)
	return b.String()
}

// Lock is a held profile lock.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// Acquire takes the exclusive lock at path and records owner in it. PID and
// Since default to the current process and time. It returns *HeldError when
// another process holds the lock.
func Acquire(path string, owner Owner) (*Lock, error) {
	if owner.PID == 0 {
		owner.PID = os.Getpid()
	}
	if owner.Since.IsZero() {
		owner.Since = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		held := parseOwner(string(data))
		if held.Profile == "" {
			held.Profile = owner.Profile
		}
		return nil, &HeldError{Owner: held, Path: path}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(formatOwner(owner)), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path, owner: owner}, nil
}

// Owner returns what was recorded when the lock was taken.
func (l *Lock) Owner() Owner {
	return l.owner
}

// Release removes the lock file and drops the lock. Safe on a nil receiver
// and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func formatOwner(o Owner) string {
	return fmt.Sprintf("profile=%s\npid=%d\nsocket=%s\nsince=%s\n",
		o.Profile, o.PID, o.Socket, o.Since.Format(time.RFC3339))
}

func parseOwner(content string) Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "profile":
			o.Profile = value
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "socket":
			o.Socket = value
		case "since":
			o.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o
}
