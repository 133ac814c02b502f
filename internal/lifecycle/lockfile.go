// Package lifecycle implements the sidecar process lifecycle: the
// advisory-locked startup lock file, the internal work queue backing
// /enqueue, /next, and /complete, graceful shutdown, and the inactivity
// watchdog.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"
)

// LockPayload is the JSON body written to the lock file at startup.
type LockPayload struct {
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}

// LockFile holds an advisory-locked process lock file for the sidecar's
// lifetime; Release unlocks, closes, and removes it.
type LockFile struct {
	path string
	file *os.File
}

// AcquireLock creates path, takes an exclusive non-blocking advisory lock on
// it via flock, and writes the {port, pid, startedAt} payload. A held lock
// (another live sidecar) returns an error immediately rather than blocking.
func AcquireLock(path string, port int) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: another instance holds %s: %w", path, err)
	}

	payload := LockPayload{Port: port, PID: os.Getpid(), StartedAt: time.Now()}
	data, err := json.Marshal(payload)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: marshal lock payload: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: truncate lock file: %w", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: write lock payload: %w", err)
	}

	return &LockFile{path: path, file: f}, nil
}

// Release unlocks, closes, and removes the lock file. Safe to call once;
// subsequent calls are no-ops.
func (l *LockFile) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
	return os.Remove(l.path)
}
