package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrRunLocked is returned when another live process holds the run lock
var ErrRunLocked = errors.New("run is locked by another process")

// RunLock is the lock file written while a run owns a checkpoint token.
// Two processes resuming the same token would double-bill the same items.
type RunLock struct {
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// LockPath returns the lock file location for token under dir
func LockPath(dir, token string) string {
	return filepath.Join(dir, token+".lock")
}

// AcquireRunLock creates the lock file for token in dir.
// A lock left behind by a dead process on this host is taken over.
// Returns the lock file path for ReleaseRunLock.
func AcquireRunLock(dir, token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockPath := LockPath(dir, token)
	if data, err := os.ReadFile(lockPath); err == nil {
		var existing RunLock
		if json.Unmarshal(data, &existing) == nil && existing.PID != os.Getpid() &&
			isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w: PID %d on %s, started %s", ErrRunLocked,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		// stale
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	lock := RunLock{
		Token:     token,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create run lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseRunLock removes the lock file. An empty path is a no-op.
func ReleaseRunLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run lock: %w", err)
	}
	return nil
}

// isProcessAlive reports whether pid exists on hostname.
// Processes on other hosts cannot be checked and count as alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: exists but not ours
	return errors.Is(err, syscall.EPERM)
}
