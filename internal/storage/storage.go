// Package storage persists run checkpoints.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/steveyegge/mediasift/internal/envutil"
	"github.com/steveyegge/mediasift/internal/storage/file"
	"github.com/steveyegge/mediasift/internal/storage/sqlite"
	"github.com/steveyegge/mediasift/internal/types"
)

// CheckpointStore persists one checkpoint per run token.
// Checkpoints are written wholesale; Save replaces any previous record.
type CheckpointStore interface {
	// Load returns the checkpoint for token, or (nil, nil) if there is none
	Load(ctx context.Context, token string) (*types.Checkpoint, error)
	Save(ctx context.Context, token string, cp *types.Checkpoint) error
	Delete(ctx context.Context, token string) error
	// List returns every stored checkpoint, newest first
	List(ctx context.Context) ([]types.CheckpointEntry, error)
	Close() error
}

// Backend names
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds checkpoint storage configuration
type Config struct {
	// Backend is "file" or "sqlite"
	// Default: "file"
	Backend string `yaml:"backend"`

	// Path is the checkpoint directory (file) or database path (sqlite).
	// ":memory:" gives a throwaway SQLite database, useful for tests.
	// Default: ".mediasift/checkpoints"
	Path string `yaml:"path"`

	// Interval is the number of recorded items between checkpoint writes
	// Default: 10
	Interval int `yaml:"interval"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Backend:  BackendFile,
		Path:     ".mediasift/checkpoints",
		Interval: 10,
	}
}

// Validate checks the backend name, path and interval
func (c Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown checkpoint backend %q (want %s or %s)", c.Backend, BackendFile, BackendSQLite)
	}
	if c.Path == "" {
		return fmt.Errorf("checkpoint path is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("checkpoint interval must be positive (got %d)", c.Interval)
	}
	return nil
}

// ApplyEnv overlays MEDIASIFT_CHECKPOINT_* variables onto c
func ApplyEnv(c *Config) error {
	envutil.String("MEDIASIFT_CHECKPOINT_BACKEND", &c.Backend)
	envutil.String("MEDIASIFT_CHECKPOINT_PATH", &c.Path)
	return envutil.Int("MEDIASIFT_CHECKPOINT_INTERVAL", &c.Interval)
}

// NewCheckpointStore opens the configured backend
func NewCheckpointStore(ctx context.Context, cfg Config) (CheckpointStore, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendSQLite:
		return sqlite.New(ctx, cfg.Path)
	default:
		return file.New(cfg.Path)
	}
}

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateToken checks that token is usable as a checkpoint key and file name
func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("invalid run token %q: use up to 128 letters, digits, '.', '_' or '-'", token)
	}
	return nil
}

// Stale reports whether an entry is older than maxAge relative to now
func Stale(entry types.CheckpointEntry, maxAge time.Duration, now time.Time) bool {
	return now.Sub(entry.SavedAt) > maxAge
}
