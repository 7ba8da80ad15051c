// Package file stores checkpoints as JSON files, one per run token.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/steveyegge/mediasift/internal/types"
)

const ext = ".json"

// Store keeps checkpoints under a directory as <token>.json
type Store struct {
	dir string
}

// New creates the directory if needed and returns a store rooted at it
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the checkpoint directory
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(token string) string {
	return filepath.Join(s.dir, token+ext)
}

// Load reads the checkpoint for token; a missing file yields (nil, nil)
func (s *Store) Load(ctx context.Context, token string) (*types.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(token))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", token, err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", token, err)
	}
	if cp.FailedIdentifiers == nil {
		cp.FailedIdentifiers = make(map[string]string)
	}
	return &cp, nil
}

// Save writes the checkpoint to a temp file and renames it into place,
// so readers never observe a partial record.
func (s *Store) Save(ctx context.Context, token string, cp *types.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+token+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(token)); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for token. Deleting a missing checkpoint is not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(token)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint %s: %w", token, err)
	}
	return nil
}

// List returns every checkpoint in the directory, newest first
func (s *Store) List(ctx context.Context) ([]types.CheckpointEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var out []types.CheckpointEntry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		token := strings.TrimSuffix(name, ext)
		cp, err := s.Load(ctx, token)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			continue // removed concurrently
		}
		out = append(out, cp.Entry(token))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].SavedAt.After(out[j].SavedAt)
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

// Close is a no-op; files are not held open between calls
func (s *Store) Close() error {
	return nil
}
