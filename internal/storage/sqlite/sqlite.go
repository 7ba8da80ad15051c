// Package sqlite stores checkpoints in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/mediasift/internal/types"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// timeLayout is fixed width so saved_at orders correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements checkpoint storage on SQLite
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and initializes the schema
func New(ctx context.Context, path string) (*Store, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		// WAL so `checkpoint list` can read while a run writes
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryPath {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the checkpoint for token, or (nil, nil) if none is stored
func (s *Store) Load(ctx context.Context, token string) (*types.Checkpoint, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM checkpoints WHERE token = ?`, token).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", token, err)
	}

	var cp types.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", token, err)
	}
	if cp.FailedIdentifiers == nil {
		cp.FailedIdentifiers = make(map[string]string)
	}
	return &cp, nil
}

// Save upserts the checkpoint row for token
func (s *Store) Save(ctx context.Context, token string, cp *types.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	savedAt := cp.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (token, payload, processed, failed, cumulative_cost, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			payload = excluded.payload,
			processed = excluded.processed,
			failed = excluded.failed,
			cumulative_cost = excluded.cumulative_cost,
			saved_at = excluded.saved_at
	`, token, string(payload), len(cp.ProcessedIdentifiers), len(cp.FailedIdentifiers),
		cp.CumulativeCost, savedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", token, err)
	}
	return nil
}

// Delete removes the row for token, if any
func (s *Store) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", token, err)
	}
	return nil
}

// List returns a summary of every stored checkpoint, newest first
func (s *Store) List(ctx context.Context) ([]types.CheckpointEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, processed, failed, cumulative_cost, saved_at
		FROM checkpoints
		ORDER BY saved_at DESC, token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []types.CheckpointEntry
	for rows.Next() {
		var e types.CheckpointEntry
		var savedAt string
		if err := rows.Scan(&e.Token, &e.Processed, &e.Failed, &e.CumulativeCost, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		e.SavedAt, err = time.Parse(timeLayout, savedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid saved_at for %s: %w", e.Token, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
