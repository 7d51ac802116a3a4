package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cursor is the position of the last projected log.
type Cursor struct {
	BlockNumber uint64 `json:"last_block"`
	LogIndex    uint64 `json:"last_log_index"`
}

// After reports whether a log at (block, logIndex) comes after c.
func (c Cursor) After(block, logIndex uint64) bool {
	if block != c.BlockNumber {
		return block > c.BlockNumber
	}
	return logIndex > c.LogIndex
}

// StateStore persists the projection cursor.
type StateStore interface {
	Load(ctx context.Context) (Cursor, bool, error)
	Save(ctx context.Context, cursor Cursor) error
}

// FileStateStore stores the cursor in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	Cursor
	UpdatedAt string `json:"updated_at"`
}

func (s *FileStateStore) Load(context.Context) (Cursor, bool, error) {
	if s == nil || s.Path == "" {
		return Cursor{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Cursor{}, false, nil
		}
		return Cursor{}, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Cursor{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.Cursor, true, nil
}

func (s *FileStateStore) Save(_ context.Context, cursor Cursor) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(stateRecord{Cursor: cursor, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// CursorDB is the state surface of postgres.Store.
type CursorDB interface {
	LoadState(ctx context.Context, name string) (uint64, uint64, bool, error)
	SaveState(ctx context.Context, name string, block, logIndex uint64) error
}

// DBStateStore stores the cursor in the projector_state table.
type DBStateStore struct {
	Store CursorDB
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (Cursor, bool, error) {
	if s == nil || s.Store == nil {
		return Cursor{}, false, nil
	}
	block, logIndex, ok, err := s.Store.LoadState(ctx, s.Name)
	if err != nil || !ok {
		return Cursor{}, false, err
	}
	return Cursor{BlockNumber: block, LogIndex: logIndex}, true, nil
}

func (s *DBStateStore) Save(ctx context.Context, cursor Cursor) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, cursor.BlockNumber, cursor.LogIndex)
}
