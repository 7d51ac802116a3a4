package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrCheckpointScope is returned when a checkpoint was taken for another chain
// or another set of watched addresses.
var ErrCheckpointScope = errors.New("checkpoint scope mismatch")

// CheckpointScope identifies what a checkpoint covers.
type CheckpointScope struct {
	ChainID   uint64
	Addresses []common.Address
}

func (s CheckpointScope) addressKeys() []string {
	keys := make([]string, 0, len(s.Addresses))
	for _, addr := range s.Addresses {
		keys = append(keys, strings.ToLower(addr.Hex()))
	}
	sort.Strings(keys)
	return keys
}

// Checkpoint tracks the last processed block for one chain and address set.
type Checkpoint struct {
	ChainID            uint64   `json:"chain_id"`
	Addresses          []string `json:"addresses"`
	LastProcessedBlock uint64   `json:"last_processed_block"`
	UpdatedAt          string   `json:"updated_at"`
}

func (cp Checkpoint) covers(scope CheckpointScope) bool {
	if cp.ChainID != scope.ChainID {
		return false
	}
	want := scope.addressKeys()
	if len(want) != len(cp.Addresses) {
		return false
	}
	for i := range want {
		if want[i] != strings.ToLower(cp.Addresses[i]) {
			return false
		}
	}
	return true
}

// CheckpointStore persists checkpoints to disk.
type CheckpointStore struct {
	path    string
	enabled bool
	now     func() time.Time
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled, now: time.Now}
}

// Load reads the checkpoint and checks that it was taken for scope.
func (c *CheckpointStore) Load(scope CheckpointScope) (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	if !cp.covers(scope) {
		return Checkpoint{}, false, fmt.Errorf("%w: %s was taken for chain %d and %d addresses", ErrCheckpointScope, c.path, cp.ChainID, len(cp.Addresses))
	}
	return cp, true, nil
}

// Save records lastProcessed for scope with a write-then-rename.
func (c *CheckpointStore) Save(scope CheckpointScope, lastProcessed uint64) error {
	if !c.enabled {
		return nil
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	data, err := json.Marshal(Checkpoint{
		ChainID:            scope.ChainID,
		Addresses:          scope.addressKeys(),
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          c.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
