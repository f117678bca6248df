package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dataunion/internal/model"
)

// Checkpointer persists ingestion progress.
type Checkpointer interface {
	Load(ctx context.Context) (model.Checkpoint, bool, error)
	Save(ctx context.Context, cp model.Checkpoint) error
}

// CheckpointStore persists checkpoints to disk.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled}
}

func (c *CheckpointStore) Load(_ context.Context) (model.Checkpoint, bool, error) {
	if !c.enabled {
		return model.Checkpoint{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Checkpoint{}, false, nil
		}
		return model.Checkpoint{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return model.Checkpoint{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	return cp, true, nil
}

func (c *CheckpointStore) Save(_ context.Context, cp model.Checkpoint) error {
	if !c.enabled {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(cp)
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

// StateStore is the checkpoint table of a database.
type StateStore interface {
	LoadCheckpoint(ctx context.Context, name string) (model.Checkpoint, bool, error)
	SaveCheckpoint(ctx context.Context, name string, cp model.Checkpoint) error
}

// DBCheckpoint stores the checkpoint in the indexer_state table under Name.
type DBCheckpoint struct {
	Store StateStore
	Name  string
}

func (c *DBCheckpoint) Load(ctx context.Context) (model.Checkpoint, bool, error) {
	if c == nil || c.Store == nil {
		return model.Checkpoint{}, false, nil
	}
	return c.Store.LoadCheckpoint(ctx, c.Name)
}

func (c *DBCheckpoint) Save(ctx context.Context, cp model.Checkpoint) error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.SaveCheckpoint(ctx, c.Name, cp)
}
