// Package file provides a JSON-file-backed CheckpointStore.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/devyk/kaflow-go/store"
)

// FileCheckpointStore persists each checkpoint as its own JSON file named
// "<checkpoint-id>.json" inside a directory. State survives process restarts
// but there is no locking beyond what the filesystem itself gives us.
type FileCheckpointStore struct {
	path string
}

var _ store.CheckpointStore = (*FileCheckpointStore)(nil)

// NewFileCheckpointStore creates (if missing) the checkpoint directory at
// path and returns a store backed by it.
func NewFileCheckpointStore(path string) (store.CheckpointStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileCheckpointStore{path: path}, nil
}

func (f *FileCheckpointStore) filename(checkpointID string) string {
	return filepath.Join(f.path, checkpointID+".json")
}

// Save writes checkpoint as JSON, overwriting any existing file for the same ID.
func (f *FileCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(f.filename(checkpoint.ID), data, 0600); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}
	return nil
}

// Load reads and decodes the checkpoint file for checkpointID.
func (f *FileCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(f.filename(checkpointID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint not found: %s", checkpointID)
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp store.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// List scans the directory and returns every checkpoint whose metadata
// "session_id", "thread_id", or "workflow_id" equals executionID, sorted by
// version ascending.
func (f *FileCheckpointStore) List(ctx context.Context, executionID string) ([]*store.Checkpoint, error) {
	entries, err := os.ReadDir(f.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint directory: %w", err)
	}

	var results []*store.Checkpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.path, entry.Name()))
		if err != nil {
			continue
		}

		var cp store.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}

		if matchesExecution(&cp, executionID) {
			results = append(results, &cp)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Version < results[j].Version
	})
	return results, nil
}

func matchesExecution(cp *store.Checkpoint, executionID string) bool {
	if cp.Metadata == nil {
		return false
	}
	if sid, ok := cp.Metadata["session_id"].(string); ok && sid == executionID {
		return true
	}
	if tid, ok := cp.Metadata["thread_id"].(string); ok && tid == executionID {
		return true
	}
	if wid, ok := cp.Metadata["workflow_id"].(string); ok && wid == executionID {
		return true
	}
	return false
}

// Delete removes the checkpoint file for checkpointID; deleting a missing ID
// is a no-op.
func (f *FileCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	err := os.Remove(f.filename(checkpointID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint file: %w", err)
	}
	return nil
}

// Clear removes every checkpoint file belonging to executionID.
func (f *FileCheckpointStore) Clear(ctx context.Context, executionID string) error {
	cps, err := f.List(ctx, executionID)
	if err != nil {
		return err
	}
	for _, cp := range cps {
		if err := f.Delete(ctx, cp.ID); err != nil {
			return err
		}
	}
	return nil
}
