// Package memory provides an in-process, non-persistent CheckpointStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/devyk/kaflow-go/store"
)

// MemoryCheckpointStore implements store.CheckpointStore with a guarded map.
// State is lost on process restart; useful for tests and single-process demos.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates a new in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
	}
}

// Save stores a checkpoint, overwriting any existing entry with the same ID.
func (m *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[checkpoint.ID] = checkpoint
	return nil
}

// Load retrieves a checkpoint by ID.
func (m *MemoryCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("checkpoint not found: %s", checkpointID)
	}
	return cp, nil
}

// List returns every checkpoint whose metadata "session_id", "thread_id" or
// "workflow_id" equals executionID, sorted by version ascending.
func (m *MemoryCheckpointStore) List(ctx context.Context, executionID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*store.Checkpoint
	for _, cp := range m.checkpoints {
		if matchesExecution(cp, executionID) {
			results = append(results, cp)
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

// Delete removes a checkpoint; deleting a missing ID is a no-op.
func (m *MemoryCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, checkpointID)
	return nil
}

// Clear removes every checkpoint belonging to executionID.
func (m *MemoryCheckpointStore) Clear(ctx context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cp := range m.checkpoints {
		if matchesExecution(cp, executionID) {
			delete(m.checkpoints, id)
		}
	}
	return nil
}
