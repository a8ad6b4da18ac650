// Package store defines the checkpoint persistence contract used by
// graph/checkpointing.go's default CheckpointableRunnable wiring, plus two
// implementations of it: an in-process map (store/memory) and a
// one-file-per-checkpoint directory (store/file).
//
// This is the graph package's own execution-id-keyed contract, distinct
// from internal/checkpoint's richer thread_id/checkpoint_id-keyed store
// that backs the HTTP API's chat history and resumable sessions.
//
//	type CheckpointStore interface {
//	    Save(ctx context.Context, checkpoint *Checkpoint) error
//	    Load(ctx context.Context, checkpointID string) (*Checkpoint, error)
//	    List(ctx context.Context, executionID string) ([]*Checkpoint, error)
//	    Delete(ctx context.Context, checkpointID string) error
//	    Clear(ctx context.Context, executionID string) error
//	}
//
// # Available Implementations
//
// store/memory
//
//	store := memory.NewMemoryCheckpointStore()
//
// store/file
//
//	store, err := file.NewFileCheckpointStore("./checkpoints")
package store
