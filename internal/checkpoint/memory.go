package checkpoint

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/devyk/kaflow-go/internal/kerrors"
	"github.com/devyk/kaflow-go/internal/workflow"
)

// MemoryStore is the in-process backend: a map of thread_id to its ordered
// checkpoint history. It never persists across a restart (spec.md §4.9
// "Memory backend").
type MemoryStore struct {
	mu       sync.Mutex
	byThread map[string][]Checkpoint
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byThread: map[string][]Checkpoint{}}
}

// Put assigns the next monotonic numeric checkpoint id for threadID,
// chains ParentID to the current latest (if any), and upserts.
func (s *MemoryStore) Put(_ context.Context, threadID string, state workflow.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.byThread[threadID]
	parent := ""
	if len(history) > 0 {
		parent = history[len(history)-1].CheckpointID
	}
	id := strconv.Itoa(len(history) + 1)

	now := time.Now().UTC()
	cp := Checkpoint{
		ThreadID:     threadID,
		CheckpointID: id,
		ParentID:     parent,
		Username:     UsernameFromThreadID(threadID),
		Snapshot:     cloneState(state),
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byThread[threadID] = append(history, cp)
	return nil
}

// PutCheckpoint upserts cp by (ThreadID, CheckpointID): an existing id is
// overwritten in place (UpdatedAt bumped), preserving list order and
// matching spec.md §4.9's "idempotent upsert".
func (s *MemoryStore) PutCheckpoint(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.Username == "" {
		cp.Username = UsernameFromThreadID(cp.ThreadID)
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	history := s.byThread[cp.ThreadID]
	for i, existing := range history {
		if existing.CheckpointID == cp.CheckpointID {
			cp.CreatedAt = existing.CreatedAt
			history[i] = cp
			s.byThread[cp.ThreadID] = history
			return nil
		}
	}
	s.byThread[cp.ThreadID] = append(history, cp)
	return nil
}

func (s *MemoryStore) GetLatest(_ context.Context, threadID string) (Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.byThread[threadID]
	if len(history) == 0 {
		return Checkpoint{}, false, nil
	}
	return history[len(history)-1], true, nil
}

func (s *MemoryStore) List(_ context.Context, threadID string, before string, limit int) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]Checkpoint(nil), s.byThread[threadID]...)
	sortCheckpoints(history, "desc")

	if before != "" {
		for i, cp := range history {
			if cp.CheckpointID == before {
				history = history[i+1:]
				break
			}
		}
	}
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (s *MemoryStore) GetFlatMessages(ctx context.Context, threadID string, page, pageSize int, order string) (MessagePage, error) {
	latest, ok, err := s.GetLatest(ctx, threadID)
	if err != nil {
		return MessagePage{}, kerrors.NewPersistenceError("get_flat_messages", err)
	}
	if !ok {
		return MessagePage{Page: page, PageSize: pageSize}, nil
	}

	deduped := DedupeHumanMessages(latest.Snapshot.Messages())
	if order == "desc" {
		deduped = reverseMessages(deduped)
	}

	return MessagePage{
		Messages: paginate(deduped, page, pageSize),
		Page:     page,
		PageSize: pageSize,
		Total:    len(deduped),
	}, nil
}

func (s *MemoryStore) GetHistoryMessages(_ context.Context, threadID string, page, pageSize int, order string) (HistoryPage, error) {
	s.mu.Lock()
	history := append([]Checkpoint(nil), s.byThread[threadID]...)
	s.mu.Unlock()

	sortCheckpoints(history, order)

	entries := make([]HistoryEntry, 0, len(history))
	for _, cp := range history {
		entries = append(entries, HistoryEntry{
			CheckpointID: cp.CheckpointID,
			CreatedAt:    cp.CreatedAt,
			Messages:     cp.Snapshot.Messages(),
		})
	}

	return HistoryPage{
		Entries:  paginate(entries, page, pageSize),
		Page:     page,
		PageSize: pageSize,
		Total:    len(entries),
	}, nil
}

func (s *MemoryStore) GetThreadList(_ context.Context, username string, page, pageSize int, order string) (ThreadListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []ThreadSummary
	for threadID, history := range s.byThread {
		if len(history) == 0 {
			continue
		}
		u := UsernameFromThreadID(threadID)
		if username != "" && u != username {
			continue
		}
		latest := history[len(history)-1]
		msgs := latest.Snapshot.Messages()
		preview := ""
		if len(msgs) > 0 {
			preview = msgs[0].Content
		}
		summaries = append(summaries, ThreadSummary{
			ThreadID:            threadID,
			Username:            u,
			FirstMessagePreview: preview,
			MessageCount:        len(msgs),
			LastUpdated:         latest.UpdatedAt,
			ConfigID:            ConfigIDFromThreadID(threadID),
		})
	}

	asc := order == "asc"
	sort.SliceStable(summaries, func(i, j int) bool {
		if asc {
			return summaries[i].LastUpdated.Before(summaries[j].LastUpdated)
		}
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})

	return ThreadListPage{
		Threads:  paginate(summaries, page, pageSize),
		Page:     page,
		PageSize: pageSize,
		Total:    len(summaries),
	}, nil
}

func reverseMessages(in []workflow.Message) []workflow.Message {
	out := make([]workflow.Message, len(in))
	for i, m := range in {
		out[len(in)-1-i] = m
	}
	return out
}

// cloneState makes a shallow top-level copy so later mutations of the
// engine's live State don't retroactively alter an already-stored
// snapshot — Checkpoints are meant to be immutable (spec.md §4.9).
func cloneState(s workflow.State) workflow.State {
	out := make(workflow.State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
