// Package checkpoint persists per-thread shared-state snapshots and serves
// the paged history/thread-list reads the HTTP surface needs for resumable
// sessions (spec.md §4.9). Two backends — MemoryStore and MongoStore — share
// one Store contract, mirroring the teacher's injectable-pool pattern in
// store/postgres/postgres.go (DBPool) rather than its untyped, execution-id
// keyed store/checkpoint.go CheckpointStore, which doesn't carry a
// thread_id/checkpoint_id/parent_id shape or history/thread-list queries.
package checkpoint

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/devyk/kaflow-go/internal/workflow"
)

// Checkpoint is one immutable snapshot, keyed by (ThreadID, CheckpointID).
type Checkpoint struct {
	ThreadID     string
	CheckpointID string
	ParentID     string
	Username     string
	Snapshot     workflow.State
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessagePage is the result of GetFlatMessages: deduplicated, paginated
// individual messages from the latest checkpoint.
type MessagePage struct {
	Messages []workflow.Message
	Page     int
	PageSize int
	Total    int
}

// HistoryEntry is one paginated-by-checkpoint entry of GetHistoryMessages.
type HistoryEntry struct {
	CheckpointID string
	CreatedAt    time.Time
	Messages     []workflow.Message
}

// HistoryPage is the result of GetHistoryMessages.
type HistoryPage struct {
	Entries  []HistoryEntry
	Page     int
	PageSize int
	Total    int
}

// ThreadSummary is one row of GetThreadList.
type ThreadSummary struct {
	ThreadID            string
	Username            string
	FirstMessagePreview string
	MessageCount        int
	LastUpdated         time.Time
	ConfigID            string
}

// ThreadListPage is the result of GetThreadList.
type ThreadListPage struct {
	Threads  []ThreadSummary
	Page     int
	PageSize int
	Total    int
}

// UsernameFromThreadID derives the username segment of a "<username>_<uuid>_<config_id>"
// thread id: the first underscore-delimited segment (spec.md §4.9 "put").
func UsernameFromThreadID(threadID string) string {
	if idx := strings.Index(threadID, "_"); idx >= 0 {
		return threadID[:idx]
	}
	return threadID
}

// ConfigIDFromThreadID returns everything after the username and uuid
// segments of a "<username>_<uuid>_<config_id>" thread id, so a config id
// that itself contains underscores is kept whole. A thread id with fewer
// than three segments yields its final underscore-delimited segment.
func ConfigIDFromThreadID(threadID string) string {
	if parts := strings.SplitN(threadID, "_", 3); len(parts) == 3 {
		return parts[2]
	}
	if idx := strings.LastIndex(threadID, "_"); idx >= 0 {
		return threadID[idx+1:]
	}
	return threadID
}

// Store is the shared contract both backends satisfy (spec.md §4.9).
type Store interface {
	// Put is the minimal (thread_id, state) form internal/workflow.Engine
	// calls once after a successful run: it assigns a fresh monotonic
	// checkpoint id, chains parent_id to the thread's current latest, and
	// delegates to PutCheckpoint.
	Put(ctx context.Context, threadID string, state workflow.State) error

	// PutCheckpoint performs the full idempotent upsert keyed by
	// (ThreadID, CheckpointID) described in spec.md §4.9.
	PutCheckpoint(ctx context.Context, cp Checkpoint) error

	GetLatest(ctx context.Context, threadID string) (Checkpoint, bool, error)
	List(ctx context.Context, threadID string, before string, limit int) ([]Checkpoint, error)
	GetFlatMessages(ctx context.Context, threadID string, page, pageSize int, order string) (MessagePage, error)
	GetHistoryMessages(ctx context.Context, threadID string, page, pageSize int, order string) (HistoryPage, error)
	GetThreadList(ctx context.Context, username string, page, pageSize int, order string) (ThreadListPage, error)
}

// DedupeHumanMessages implements spec.md §4.9's dedup policy: iterating in
// order, a human message whose content contains any previously-seen human
// content is dropped. Shared by both backends so the
// policy lives in exactly one place.
func DedupeHumanMessages(messages []workflow.Message) []workflow.Message {
	var seen []string
	out := make([]workflow.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != workflow.RoleHuman {
			out = append(out, m)
			continue
		}
		dup := false
		for _, prior := range seen {
			if strings.Contains(m.Content, prior) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, m.Content)
		out = append(out, m)
	}
	return out
}

// paginate slices items[offset:offset+pageSize], already ordered by the
// caller, clamping out-of-range pages to empty rather than erroring.
func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// sortCheckpoints orders cps by CreatedAt according to order ("asc"|"desc",
// default "desc" per spec.md §4.9's list()'s "most-recent-first").
func sortCheckpoints(cps []Checkpoint, order string) {
	asc := order == "asc"
	sort.SliceStable(cps, func(i, j int) bool {
		if asc {
			return cps[i].CreatedAt.Before(cps[j].CreatedAt)
		}
		return cps[i].CreatedAt.After(cps[j].CreatedAt)
	})
}
