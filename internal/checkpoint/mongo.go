package checkpoint

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/devyk/kaflow-go/internal/kerrors"
	"github.com/devyk/kaflow-go/internal/workflow"
)

// mongoDoc mirrors spec.md §4.9's Mongo document shape: {thread_id,
// checkpoint_id, parent_checkpoint_id, checkpoint_data (binary blob),
// metadata, username, created_at, updated_at}. checkpoint_data is the
// state snapshot marshaled to JSON and stored as bytes, matching the
// "opaque blob" compatibility note in spec.md §9.
type mongoDoc struct {
	ThreadID           string         `bson:"thread_id"`
	CheckpointID       string         `bson:"checkpoint_id"`
	ParentCheckpointID string         `bson:"parent_checkpoint_id,omitempty"`
	CheckpointData     []byte         `bson:"checkpoint_data"`
	Metadata           map[string]any `bson:"metadata,omitempty"`
	Username           string         `bson:"username"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
}

// MongoCollection is the minimal *mongo.Collection surface MongoStore
// needs, letting tests supply a fake rather than dialing a real server —
// grounded on the teacher's DBPool pattern in store/postgres/postgres.go.
type MongoCollection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// MongoStore is the Mongo-backed Store (spec.md §4.9 "Mongo backend"): one
// collection, documents keyed by (thread_id, checkpoint_id), with the
// connection and ping left to the caller (NewMongoStore assumes coll is
// already connected and does not dial or ping itself).
type MongoStore struct {
	coll MongoCollection
}

// NewMongoStore wraps an already-connected collection.
func NewMongoStore(coll MongoCollection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Put(ctx context.Context, threadID string, state workflow.State) error {
	latest, ok, err := s.GetLatest(ctx, threadID)
	if err != nil {
		return err
	}
	parent := ""
	id := "1"
	if ok {
		parent = latest.CheckpointID
		prev, _ := strconv.Atoi(latest.CheckpointID)
		id = strconv.Itoa(prev + 1)
	}

	return s.PutCheckpoint(ctx, Checkpoint{
		ThreadID:     threadID,
		CheckpointID: id,
		ParentID:     parent,
		Snapshot:     cloneState(state),
		Metadata:     map[string]any{},
	})
}

func (s *MongoStore) PutCheckpoint(ctx context.Context, cp Checkpoint) error {
	if cp.Username == "" {
		cp.Username = UsernameFromThreadID(cp.ThreadID)
	}
	blob, err := json.Marshal(cp.Snapshot)
	if err != nil {
		return kerrors.NewPersistenceError("put_checkpoint: marshal", err)
	}

	now := time.Now().UTC()
	doc := mongoDoc{
		ThreadID:           cp.ThreadID,
		CheckpointID:       cp.CheckpointID,
		ParentCheckpointID: cp.ParentID,
		CheckpointData:     blob,
		Metadata:           cp.Metadata,
		Username:           cp.Username,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	filter := bson.M{"thread_id": cp.ThreadID, "checkpoint_id": cp.CheckpointID}

	existing := s.coll.FindOne(ctx, filter)
	var prior mongoDoc
	if err := existing.Decode(&prior); err == nil {
		doc.CreatedAt = prior.CreatedAt
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return kerrors.NewPersistenceError("put_checkpoint: upsert", err)
	}
	return nil
}

func (s *MongoStore) GetLatest(ctx context.Context, threadID string) (Checkpoint, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "checkpoint_id", Value: -1}})
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"thread_id": threadID}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, kerrors.NewPersistenceError("get_latest", err)
	}
	cp, err := fromDoc(doc)
	return cp, true, err
}

func (s *MongoStore) List(ctx context.Context, threadID string, before string, limit int) ([]Checkpoint, error) {
	filter := bson.M{"thread_id": threadID}
	if before != "" {
		filter["checkpoint_id"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "checkpoint_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, kerrors.NewPersistenceError("list", err)
	}
	defer cur.Close(ctx)

	var docs []mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, kerrors.NewPersistenceError("list: decode", err)
	}
	out := make([]Checkpoint, 0, len(docs))
	for _, d := range docs {
		cp, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *MongoStore) GetFlatMessages(ctx context.Context, threadID string, page, pageSize int, order string) (MessagePage, error) {
	latest, ok, err := s.GetLatest(ctx, threadID)
	if err != nil {
		return MessagePage{}, err
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

func (s *MongoStore) GetHistoryMessages(ctx context.Context, threadID string, page, pageSize int, order string) (HistoryPage, error) {
	history, err := s.List(ctx, threadID, "", 0)
	if err != nil {
		return HistoryPage{}, err
	}
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

func (s *MongoStore) GetThreadList(ctx context.Context, username string, page, pageSize int, order string) (ThreadListPage, error) {
	filter := bson.M{}
	if username != "" {
		filter["username"] = username
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return ThreadListPage{}, kerrors.NewPersistenceError("get_thread_list", err)
	}
	defer cur.Close(ctx)

	var docs []mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return ThreadListPage{}, kerrors.NewPersistenceError("get_thread_list: decode", err)
	}

	latestByThread := map[string]mongoDoc{}
	for _, d := range docs {
		existing, ok := latestByThread[d.ThreadID]
		if !ok || d.UpdatedAt.After(existing.UpdatedAt) {
			latestByThread[d.ThreadID] = d
		}
	}

	summaries := make([]ThreadSummary, 0, len(latestByThread))
	for threadID, d := range latestByThread {
		cp, err := fromDoc(d)
		if err != nil {
			return ThreadListPage{}, err
		}
		msgs := cp.Snapshot.Messages()
		preview := ""
		if len(msgs) > 0 {
			preview = msgs[0].Content
		}
		summaries = append(summaries, ThreadSummary{
			ThreadID:            threadID,
			Username:            d.Username,
			FirstMessagePreview: preview,
			MessageCount:        len(msgs),
			LastUpdated:         d.UpdatedAt,
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

func fromDoc(d mongoDoc) (Checkpoint, error) {
	state := workflow.State{}
	if len(d.CheckpointData) > 0 {
		if err := json.Unmarshal(d.CheckpointData, &state); err != nil {
			return Checkpoint{}, kerrors.NewPersistenceError("decode snapshot", err)
		}
	}
	return Checkpoint{
		ThreadID:     d.ThreadID,
		CheckpointID: d.CheckpointID,
		ParentID:     d.ParentCheckpointID,
		Username:     d.Username,
		Snapshot:     state,
		Metadata:     d.Metadata,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

var _ Store = (*MongoStore)(nil)
