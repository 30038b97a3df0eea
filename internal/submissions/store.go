package submissions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Receipt records one submission of an evaluation and where its snapshot was archived.
type Receipt struct {
	ID          string    `bson:"_id" json:"id"`
	RefNo       string    `bson:"refNo" json:"refNo"`
	ObjectKey   string    `bson:"objectKey,omitempty" json:"objectKey,omitempty"`
	Archived    bool      `bson:"archived" json:"archived"`
	ItemCount   int       `bson:"itemCount" json:"itemCount"`
	Answered    int       `bson:"answered" json:"answered"`
	Reviewer    string    `bson:"reviewer,omitempty" json:"reviewer,omitempty"`
	SubmittedAt time.Time `bson:"submittedAt" json:"submittedAt"`
	// URL is a presigned download link filled in at read time.
	URL string `bson:"-" json:"url,omitempty"`
}

// Store persists receipts. Save is an upsert by ID.
type Store interface {
	Save(ctx context.Context, r *Receipt) error
	List(ctx context.Context, refNo string) ([]Receipt, error)
}

// MongoStore keeps receipts in a MongoDB collection.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(ctx context.Context, col *mongo.Collection) (*MongoStore, error) {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "refNo", Value: 1}, {Key: "submittedAt", Value: -1}}}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("ensure receipt index: %w", err)
	}
	return &MongoStore{col: col}, nil
}

func (m *MongoStore) Save(ctx context.Context, r *Receipt) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.col.ReplaceOne(ctx, bson.M{"_id": r.ID}, r, opts); err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

func (m *MongoStore) List(ctx context.Context, refNo string) ([]Receipt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}})
	cur, err := m.col.Find(ctx, bson.M{"refNo": refNo}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Receipt{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MemoryStore is used when MongoDB is not configured.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]Receipt{}}
}

func (m *MemoryStore) Save(ctx context.Context, r *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[r.ID] = *r
	return nil
}

func (m *MemoryStore) List(ctx context.Context, refNo string) ([]Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Receipt{}
	for _, r := range m.byID {
		if r.RefNo == refNo {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}
