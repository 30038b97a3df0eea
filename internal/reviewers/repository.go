package reviewers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists reviewer accounts keyed by lower-cased email.
type Repository interface {
	UpsertByEmail(ctx context.Context, r *Reviewer) (*Reviewer, error)
	GetByEmail(ctx context.Context, email string) (*Reviewer, error)
	GetByID(ctx context.Context, id string) (*Reviewer, error)
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (m *MongoRepository) UpsertByEmail(ctx context.Context, r *Reviewer) (*Reviewer, error) {
	now := time.Now().UTC()
	set := bson.M{
		"email":     r.Email,
		"name":      r.Name,
		"updatedAt": now,
	}
	if r.Sub != "" {
		set["sub"] = r.Sub
	}
	if r.PasswordHash != "" {
		set["passwordHash"] = r.PasswordHash
	}
	upd := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"_id": r.ID, "createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out Reviewer
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"email": r.Email}, upd, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MongoRepository) GetByEmail(ctx context.Context, email string) (*Reviewer, error) {
	return m.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (m *MongoRepository) GetByID(ctx context.Context, id string) (*Reviewer, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Reviewer, error) {
	var r Reviewer
	if err := m.col.FindOne(ctx, filter).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// MemoryRepository is used when MongoDB is not configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]Reviewer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byEmail: map[string]Reviewer{}}
}

func (m *MemoryRepository) UpsertByEmail(ctx context.Context, r *Reviewer) (*Reviewer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cur, ok := m.byEmail[r.Email]
	if !ok {
		cur = Reviewer{ID: r.ID, Email: r.Email, CreatedAt: now}
	}
	cur.Name = r.Name
	if r.Sub != "" {
		cur.Sub = r.Sub
	}
	if r.PasswordHash != "" {
		cur.PasswordHash = r.PasswordHash
	}
	cur.UpdatedAt = now
	m.byEmail[r.Email] = cur
	return &cur, nil
}

func (m *MemoryRepository) GetByEmail(ctx context.Context, email string) (*Reviewer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*Reviewer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.byEmail {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}
