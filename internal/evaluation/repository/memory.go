package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chedeval/progeval/internal/evaluation"
)

// MemoryRepo is an in-process repository for tests and single-node dev runs.
type MemoryRepo struct {
	mu        sync.RWMutex
	records   map[string]evaluation.Record
	responses map[string]evaluation.ResponseMap
	now       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records:   map[string]evaluation.Record{},
		responses: map[string]evaluation.ResponseMap{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRepo) Get(ctx context.Context, refNo string) (*evaluation.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[refNo]
	if !ok {
		return nil, evaluation.ErrNotFound
	}
	return &r, nil
}

func (m *MemoryRepo) Create(ctx context.Context, r *evaluation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.RefNo]; ok {
		return evaluation.ErrRefNoTaken
	}
	now := m.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.records[r.RefNo] = *r
	return nil
}

func (m *MemoryRepo) Update(ctx context.Context, r *evaluation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.records[r.RefNo]
	if !ok {
		return evaluation.ErrNotFound
	}
	r.ID = prev.ID
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = m.now()
	m.records[r.RefNo] = *r
	return nil
}

func (m *MemoryRepo) List(ctx context.Context) ([]evaluation.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]evaluation.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	newestFirst(out)
	return out, nil
}

func (m *MemoryRepo) Search(ctx context.Context, q string, limit int) ([]evaluation.Record, error) {
	q = strings.ToLower(q)
	all, _ := m.List(ctx)
	out := []evaluation.Record{}
	for _, r := range all {
		if strings.Contains(strings.ToLower(r.PersonnelName), q) ||
			strings.Contains(strings.ToLower(r.RefNo), q) ||
			strings.Contains(strings.ToLower(r.Institution), q) ||
			strings.Contains(strings.ToLower(r.Email), q) {
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryRepo) Responses(ctx context.Context, refNo string) (evaluation.ResponseMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[refNo]
	if !ok {
		return nil, evaluation.ErrNotFound
	}
	out := evaluation.ResponseMap{}
	for id, r := range m.responses[rec.ID] {
		out[id] = r
	}
	return out, nil
}

func (m *MemoryRepo) ReplaceResponses(ctx context.Context, refNo string, rs evaluation.ResponseMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[refNo]
	if !ok {
		return evaluation.ErrNotFound
	}
	next := make(evaluation.ResponseMap, len(rs))
	for id, r := range rs {
		r.RecordID = rec.ID
		r.RequirementID = id
		next[id] = r
	}
	m.responses[rec.ID] = next
	return nil
}

func newestFirst(rs []evaluation.Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].UpdatedAt.Equal(rs[j].UpdatedAt) {
			return rs[i].UpdatedAt.After(rs[j].UpdatedAt)
		}
		return rs[i].RefNo < rs[j].RefNo
	})
}
