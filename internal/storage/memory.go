package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// MemoryArchive keeps objects in process; tests read them back with Object.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
	// Err, when set, fails every PutJSON.
	Err error
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: map[string][]byte{}}
}

func (m *MemoryArchive) PutJSON(ctx context.Context, key string, v any) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.objects[key] = body
	m.mu.Unlock()
	return int64(len(body)), nil
}

func (m *MemoryArchive) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return "memory://archive/" + url.PathEscape(key) + "?expires=" + expires.String(), nil
}

// Object returns the stored bytes for key.
func (m *MemoryArchive) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}
