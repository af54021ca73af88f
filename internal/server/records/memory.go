package records

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps records in process memory. Everything is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Name() string { return "memory" }

// Put inserts a new record. Existing ids are never overwritten.
func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	m.records[rec.ID] = &rec
	return nil
}

// Get returns a copy of the record so callers never share mutable state with the store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// IncrementDownloads bumps the counter under the write lock and returns the new value.
func (m *MemoryStore) IncrementDownloads(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return 0, ErrNotFound
	}
	rec.DownloadCount++
	return rec.DownloadCount, nil
}

func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalFiles: int64(len(m.records))}
	for _, rec := range m.records {
		stats.TotalDownloads += rec.DownloadCount
		stats.StorageUsed += rec.Size
	}
	return stats, nil
}
