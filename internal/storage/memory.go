package storage

import (
	"context"
	"sync"

	"github.com/xaenox/relay-bot/internal/models"
)

// MemoryStorage keeps the snapshot in process memory.
type MemoryStorage struct {
	mu       sync.RWMutex
	snapshot models.Snapshot
	saves    int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Load(ctx context.Context) (models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshot(s.snapshot), nil
}

func (s *MemoryStorage) Save(ctx context.Context, snapshot models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = cloneSnapshot(snapshot)
	s.saves++
	return nil
}

// Saves returns how many snapshots were written.
func (s *MemoryStorage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func cloneSnapshot(s models.Snapshot) models.Snapshot {
	out := models.Snapshot{SavedAt: s.SavedAt}
	if s.Bindings != nil {
		out.Bindings = append([]models.Binding(nil), s.Bindings...)
	}
	if s.Banned != nil {
		out.Banned = append([]int64(nil), s.Banned...)
	}
	return out
}
