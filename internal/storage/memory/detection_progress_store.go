package memory

import (
	"context"

	"sandwich-scan/internal/storage"
)

// DetectionProgressStore is an in-memory implementation of storage.DetectionProgressStore.
type DetectionProgressStore struct {
	db *DB
}

// NewDetectionProgressStore creates a new in-memory detection progress store.
func NewDetectionProgressStore(db *DB) *DetectionProgressStore {
	return &DetectionProgressStore{db: db}
}

var _ storage.DetectionProgressStore = (*DetectionProgressStore)(nil)

// GetLastBlock returns the cursor of a pool.
func (s *DetectionProgressStore) GetLastBlock(_ context.Context, poolID int64) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	b, ok := s.db.progress[poolID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return b, nil
}

// SetLastBlock advances the cursor. Lower blocks are ignored.
func (s *DetectionProgressStore) SetLastBlock(_ context.Context, poolID int64, block int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if cur, ok := s.db.progress[poolID]; !ok || block > cur {
		s.db.progress[poolID] = block
	}
	return nil
}
