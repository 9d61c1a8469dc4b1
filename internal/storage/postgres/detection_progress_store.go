package postgres

import (
	"context"
	"fmt"

	"sandwich-scan/internal/storage"
)

// DetectionProgressStore is a PostgreSQL implementation of storage.DetectionProgressStore.
// Uses the detection_progress table, one row per pool.
type DetectionProgressStore struct {
	pool *Pool
}

// NewDetectionProgressStore creates a new PostgreSQL detection progress store.
func NewDetectionProgressStore(pool *Pool) *DetectionProgressStore {
	return &DetectionProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DetectionProgressStore = (*DetectionProgressStore)(nil)

// GetLastBlock returns the cursor of a pool.
func (s *DetectionProgressStore) GetLastBlock(ctx context.Context, poolID int64) (int64, error) {
	var block int64
	err := s.pool.QueryRow(ctx, `
		SELECT last_block FROM detection_progress WHERE pool_id = $1
	`, poolID).Scan(&block)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get detection progress: %w", err)
	}
	return block, nil
}

// SetLastBlock upserts the cursor. GREATEST keeps it monotonic.
func (s *DetectionProgressStore) SetLastBlock(ctx context.Context, poolID int64, block int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO detection_progress (pool_id, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (pool_id) DO UPDATE
		SET last_block = GREATEST(detection_progress.last_block, EXCLUDED.last_block),
		    updated_at = NOW()
	`, poolID, block)
	if err != nil {
		return fmt.Errorf("set detection progress: %w", err)
	}
	return nil
}
