package storage

import "context"

// DetectionProgressStore persists the per-pool detection cursor.
// This enables resumption after restarts without rescanning finalized ranges.
type DetectionProgressStore interface {
	// GetLastBlock returns the last block whose front-runs are fully processed.
	// Returns ErrNotFound if the pool has never been scanned.
	GetLastBlock(ctx context.Context, poolID int64) (int64, error)

	// SetLastBlock advances the cursor. A block lower than the stored one is ignored.
	SetLastBlock(ctx context.Context, poolID int64, block int64) error
}
