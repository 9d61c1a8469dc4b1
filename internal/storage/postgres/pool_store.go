package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

const poolColumns = `
	id, chain_id, address, version, token0_id, token1_id, fee_pips, created_block_number, is_active,
	activity_score, swaps_24h, swaps_7d, last_swap_block, last_swap_at
`

const upsertPoolQuery = `
	WITH ins AS (
		INSERT INTO pools (chain_id, address, version, token0_id, token1_id, fee_pips, created_block_number, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chain_id, address) DO NOTHING
		RETURNING id
	)
	SELECT id, TRUE FROM ins
	UNION ALL
	SELECT id, FALSE FROM pools WHERE chain_id = $1 AND address = $2
	LIMIT 1
`

// UpsertBulk inserts pools in chunks and sets their ids.
func (s *PoolStore) UpsertBulk(ctx context.Context, pools []*domain.Pool) (int, error) {
	for _, p := range pools {
		if p.Token0ID == p.Token1ID {
			return 0, fmt.Errorf("pool %s: %w: token0 equals token1", p.Address, storage.ErrInvalidInput)
		}
	}

	inserted := 0
	for _, c := range storage.Chunks(len(pools), storage.DefaultChunkSize) {
		chunk := pools[c[0]:c[1]]

		batch := &pgx.Batch{}
		for _, p := range chunk {
			p.Address = strings.ToLower(p.Address)
			fee := p.FeePips
			if fee == 0 {
				fee = domain.DefaultFeePips
			}
			batch.Queue(upsertPoolQuery,
				p.ChainID, p.Address, string(p.Version), p.Token0ID, p.Token1ID,
				fee, p.CreatedBlockNumber, p.IsActive,
			)
		}

		n, err := sendUpsertBatch(ctx, s.pool, batch, len(chunk), func(i int, id int64) { chunk[i].ID = id })
		if err != nil {
			return inserted, fmt.Errorf("upsert pools: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// GetByID retrieves a pool.
func (s *PoolStore) GetByID(ctx context.Context, id int64) (*domain.Pool, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

// GetByAddress retrieves a pool by address.
func (s *PoolStore) GetByAddress(ctx context.Context, chainID int64, address string) (*domain.Pool, error) {
	return s.getOne(ctx, `WHERE chain_id = $1 AND address = $2`, chainID, strings.ToLower(address))
}

// ListByChain returns every pool of a chain ordered by id ASC.
func (s *PoolStore) ListByChain(ctx context.Context, chainID int64) ([]*domain.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE chain_id = $1 ORDER BY id ASC`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// ListActive returns active pools with activity_score >= minScore, most active first.
func (s *PoolStore) ListActive(ctx context.Context, chainID int64, minScore int64) ([]*domain.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE chain_id = $1 AND is_active AND activity_score >= $2
		ORDER BY activity_score DESC, id ASC
	`, chainID, minScore)
	if err != nil {
		return nil, fmt.Errorf("list active pools: %w", err)
	}
	defer rows.Close()

	return scanPools(rows)
}

// UpdateActivity writes the activity counters and score of a pool.
func (s *PoolStore) UpdateActivity(ctx context.Context, poolID int64, a domain.PoolActivity, score int64) error {
	var lastAt *time.Time
	if a.LastSwapAt != nil {
		t := time.Unix(*a.LastSwapAt, 0).UTC()
		lastAt = &t
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE pools
		SET activity_score = $2,
		    swaps_24h = $3,
		    swaps_7d = $4,
		    last_swap_block = COALESCE($5, last_swap_block),
		    last_swap_at = COALESCE($6, last_swap_at)
		WHERE id = $1
	`, poolID, score, a.Swaps24h, a.Swaps7d, a.LastSwapBlock, lastAt)
	if err != nil {
		return fmt.Errorf("update pool activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PoolStore) getOne(ctx context.Context, where string, args ...any) (*domain.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	defer rows.Close()

	pools, err := scanPools(rows)
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, storage.ErrNotFound
	}
	return pools[0], nil
}

// scanPools scans multiple rows into a slice of Pool.
func scanPools(rows pgx.Rows) ([]*domain.Pool, error) {
	var pools []*domain.Pool

	for rows.Next() {
		var (
			p       domain.Pool
			version string
		)
		err := rows.Scan(
			&p.ID, &p.ChainID, &p.Address, &version, &p.Token0ID, &p.Token1ID,
			&p.FeePips, &p.CreatedBlockNumber, &p.IsActive,
			&p.ActivityScore, &p.Swaps24h, &p.Swaps7d, &p.LastSwapBlock, &p.LastSwapAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		p.Version = domain.PoolVersion(version)
		pools = append(pools, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool rows: %w", err)
	}

	return pools, nil
}
