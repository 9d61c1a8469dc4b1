package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// SwapStore implements storage.SwapStore using PostgreSQL.
type SwapStore struct {
	pool *Pool
}

// NewSwapStore creates a new SwapStore.
func NewSwapStore(pool *Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)

const insertSwapQuery = `
	INSERT INTO swaps (
		chain_id, pool_id, transaction_id, log_index, sender, recipient,
		amount0_in, amount1_in, amount0_out, amount1_out,
		sell_token_id, buy_token_id, sqrt_price_x96, liquidity, tick
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7::numeric, $8::numeric, $9::numeric, $10::numeric,
		$11, $12, $13::numeric, $14::numeric, $15
	)
	ON CONFLICT (pool_id, transaction_id, log_index) DO NOTHING
`

// UpsertBulk inserts swaps in chunks. Existing keys are left untouched.
func (s *SwapStore) UpsertBulk(ctx context.Context, swaps []*domain.Swap) (int, error) {
	inserted := 0
	for _, c := range storage.Chunks(len(swaps), storage.DefaultChunkSize) {
		n, err := s.insertChunk(ctx, swaps[c[0]:c[1]])
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (s *SwapStore) insertChunk(ctx context.Context, swaps []*domain.Swap) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, sw := range swaps {
		batch.Queue(insertSwapQuery,
			sw.ChainID, sw.PoolID, sw.TransactionID, sw.LogIndex, sw.Sender, sw.Recipient,
			numArgZero(sw.Amount0In), numArgZero(sw.Amount1In), numArgZero(sw.Amount0Out), numArgZero(sw.Amount1Out),
			sw.SellTokenID, sw.BuyTokenID, numArg(sw.SqrtPriceX96), numArg(sw.Liquidity), sw.Tick,
		)
	}

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for range swaps {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("insert swap in bulk: %w", constraintError(err))
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// ListLegs returns the swaps of a pool in blocks [fromBlock, toBlock] in total order.
func (s *SwapStore) ListLegs(ctx context.Context, poolID, fromBlock, toBlock int64) ([]*domain.SwapLeg, error) {
	query := `
		SELECT ` + legColumns("s", "t") + `
		FROM swaps s
		JOIN transactions t ON t.id = s.transaction_id
		WHERE s.pool_id = $1 AND t.block_number >= $2 AND t.block_number <= $3
		ORDER BY t.block_number ASC, t.tx_index ASC, s.log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, poolID, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("list legs: %w", err)
	}
	defer rows.Close()

	return scanLegs(rows)
}

// LatestStateBefore returns the last v3 state swap of a pool strictly before pos.
func (s *SwapStore) LatestStateBefore(ctx context.Context, poolID int64, pos domain.Position, excludeTxHash string) (*domain.SwapLeg, error) {
	query := `
		SELECT ` + legColumns("s", "t") + `
		FROM swaps s
		JOIN transactions t ON t.id = s.transaction_id
		WHERE s.pool_id = $1
		  AND s.sqrt_price_x96 IS NOT NULL AND s.liquidity IS NOT NULL
		  AND (t.block_number, t.tx_index, s.log_index) < ($2, $3, $4)
		  AND t.tx_hash <> $5
		ORDER BY t.block_number DESC, t.tx_index DESC, s.log_index DESC
		LIMIT 1
	`
	return s.one(ctx, query, poolID, pos.BlockNumber, pos.TxIndex, pos.LogIndex, excludeTxHash)
}

// LatestPricedAtOrBefore returns the last swap of a pool at or before block
// that carries a sqrt price or a tick.
func (s *SwapStore) LatestPricedAtOrBefore(ctx context.Context, poolID int64, block int64) (*domain.SwapLeg, error) {
	query := `
		SELECT ` + legColumns("s", "t") + `
		FROM swaps s
		JOIN transactions t ON t.id = s.transaction_id
		WHERE s.pool_id = $1
		  AND (s.sqrt_price_x96 IS NOT NULL OR s.tick IS NOT NULL)
		  AND t.block_number <= $2
		ORDER BY t.block_number DESC, t.tx_index DESC, s.log_index DESC
		LIMIT 1
	`
	return s.one(ctx, query, poolID, block)
}

func (s *SwapStore) one(ctx context.Context, query string, args ...any) (*domain.SwapLeg, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query swap: %w", err)
	}
	defer rows.Close()

	legs, err := scanLegs(rows)
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, storage.ErrNotFound
	}
	return legs[0], nil
}

// scanLegs scans legColumns rows into legs.
func scanLegs(rows pgx.Rows) ([]*domain.SwapLeg, error) {
	var legs []*domain.SwapLeg

	for rows.Next() {
		var l legScan
		if err := rows.Scan(l.dest()...); err != nil {
			return nil, fmt.Errorf("scan leg row: %w", err)
		}
		leg, err := l.result()
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leg rows: %w", err)
	}

	return legs, nil
}
