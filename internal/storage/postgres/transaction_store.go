package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const upsertTransactionQuery = `
	WITH ins AS (
		INSERT INTO transactions (
			chain_id, tx_hash, block_number, tx_index, block_timestamp, from_address, to_address,
			gas_used, gas_price_wei, effective_gas_price_wei, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11)
		ON CONFLICT (chain_id, tx_hash) DO NOTHING
		RETURNING id
	)
	SELECT id, TRUE FROM ins
	UNION ALL
	SELECT id, FALSE FROM transactions WHERE chain_id = $1 AND tx_hash = $2
	LIMIT 1
`

// UpsertBulk inserts transactions in chunks and sets their ids.
// Hashes and addresses are stored lowercase.
func (s *TransactionStore) UpsertBulk(ctx context.Context, txs []*domain.Transaction) (int, error) {
	inserted := 0
	for _, c := range storage.Chunks(len(txs), storage.DefaultChunkSize) {
		chunk := txs[c[0]:c[1]]

		batch := &pgx.Batch{}
		for _, t := range chunk {
			t.TxHash = strings.ToLower(t.TxHash)
			t.FromAddress = strings.ToLower(t.FromAddress)
			if t.ToAddress != nil {
				to := strings.ToLower(*t.ToAddress)
				t.ToAddress = &to
			}
			batch.Queue(upsertTransactionQuery,
				t.ChainID, t.TxHash, t.BlockNumber, t.TxIndex, t.BlockTimestamp, t.FromAddress, t.ToAddress,
				t.GasUsed, numArg(t.GasPriceWei), numArg(t.EffectiveGasPriceWei), t.Status,
			)
		}

		n, err := sendUpsertBatch(ctx, s.pool, batch, len(chunk), func(i int, id int64) { chunk[i].ID = id })
		if err != nil {
			return inserted, fmt.Errorf("upsert transactions: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// GetByHash retrieves a transaction.
func (s *TransactionStore) GetByHash(ctx context.Context, chainID int64, hash string) (*domain.Transaction, error) {
	var (
		t                  domain.Transaction
		gasPrice, effPrice *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, chain_id, tx_hash, block_number, tx_index, block_timestamp, from_address, to_address,
		       gas_used, gas_price_wei::text, effective_gas_price_wei::text, status
		FROM transactions
		WHERE chain_id = $1 AND tx_hash = $2
	`, chainID, strings.ToLower(hash)).Scan(
		&t.ID, &t.ChainID, &t.TxHash, &t.BlockNumber, &t.TxIndex, &t.BlockTimestamp, &t.FromAddress, &t.ToAddress,
		&t.GasUsed, &gasPrice, &effPrice, &t.Status,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	var p numParser
	t.GasPriceWei = p.num(gasPrice)
	t.EffectiveGasPriceWei = p.num(effPrice)
	if p.err != nil {
		return nil, fmt.Errorf("get transaction: %w", p.err)
	}
	return &t, nil
}

// MaxBlockNumber returns the highest transaction block of the chain.
func (s *TransactionStore) MaxBlockNumber(ctx context.Context, chainID int64) (int64, error) {
	var top int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(block_number), 0)
		FROM transactions
		WHERE chain_id = $1
	`, chainID).Scan(&top)
	if err != nil {
		return 0, fmt.Errorf("get max block number: %w", err)
	}
	return top, nil
}
