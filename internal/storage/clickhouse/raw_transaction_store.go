package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// RawTransactionStore implements storage.RawTransactionStore on the
// transactions warehouse table. Wei values are stored as decimal strings
// because they can exceed UInt64.
type RawTransactionStore struct {
	conn *Conn
}

// NewRawTransactionStore creates a new RawTransactionStore.
func NewRawTransactionStore(conn *Conn) *RawTransactionStore {
	return &RawTransactionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RawTransactionStore = (*RawTransactionStore)(nil)

// InsertBulk appends transactions.
func (s *RawTransactionStore) InsertBulk(ctx context.Context, txs []*domain.RawTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transactions (
			hash, block_number, transaction_index, block_timestamp, from_address, to_address,
			gas_used, gas_price, effective_gas_price, status
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tx := range txs {
		var gasUsed *uint64
		if tx.GasUsed != nil {
			v := uint64(*tx.GasUsed)
			gasUsed = &v
		}
		var status *uint8
		if tx.Status != nil {
			v := uint8(*tx.Status)
			status = &v
		}

		err = batch.Append(
			strings.ToLower(tx.Hash), uint64(tx.BlockNumber), uint32(tx.TransactionIndex),
			time.Unix(tx.BlockTimestamp, 0).UTC(),
			strings.ToLower(tx.FromAddress), strings.ToLower(tx.ToAddress),
			gasUsed, bigString(tx.GasPrice), bigString(tx.EffectiveGasPrice), status,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByHashes returns the transactions with the given hashes.
// Lookups are chunked to keep the IN list bounded.
func (s *RawTransactionStore) GetByHashes(ctx context.Context, hashes []string) ([]*domain.RawTransaction, error) {
	var out []*domain.RawTransaction

	for _, c := range storage.Chunks(len(hashes), storage.DefaultChunkSize) {
		chunk := hashes[c[0]:c[1]]
		lower := make([]string, len(chunk))
		for i, h := range chunk {
			lower[i] = strings.ToLower(h)
		}

		query := `
			SELECT hash, block_number, transaction_index, block_timestamp, from_address, to_address,
			       gas_used, gas_price, effective_gas_price, status
			FROM transactions FINAL
			WHERE hash IN (` + placeholders(len(lower)) + `)
		`

		rows, err := s.conn.Query(ctx, query, appendStrings(nil, lower)...)
		if err != nil {
			return nil, fmt.Errorf("query transactions: %w", err)
		}

		txs, err := scanRawTransactions(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}

	return out, nil
}

func scanRawTransactions(rows chRows) ([]*domain.RawTransaction, error) {
	var txs []*domain.RawTransaction

	for rows.Next() {
		var (
			tx                 domain.RawTransaction
			block              uint64
			txIndex            uint32
			ts                 time.Time
			gasUsed            *uint64
			gasPrice, effPrice *string
			status             *uint8
		)
		err := rows.Scan(
			&tx.Hash, &block, &txIndex, &ts, &tx.FromAddress, &tx.ToAddress,
			&gasUsed, &gasPrice, &effPrice, &status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}

		tx.BlockNumber = int64(block)
		tx.TransactionIndex = int(txIndex)
		tx.BlockTimestamp = ts.Unix()
		if gasUsed != nil {
			v := int64(*gasUsed)
			tx.GasUsed = &v
		}
		if status != nil {
			v := int(*status)
			tx.Status = &v
		}
		if tx.GasPrice, err = parseBig(gasPrice); err != nil {
			return nil, fmt.Errorf("parse gas_price of %s: %w", tx.Hash, err)
		}
		if tx.EffectiveGasPrice, err = parseBig(effPrice); err != nil {
			return nil, fmt.Errorf("parse effective_gas_price of %s: %w", tx.Hash, err)
		}
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return txs, nil
}

func bigString(x *big.Int) *string {
	if x == nil {
		return nil
	}
	s := x.String()
	return &s
}

func parseBig(s *string) (*big.Int, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", *s)
	}
	return v, nil
}
