package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// LogStore implements storage.LogStore on the logs warehouse table.
type LogStore struct {
	conn *Conn
}

// NewLogStore creates a new LogStore.
func NewLogStore(conn *Conn) *LogStore {
	return &LogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.LogStore = (*LogStore)(nil)

const logColumns = `address, topics, data, block_number, transaction_index, log_index, transaction_hash, block_timestamp`

// InsertBulk appends logs. Re-inserted rows collapse on merge (ReplacingMergeTree).
func (s *LogStore) InsertBulk(ctx context.Context, logs []*domain.RawLog) error {
	if len(logs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO logs (
			address, topic0, topics, data, block_number, transaction_index, log_index, transaction_hash, block_timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, l := range logs {
		err = batch.Append(
			strings.ToLower(l.Address), l.Topic0(), l.Topics, l.Data,
			uint64(l.BlockNumber), uint32(l.TransactionIndex), uint32(l.LogIndex),
			strings.ToLower(l.TransactionHash), time.Unix(l.BlockTimestamp, 0).UTC(),
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

// ListLogs returns logs matching f ordered by (block_number, log_index) ASC.
func (s *LogStore) ListLogs(ctx context.Context, f storage.LogFilter) ([]*domain.RawLog, error) {
	if len(f.Topics0) == 0 {
		return nil, storage.ErrInvalidInput
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + logColumns + ` FROM logs FINAL WHERE topic0 IN (` + placeholders(len(f.Topics0)) + `)`)
	args := appendStrings(nil, f.Topics0)

	if len(f.Addresses) > 0 {
		lower := make([]string, len(f.Addresses))
		for i, a := range f.Addresses {
			lower[i] = strings.ToLower(a)
		}
		b.WriteString(` AND address IN (` + placeholders(len(lower)) + `)`)
		args = appendStrings(args, lower)
	}

	b.WriteString(` AND block_number >= ? AND block_number <= ? ORDER BY block_number ASC, log_index ASC`)
	args = append(args, uint64(f.FromBlock), uint64(f.ToBlock))

	rows, err := s.conn.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// LatestBefore returns the last log of address with topic0 strictly before pos,
// skipping logs emitted by excludeTxHash.
func (s *LogStore) LatestBefore(ctx context.Context, address, topic0 string, pos domain.Position, excludeTxHash string) (*domain.RawLog, error) {
	query := `
		SELECT ` + logColumns + `
		FROM logs FINAL
		WHERE address = ? AND topic0 = ?
		  AND (block_number < ?
		       OR (block_number = ? AND transaction_index < ?)
		       OR (block_number = ? AND transaction_index = ? AND log_index < ?))
		  AND transaction_hash != ?
		ORDER BY block_number DESC, transaction_index DESC, log_index DESC
		LIMIT 1
	`

	block := uint64(pos.BlockNumber)
	rows, err := s.conn.Query(ctx, query,
		strings.ToLower(address), topic0,
		block,
		block, uint32(pos.TxIndex),
		block, uint32(pos.TxIndex), uint32(pos.LogIndex),
		strings.ToLower(excludeTxHash),
	)
	if err != nil {
		return nil, fmt.Errorf("query latest log: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, storage.ErrNotFound
	}
	return logs[0], nil
}

// SwapActivity aggregates logs with any of topics per emitting address.
func (s *LogStore) SwapActivity(ctx context.Context, topics, addresses []string, since24h, since7d int64) ([]domain.PoolActivity, error) {
	if len(topics) == 0 || len(addresses) == 0 {
		return nil, nil
	}

	lower := make([]string, len(addresses))
	for i, a := range addresses {
		lower[i] = strings.ToLower(a)
	}

	query := `
		SELECT
			address,
			countIf(block_timestamp >= ?) AS swaps_24h,
			countIf(block_timestamp >= ?) AS swaps_7d,
			max(block_number) AS last_block,
			toInt64(toUnixTimestamp(max(block_timestamp))) AS last_at
		FROM logs FINAL
		WHERE topic0 IN (` + placeholders(len(topics)) + `)
		  AND address IN (` + placeholders(len(lower)) + `)
		GROUP BY address
		ORDER BY address
	`

	args := []any{time.Unix(since24h, 0).UTC(), time.Unix(since7d, 0).UTC()}
	args = appendStrings(args, topics)
	args = appendStrings(args, lower)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query swap activity: %w", err)
	}
	defer rows.Close()

	var out []domain.PoolActivity
	for rows.Next() {
		var (
			a         domain.PoolActivity
			s24, s7   uint64
			lastBlock uint64
			lastAt    int64
		)
		if err := rows.Scan(&a.Address, &s24, &s7, &lastBlock, &lastAt); err != nil {
			return nil, fmt.Errorf("scan swap activity row: %w", err)
		}
		a.Swaps24h = int64(s24)
		a.Swaps7d = int64(s7)
		lb := int64(lastBlock)
		a.LastSwapBlock = &lb
		a.LastSwapAt = &lastAt
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap activity rows: %w", err)
	}

	return out, nil
}

func scanLogs(rows chRows) ([]*domain.RawLog, error) {
	var logs []*domain.RawLog

	for rows.Next() {
		var (
			l                 domain.RawLog
			block             uint64
			txIndex, logIndex uint32
			ts                time.Time
		)
		err := rows.Scan(
			&l.Address, &l.Topics, &l.Data,
			&block, &txIndex, &logIndex,
			&l.TransactionHash, &ts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}

		l.BlockNumber = int64(block)
		l.TransactionIndex = int(txIndex)
		l.LogIndex = int(logIndex)
		l.BlockTimestamp = ts.Unix()
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log rows: %w", err)
	}

	return logs, nil
}
