package memory

import (
	"context"
	"sort"
	"strings"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// LogStore is an in-memory implementation of storage.LogStore.
type LogStore struct {
	db *DB
}

// NewLogStore creates a new in-memory log store.
func NewLogStore(db *DB) *LogStore {
	return &LogStore{db: db}
}

var _ storage.LogStore = (*LogStore)(nil)

// InsertBulk appends logs.
func (s *LogStore) InsertBulk(_ context.Context, logs []*domain.RawLog) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, l := range logs {
		cp := *l
		cp.Address = strings.ToLower(cp.Address)
		cp.TransactionHash = strings.ToLower(cp.TransactionHash)
		cp.Topics = append([]string(nil), l.Topics...)
		s.db.logs = append(s.db.logs, &cp)
	}
	return nil
}

// ListLogs returns logs matching f ordered by (block_number, log_index) ASC.
func (s *LogStore) ListLogs(_ context.Context, f storage.LogFilter) ([]*domain.RawLog, error) {
	if len(f.Topics0) == 0 {
		return nil, storage.ErrInvalidInput
	}
	topics := set(f.Topics0, false)
	addrs := set(f.Addresses, true)

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*domain.RawLog
	for _, l := range s.db.logs {
		if _, ok := topics[l.Topic0()]; !ok {
			continue
		}
		if len(addrs) > 0 {
			if _, ok := addrs[l.Address]; !ok {
				continue
			}
		}
		if l.BlockNumber < f.FromBlock || l.BlockNumber > f.ToBlock {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

// LatestBefore returns the last log of address with topic0 strictly before pos.
func (s *LogStore) LatestBefore(_ context.Context, address, topic0 string, pos domain.Position, excludeTxHash string) (*domain.RawLog, error) {
	address = strings.ToLower(address)
	exclude := strings.ToLower(excludeTxHash)

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var best *domain.RawLog
	for _, l := range s.db.logs {
		if l.Address != address || l.Topic0() != topic0 || l.TransactionHash == exclude {
			continue
		}
		if !l.Position().Before(pos) {
			continue
		}
		if best == nil || best.Position().Before(l.Position()) {
			best = l
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// SwapActivity aggregates logs with any of topics per emitting address.
func (s *LogStore) SwapActivity(_ context.Context, topics, addresses []string, since24h, since7d int64) ([]domain.PoolActivity, error) {
	if len(topics) == 0 || len(addresses) == 0 {
		return nil, nil
	}
	topicSet := set(topics, false)
	addrSet := set(addresses, true)

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	byAddr := make(map[string]*domain.PoolActivity)
	for _, l := range s.db.logs {
		if _, ok := topicSet[l.Topic0()]; !ok {
			continue
		}
		if _, ok := addrSet[l.Address]; !ok {
			continue
		}
		a, ok := byAddr[l.Address]
		if !ok {
			a = &domain.PoolActivity{Address: l.Address}
			byAddr[l.Address] = a
		}
		if l.BlockTimestamp >= since24h {
			a.Swaps24h++
		}
		if l.BlockTimestamp >= since7d {
			a.Swaps7d++
		}
		if a.LastSwapBlock == nil || l.BlockNumber > *a.LastSwapBlock {
			b := l.BlockNumber
			a.LastSwapBlock = &b
		}
		if a.LastSwapAt == nil || l.BlockTimestamp > *a.LastSwapAt {
			ts := l.BlockTimestamp
			a.LastSwapAt = &ts
		}
	}

	out := make([]domain.PoolActivity, 0, len(byAddr))
	for _, a := range byAddr {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// RawTransactionStore is an in-memory implementation of storage.RawTransactionStore.
type RawTransactionStore struct {
	db *DB
}

// NewRawTransactionStore creates a new in-memory raw transaction store.
func NewRawTransactionStore(db *DB) *RawTransactionStore {
	return &RawTransactionStore{db: db}
}

var _ storage.RawTransactionStore = (*RawTransactionStore)(nil)

// InsertBulk stores transactions by hash. A re-inserted hash replaces the row.
func (s *RawTransactionStore) InsertBulk(_ context.Context, txs []*domain.RawTransaction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, tx := range txs {
		cp := *tx
		cp.Hash = strings.ToLower(cp.Hash)
		cp.FromAddress = strings.ToLower(cp.FromAddress)
		cp.ToAddress = strings.ToLower(cp.ToAddress)
		s.db.rawTxs[cp.Hash] = &cp
	}
	return nil
}

// GetByHashes returns the transactions with the given hashes.
func (s *RawTransactionStore) GetByHashes(_ context.Context, hashes []string) ([]*domain.RawTransaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*domain.RawTransaction
	for _, h := range hashes {
		if tx, ok := s.db.rawTxs[strings.ToLower(h)]; ok {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func set(vals []string, lower bool) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if lower {
			v = strings.ToLower(v)
		}
		out[v] = struct{}{}
	}
	return out
}
