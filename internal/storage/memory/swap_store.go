package memory

import (
	"context"
	"sort"
	"strings"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// UpsertBulk inserts transactions, ignoring existing (chain_id, tx_hash) pairs.
func (s *TransactionStore) UpsertBulk(_ context.Context, txs []*domain.Transaction) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inserted := 0
	for _, t := range txs {
		t.TxHash = strings.ToLower(t.TxHash)
		t.FromAddress = strings.ToLower(t.FromAddress)
		if t.ToAddress != nil {
			to := strings.ToLower(*t.ToAddress)
			t.ToAddress = &to
		}
		if existing := s.findLocked(t.ChainID, t.TxHash); existing != nil {
			t.ID = existing.ID
			continue
		}
		t.ID = s.db.id()
		cp := *t
		s.db.txs[t.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (s *TransactionStore) findLocked(chainID int64, hash string) *domain.Transaction {
	for _, t := range s.db.txs {
		if t.ChainID == chainID && t.TxHash == hash {
			return t
		}
	}
	return nil
}

// GetByHash retrieves a transaction.
func (s *TransactionStore) GetByHash(_ context.Context, chainID int64, hash string) (*domain.Transaction, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	t := s.findLocked(chainID, strings.ToLower(hash))
	if t == nil {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// MaxBlockNumber returns the highest transaction block of the chain.
func (s *TransactionStore) MaxBlockNumber(_ context.Context, chainID int64) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var top int64
	for _, t := range s.db.txs {
		if t.ChainID == chainID && t.BlockNumber > top {
			top = t.BlockNumber
		}
	}
	return top, nil
}

// SwapStore is an in-memory implementation of storage.SwapStore.
type SwapStore struct {
	db *DB
}

// NewSwapStore creates a new in-memory swap store.
func NewSwapStore(db *DB) *SwapStore {
	return &SwapStore{db: db}
}

var _ storage.SwapStore = (*SwapStore)(nil)

type swapKey struct {
	poolID, txID int64
	logIndex     int
}

// UpsertBulk inserts swaps, ignoring existing (pool_id, transaction_id, log_index) keys.
func (s *SwapStore) UpsertBulk(_ context.Context, swaps []*domain.Swap) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing := make(map[swapKey]int64, len(s.db.swaps))
	for id, sw := range s.db.swaps {
		existing[swapKey{sw.PoolID, sw.TransactionID, sw.LogIndex}] = id
	}

	inserted := 0
	for _, sw := range swaps {
		if sw == nil || sw.PoolID == 0 || sw.TransactionID == 0 {
			return inserted, storage.ErrInvalidInput
		}
		k := swapKey{sw.PoolID, sw.TransactionID, sw.LogIndex}
		if id, ok := existing[k]; ok {
			sw.ID = id
			continue
		}
		sw.ID = s.db.id()
		cp := *sw
		s.db.swaps[sw.ID] = &cp
		existing[k] = sw.ID
		inserted++
	}
	return inserted, nil
}

// ListLegs returns the swaps of a pool in blocks [fromBlock, toBlock] in total order.
func (s *SwapStore) ListLegs(_ context.Context, poolID, fromBlock, toBlock int64) ([]*domain.SwapLeg, error) {
	return s.legs(poolID, func(l *domain.SwapLeg) bool {
		b := l.Position.BlockNumber
		return b >= fromBlock && b <= toBlock
	}), nil
}

// LatestStateBefore returns the last v3 state swap of a pool strictly before pos.
func (s *SwapStore) LatestStateBefore(_ context.Context, poolID int64, pos domain.Position, excludeTxHash string) (*domain.SwapLeg, error) {
	exclude := strings.ToLower(excludeTxHash)
	legs := s.legs(poolID, func(l *domain.SwapLeg) bool {
		return l.SqrtPriceX96 != nil && l.Liquidity != nil && l.Position.Before(pos) && l.TxHash != exclude
	})
	if len(legs) == 0 {
		return nil, storage.ErrNotFound
	}
	return legs[len(legs)-1], nil
}

// LatestPricedAtOrBefore returns the last swap at or before block carrying a sqrt price or tick.
func (s *SwapStore) LatestPricedAtOrBefore(_ context.Context, poolID int64, block int64) (*domain.SwapLeg, error) {
	legs := s.legs(poolID, func(l *domain.SwapLeg) bool {
		return (l.SqrtPriceX96 != nil || l.Tick != nil) && l.Position.BlockNumber <= block
	})
	if len(legs) == 0 {
		return nil, storage.ErrNotFound
	}
	return legs[len(legs)-1], nil
}

func (s *SwapStore) legs(poolID int64, keep func(*domain.SwapLeg) bool) []*domain.SwapLeg {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*domain.SwapLeg
	for _, sw := range s.db.swaps {
		if sw.PoolID != poolID {
			continue
		}
		if l := s.db.leg(sw); keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position.Before(out[j].Position) })
	return out
}
