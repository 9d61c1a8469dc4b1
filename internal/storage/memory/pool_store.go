package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	db *DB
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore(db *DB) *PoolStore {
	return &PoolStore{db: db}
}

var _ storage.PoolStore = (*PoolStore)(nil)

// UpsertBulk inserts pools, ignoring existing (chain_id, address) pairs.
func (s *PoolStore) UpsertBulk(_ context.Context, pools []*domain.Pool) (int, error) {
	for _, p := range pools {
		if p.Token0ID == p.Token1ID {
			return 0, fmt.Errorf("pool %s: %w: token0 equals token1", p.Address, storage.ErrInvalidInput)
		}
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inserted := 0
	for _, p := range pools {
		p.Address = strings.ToLower(p.Address)
		if existing := s.findLocked(p.ChainID, p.Address); existing != nil {
			p.ID = existing.ID
			continue
		}
		if p.FeePips == 0 {
			p.FeePips = domain.DefaultFeePips
		}
		p.ID = s.db.id()
		cp := *p
		s.db.pools[p.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (s *PoolStore) findLocked(chainID int64, address string) *domain.Pool {
	for _, p := range s.db.pools {
		if p.ChainID == chainID && p.Address == address {
			return p
		}
	}
	return nil
}

// GetByID retrieves a pool.
func (s *PoolStore) GetByID(_ context.Context, id int64) (*domain.Pool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	p, ok := s.db.pools[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByAddress retrieves a pool by address.
func (s *PoolStore) GetByAddress(_ context.Context, chainID int64, address string) (*domain.Pool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	p := s.findLocked(chainID, strings.ToLower(address))
	if p == nil {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListByChain returns every pool of a chain ordered by id ASC.
func (s *PoolStore) ListByChain(_ context.Context, chainID int64) ([]*domain.Pool, error) {
	return s.list(func(p *domain.Pool) bool { return p.ChainID == chainID }, func(a, b *domain.Pool) bool {
		return a.ID < b.ID
	}), nil
}

// ListActive returns active pools with activity_score >= minScore, most active first.
func (s *PoolStore) ListActive(_ context.Context, chainID int64, minScore int64) ([]*domain.Pool, error) {
	keep := func(p *domain.Pool) bool {
		return p.ChainID == chainID && p.IsActive && p.ActivityScore >= minScore
	}
	less := func(a, b *domain.Pool) bool {
		if a.ActivityScore != b.ActivityScore {
			return a.ActivityScore > b.ActivityScore
		}
		return a.ID < b.ID
	}
	return s.list(keep, less), nil
}

func (s *PoolStore) list(keep func(*domain.Pool) bool, less func(a, b *domain.Pool) bool) []*domain.Pool {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*domain.Pool
	for _, p := range s.db.pools {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// UpdateActivity writes the activity counters and score of a pool.
func (s *PoolStore) UpdateActivity(_ context.Context, poolID int64, a domain.PoolActivity, score int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.pools[poolID]
	if !ok {
		return storage.ErrNotFound
	}
	p.ActivityScore = score
	p.Swaps24h = a.Swaps24h
	p.Swaps7d = a.Swaps7d
	if a.LastSwapBlock != nil {
		b := *a.LastSwapBlock
		p.LastSwapBlock = &b
	}
	if a.LastSwapAt != nil {
		t := time.Unix(*a.LastSwapAt, 0).UTC()
		p.LastSwapAt = &t
	}
	return nil
}
