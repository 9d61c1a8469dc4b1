package memory

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// SandwichAttackStore is an in-memory implementation of storage.SandwichAttackStore.
type SandwichAttackStore struct {
	db *DB
}

// NewSandwichAttackStore creates a new in-memory sandwich attack store.
func NewSandwichAttackStore(db *DB) *SandwichAttackStore {
	return &SandwichAttackStore{db: db}
}

var _ storage.SandwichAttackStore = (*SandwichAttackStore)(nil)

// InsertIgnore inserts attacks, skipping existing triplet keys.
func (s *SandwichAttackStore) InsertIgnore(_ context.Context, attacks []*domain.SandwichAttack) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing := make(map[domain.TripletKey]struct{}, len(s.db.attacks))
	for _, a := range s.db.attacks {
		existing[a.Key()] = struct{}{}
	}

	inserted := 0
	for _, a := range attacks {
		if a == nil {
			return inserted, storage.ErrInvalidInput
		}
		if _, ok := existing[a.Key()]; ok {
			continue
		}

		cp := *a
		cp.ID = s.db.id()
		cp.CreatedAt = time.Now().UTC()
		cp.Valuation = domain.Valuation{
			RevenueBaseRaw:    nonNil(a.RevenueBaseRaw),
			GasFeeWeiAttacker: new(big.Int),
			GasFeeBaseRaw:     new(big.Int),
			ProfitBaseRaw:     nonNil(a.RevenueBaseRaw),
			HarmBaseRaw:       new(big.Int),
		}
		cp.VictimBaseSizeRaw = nonNil(a.VictimBaseSizeRaw)
		s.db.attacks[cp.ID] = &cp
		existing[cp.Key()] = struct{}{}
		inserted++
	}
	return inserted, nil
}

// GetByKey retrieves an attack by triplet key.
func (s *SandwichAttackStore) GetByKey(_ context.Context, key domain.TripletKey) (*domain.SandwichAttack, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, a := range s.db.attacks {
		if a.Key() == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListByPool returns the attacks of a pool ordered by id ASC.
func (s *SandwichAttackStore) ListByPool(_ context.Context, poolID int64) ([]*domain.SandwichAttack, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*domain.SandwichAttack
	for _, a := range s.sortedLocked() {
		if a.PoolID == poolID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListForValuation returns one page of flat valuation inputs.
func (s *SandwichAttackStore) ListForValuation(_ context.Context, afterID int64, limit int, includeValued bool) ([]*domain.ValuationInput, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*domain.ValuationInput
	for _, a := range s.sortedLocked() {
		if a.ID <= afterID || (!includeValued && a.ValuedAt != nil) {
			continue
		}
		pool := s.db.pools[a.PoolID]
		base := s.db.tokens[a.BaseTokenID]
		front, victim, back := s.db.swaps[a.FrontSwapID], s.db.swaps[a.VictimSwapID], s.db.swaps[a.BackSwapID]
		if pool == nil || base == nil || front == nil || victim == nil || back == nil {
			continue
		}
		other := s.db.tokens[pool.Other(a.BaseTokenID)]
		if other == nil {
			continue
		}

		out = append(out, &domain.ValuationInput{
			AttackID:      a.ID,
			ChainID:       a.ChainID,
			BaseTokenID:   a.BaseTokenID,
			Pool:          *pool,
			BaseDecimals:  base.Decimals,
			OtherDecimals: other.Decimals,
			Front:         *s.db.leg(front),
			Victim:        *s.db.leg(victim),
			Back:          *s.db.leg(back),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// UpdateValuation writes the economic fields of one attack.
func (s *SandwichAttackStore) UpdateValuation(_ context.Context, id int64, v *domain.Valuation) error {
	if v == nil {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.attacks[id]
	if !ok {
		return storage.ErrNotFound
	}

	valuedAt := time.Now().UTC()
	if v.ValuedAt != nil {
		valuedAt = *v.ValuedAt
	}
	a.Valuation = domain.Valuation{
		RevenueBaseRaw:    nonNil(v.RevenueBaseRaw),
		GasFeeWeiAttacker: nonNil(v.GasFeeWeiAttacker),
		GasFeeBaseRaw:     nonNil(v.GasFeeBaseRaw),
		ProfitBaseRaw:     nonNil(v.ProfitBaseRaw),
		HarmBaseRaw:       nonNil(v.HarmBaseRaw),
		GasFeeUSD:         v.GasFeeUSD,
		RevenueUSD:        v.RevenueUSD,
		ProfitUSD:         v.ProfitUSD,
		HarmUSD:           v.HarmUSD,
		GasPriced:         v.GasPriced,
		HarmPriced:        v.HarmPriced,
		USDPriced:         v.USDPriced,
		ValuedAt:          &valuedAt,
	}
	return nil
}

// MonthlySummary aggregates attacks by UTC month of the victim block time.
func (s *SandwichAttackStore) MonthlySummary(_ context.Context, chainID int64, from, to time.Time) ([]*domain.MonthlySummary, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	type acc struct {
		m      *domain.MonthlySummary
		pools  map[int64]struct{}
		actors map[string]struct{}
	}
	byMonth := make(map[time.Time]*acc)

	for _, a := range s.db.attacks {
		if a.ChainID != chainID || a.BlockTimestamp < from.Unix() || a.BlockTimestamp >= to.Unix() {
			continue
		}
		ts := time.Unix(a.BlockTimestamp, 0).UTC()
		month := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)

		g, ok := byMonth[month]
		if !ok {
			g = &acc{
				m: &domain.MonthlySummary{
					Month: month, RevenueUSD: decimal.Zero, ProfitUSD: decimal.Zero,
					HarmUSD: decimal.Zero, GasFeeUSD: decimal.Zero,
				},
				pools:  make(map[int64]struct{}),
				actors: make(map[string]struct{}),
			}
			byMonth[month] = g
		}

		g.m.Attacks++
		if a.ValuedAt != nil {
			g.m.Valued++
		}
		if a.USDPriced {
			g.m.RevenueUSD = g.m.RevenueUSD.Add(a.RevenueUSD)
			g.m.ProfitUSD = g.m.ProfitUSD.Add(a.ProfitUSD)
			if a.HarmPriced {
				g.m.HarmUSD = g.m.HarmUSD.Add(a.HarmUSD)
			}
			if a.GasPriced {
				g.m.GasFeeUSD = g.m.GasFeeUSD.Add(a.GasFeeUSD)
			}
		}
		g.pools[a.PoolID] = struct{}{}
		g.actors[a.AttackerAddress] = struct{}{}
	}

	out := make([]*domain.MonthlySummary, 0, len(byMonth))
	for _, g := range byMonth {
		g.m.UniquePools = int64(len(g.pools))
		g.m.UniqueActors = int64(len(g.actors))
		out = append(out, g.m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s *SandwichAttackStore) sortedLocked() []*domain.SandwichAttack {
	out := make([]*domain.SandwichAttack, 0, len(s.db.attacks))
	for _, a := range s.db.attacks {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func nonNil(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
