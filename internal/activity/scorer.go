// Package activity ranks pools by recent swap activity so detection can
// start with the busiest ones.
package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/storage"
)

// Window constants in seconds.
const (
	Window24h int64 = 86400
	Window72h int64 = 3 * 86400
	Window7d  int64 = 7 * 86400
)

// Config holds the score weights.
type Config struct {
	Weight24h int64 // per swap in the last 24h (default 3)
	Weight7d  int64 // per swap in the last 7d (default 1)
	Bonus24h  int64 // last swap within 24h (default 25)
	Bonus72h  int64 // last swap within 72h (default 10)
	BatchSize int   // pool addresses per warehouse query (default 1000)
}

// DefaultConfig returns the default weights.
func DefaultConfig() Config {
	return Config{
		Weight24h: 3,
		Weight7d:  1,
		Bonus24h:  25,
		Bonus72h:  10,
		BatchSize: storage.DefaultChunkSize,
	}
}

// Score computes the activity score of one pool at Unix time now.
func Score(cfg Config, a domain.PoolActivity, now int64) int64 {
	score := cfg.Weight24h*a.Swaps24h + cfg.Weight7d*a.Swaps7d
	if a.LastSwapAt == nil {
		return score
	}
	switch age := now - *a.LastSwapAt; {
	case age <= Window24h:
		score += cfg.Bonus24h
	case age <= Window72h:
		score += cfg.Bonus72h
	}
	return score
}

// Scorer refreshes pools.activity_score from warehouse swap logs.
type Scorer struct {
	config Config
	logs   storage.LogStore
	pools  storage.PoolStore
	log    *zap.Logger
}

// NewScorer creates a Scorer. A nil logger is replaced by a no-op one.
func NewScorer(config Config, logs storage.LogStore, pools storage.PoolStore, log *zap.Logger) *Scorer {
	if config.BatchSize <= 0 {
		config.BatchSize = storage.DefaultChunkSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{config: config, logs: logs, pools: pools, log: log.Named("activity")}
}

// Result summarizes a scoring pass.
type Result struct {
	Pools  int // pools updated
	Active int // pools with at least one swap in 7d
	Errors []string
}

// ScoreChain updates every pool of a chain as of now. Pools without recent
// swaps are reset to zero counters.
func (s *Scorer) ScoreChain(ctx context.Context, chainID int64, now time.Time) (*Result, error) {
	pools, err := s.pools.ListByChain(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}

	nowUnix := now.Unix()
	result := &Result{}

	for _, ch := range storage.Chunks(len(pools), s.config.BatchSize) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := pools[ch[0]:ch[1]]
		addrs := make([]string, len(batch))
		for i, p := range batch {
			addrs[i] = p.Address
		}

		acts, err := s.logs.SwapActivity(ctx, evm.SwapTopics, addrs, nowUnix-Window24h, nowUnix-Window7d)
		if err != nil {
			return result, fmt.Errorf("aggregate swap activity: %w", err)
		}
		byAddr := make(map[string]domain.PoolActivity, len(acts))
		for _, a := range acts {
			byAddr[strings.ToLower(a.Address)] = a
		}

		for _, p := range batch {
			a := byAddr[p.Address]
			score := Score(s.config, a, nowUnix)
			if err := s.pools.UpdateActivity(ctx, p.ID, a, score); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("pool %d: %v", p.ID, err))
				s.log.Warn("update activity failed", zap.Int64("pool_id", p.ID), zap.Error(err))
				continue
			}
			result.Pools++
			if a.Swaps7d > 0 {
				result.Active++
			}
		}
	}

	s.log.Info("activity scored",
		zap.Int64("chain_id", chainID),
		zap.Int("pools", result.Pools),
		zap.Int("active", result.Active))
	return result, nil
}
