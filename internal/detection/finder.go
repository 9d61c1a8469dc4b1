package detection

import (
	"context"
	"fmt"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/sandwich"
	"sandwich-scan/internal/storage"
)

// MatcherFinder finds candidates in process: it loads a window's legs and
// runs sandwich.Match over them. It is the alternative to the SQL self-join
// of postgres.CandidateFinder and works on any SwapStore.
type MatcherFinder struct {
	swaps storage.SwapStore
}

// NewMatcherFinder creates a finder reading legs from swaps.
func NewMatcherFinder(swaps storage.SwapStore) *MatcherFinder {
	return &MatcherFinder{swaps: swaps}
}

var _ storage.CandidateFinder = (*MatcherFinder)(nil)

// FindCandidates matches the legs of blocks [p.FrontFrom, toBlock].
func (f *MatcherFinder) FindCandidates(ctx context.Context, p sandwich.Params, toBlock int64) ([]*domain.Candidate, error) {
	legs, err := f.swaps.ListLegs(ctx, p.PoolID, p.FrontFrom, toBlock)
	if err != nil {
		return nil, fmt.Errorf("list legs: %w", err)
	}
	cands, err := sandwich.Match(legs, p)
	if err != nil {
		return nil, fmt.Errorf("match legs: %w", err)
	}
	return cands, nil
}
