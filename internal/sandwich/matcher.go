package sandwich

import (
	"errors"
	"math/big"
	"strings"

	"sandwich-scan/internal/domain"
)

// ErrBaseNotInPool is returned when the base token is neither token0 nor token1.
var ErrBaseNotInPool = errors.New("base token is not part of the pool")

// Params configures one matching pass over a pool.
type Params struct {
	PoolID      int64
	Token0ID    int64
	Token1ID    int64
	BaseTokenID int64

	// MaxBlockGap bounds block(back) - block(front).
	MaxBlockGap int64

	// MinVictimBaseRaw drops victims whose base-side size is not strictly greater.
	// nil means zero.
	MinVictimBaseRaw *big.Int

	// FrontFrom and FrontTo restrict accepted front-runs to a block range
	// (inclusive). A zero FrontTo accepts every front-run.
	FrontFrom int64
	FrontTo   int64
}

// Match scans legs, which must be in strict total order, and returns every
// (front, victim, back) triplet:
//   - front sells the base token and buys the other token;
//   - back is the earliest later swap of the same actor in the opposite
//     direction within MaxBlockGap blocks;
//   - each victim lies strictly between them, has a different actor, trades
//     in the front's direction and matches its token ids when both are known.
func Match(legs []*domain.SwapLeg, p Params) ([]*domain.Candidate, error) {
	if p.BaseTokenID != p.Token0ID && p.BaseTokenID != p.Token1ID {
		return nil, ErrBaseNotInPool
	}
	if err := ValidateLegOrdering(legs); err != nil {
		return nil, err
	}

	baseIsToken0 := p.BaseTokenID == p.Token0ID
	otherTokenID := p.Token1ID
	if !baseIsToken0 {
		otherTokenID = p.Token0ID
	}
	sell := SellDirection(baseIsToken0)

	minVictim := p.MinVictimBaseRaw
	if minVictim == nil {
		minVictim = new(big.Int)
	}

	var out []*domain.Candidate

	for i, front := range legs {
		if !p.acceptsFront(front.Position.BlockNumber) {
			continue
		}
		if front.Actor == "" || Classify(front) != sell {
			continue
		}
		if !legTokensAre(front, p.BaseTokenID, otherTokenID) {
			continue
		}

		j := findBack(legs, i, p.MaxBlockGap, sell.Opposite(), otherTokenID, p.BaseTokenID)
		if j < 0 {
			continue
		}
		back := legs[j]
		revenue := Revenue(front, back, baseIsToken0)

		for k := i + 1; k < j; k++ {
			victim := legs[k]
			if victim.Actor == "" || strings.EqualFold(victim.Actor, front.Actor) {
				continue
			}
			if Classify(victim) != sell || !legTokensAre(victim, p.BaseTokenID, otherTokenID) {
				continue
			}

			size := VictimBaseSize(victim, baseIsToken0)
			if size.Cmp(minVictim) <= 0 {
				continue
			}

			out = append(out, &domain.Candidate{
				PoolID:            p.PoolID,
				BaseTokenID:       p.BaseTokenID,
				Front:             front,
				Victim:            victim,
				Back:              back,
				AttackerAddress:   strings.ToLower(front.Actor),
				VictimAddress:     strings.ToLower(victim.Actor),
				VictimBaseSizeRaw: size,
				RevenueBaseRaw:    new(big.Int).Set(revenue),
			})
		}
	}

	return out, nil
}

// findBack returns the index of the earliest leg after i by the same actor in
// direction dir within maxGap blocks, or -1.
func findBack(legs []*domain.SwapLeg, i int, maxGap int64, dir Direction, sellTokenID, buyTokenID int64) int {
	front := legs[i]
	for j := i + 1; j < len(legs); j++ {
		cand := legs[j]
		if cand.Position.BlockNumber-front.Position.BlockNumber > maxGap {
			return -1
		}
		if !strings.EqualFold(cand.Actor, front.Actor) {
			continue
		}
		if Classify(cand) != dir || !legTokensAre(cand, sellTokenID, buyTokenID) {
			continue
		}
		return j
	}
	return -1
}

// legTokensAre reports whether the resolved token ids of l do not contradict
// selling sellID for buyID. Unresolved ids fall back to the amount shape.
func legTokensAre(l *domain.SwapLeg, sellID, buyID int64) bool {
	if l.SellTokenID != nil && l.BuyTokenID != nil && *l.SellTokenID == *l.BuyTokenID {
		return false
	}
	if l.SellTokenID != nil && *l.SellTokenID != sellID {
		return false
	}
	if l.BuyTokenID != nil && *l.BuyTokenID != buyID {
		return false
	}
	return true
}

// Revenue is the attacker's closed round-trip gain in base units:
// max(0, back.out_base - front.in_base).
func Revenue(front, back *domain.SwapLeg, baseIsToken0 bool) *big.Int {
	r := new(big.Int).Sub(back.AmountOut(baseIsToken0), front.AmountIn(baseIsToken0))
	if r.Sign() < 0 {
		return new(big.Int)
	}
	return r
}

// VictimBaseSize is the larger of the victim's base-side in and out amounts.
func VictimBaseSize(v *domain.SwapLeg, baseIsToken0 bool) *big.Int {
	in := v.AmountIn(baseIsToken0)
	out := v.AmountOut(baseIsToken0)
	if in.Cmp(out) >= 0 {
		return new(big.Int).Set(in)
	}
	return new(big.Int).Set(out)
}

func (p Params) acceptsFront(block int64) bool {
	if block < p.FrontFrom {
		return false
	}
	return p.FrontTo == 0 || block <= p.FrontTo
}
