package sandwich

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
)

const (
	usdc int64 = 1
	tok  int64 = 2
)

func leg(id, block int64, txIndex int, actor string, a0in, a1in, a0out, a1out int64) *domain.SwapLeg {
	return &domain.SwapLeg{
		SwapID:     id,
		PoolID:     7,
		Position:   domain.Position{BlockNumber: block, TxIndex: txIndex, LogIndex: txIndex * 10},
		TxHash:     "0xtx" + big.NewInt(id).String(),
		Actor:      actor,
		Amount0In:  big.NewInt(a0in),
		Amount1In:  big.NewInt(a1in),
		Amount0Out: big.NewInt(a0out),
		Amount1Out: big.NewInt(a1out),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func baseToken0Params() Params {
	return Params{PoolID: 7, Token0ID: usdc, Token1ID: tok, BaseTokenID: usdc, MaxBlockGap: 2}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		leg  *domain.SwapLeg
		want Direction
	}{
		{"token0 to token1", leg(1, 1, 0, "x", 100, 0, 0, 50), ZeroForOne},
		{"token1 to token0", leg(1, 1, 0, "x", 0, 100, 50, 0), OneForZero},
		{"two inputs", leg(1, 1, 0, "x", 100, 100, 0, 50), Ambiguous},
		{"input and output same side", leg(1, 1, 0, "x", 100, 0, 10, 50), Ambiguous},
		{"all zero", leg(1, 1, 0, "x", 0, 0, 0, 0), Ambiguous},
		{"input only", leg(1, 1, 0, "x", 100, 0, 0, 0), Ambiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.leg))
		})
	}
}

func TestClassify_NilAmounts(t *testing.T) {
	l := &domain.SwapLeg{Amount0In: big.NewInt(5), Amount1Out: big.NewInt(3)}
	assert.Equal(t, ZeroForOne, Classify(l))
}

func TestMatch_Scenario(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "0xAttacker", 1000, 0, 0, 10),
		leg(2, 100, 1, "0xvictim", 100, 0, 0, 1),
		leg(3, 101, 0, "0xattacker", 0, 10, 1005, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, domain.TripletKey{FrontSwapID: 1, VictimSwapID: 2, BackSwapID: 3}, c.Key())
	assert.Equal(t, int64(5), c.RevenueBaseRaw.Int64())
	assert.Equal(t, "0xattacker", c.AttackerAddress)
	assert.Equal(t, "0xvictim", c.VictimAddress)
	assert.Equal(t, int64(100), c.VictimBaseSizeRaw.Int64())
	assert.Equal(t, usdc, c.BaseTokenID)
}

func TestMatch_BaseIsToken1(t *testing.T) {
	params := Params{PoolID: 7, Token0ID: tok, Token1ID: usdc, BaseTokenID: usdc, MaxBlockGap: 2}
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 0, 1000, 10, 0),
		leg(2, 100, 1, "v", 0, 100, 1, 0),
		leg(3, 100, 2, "a", 10, 0, 0, 990),
	}

	got, err := Match(legs, params)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].RevenueBaseRaw.Sign(), "a losing round trip records zero revenue")
}

func TestMatch_EarliestBackIsChosen(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 100, 1, "v", 100, 0, 0, 1),
		leg(3, 100, 2, "a", 0, 5, 510, 0),
		leg(4, 100, 3, "v2", 100, 0, 0, 1),
		leg(5, 101, 0, "a", 0, 5, 520, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Back.SwapID)
	assert.Equal(t, int64(2), got[0].Victim.SwapID)
}

func TestMatch_MultipleVictims(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 100, 1, "v1", 100, 0, 0, 1),
		leg(3, 100, 2, "v2", 200, 0, 0, 2),
		leg(4, 100, 3, "v3", 0, 1, 90, 0), // opposite direction, not a victim
		leg(5, 100, 4, "a", 0, 10, 1100, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Victim.SwapID)
	assert.Equal(t, int64(3), got[1].Victim.SwapID)
	assert.Equal(t, int64(100), got[0].RevenueBaseRaw.Int64())
}

func TestMatch_BlockGapExceeded(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 101, 0, "v", 100, 0, 0, 1),
		leg(3, 103, 0, "a", 0, 10, 1005, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_GapBoundaryIsInclusive(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 101, 0, "v", 100, 0, 0, 1),
		leg(3, 102, 0, "a", 0, 10, 1005, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMatch_VictimSameActorExcluded(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 100, 1, "A", 100, 0, 0, 1),
		leg(3, 100, 2, "a", 0, 10, 1005, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_AmbiguousSwapsIgnored(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 5, 0, 10),
		leg(2, 100, 1, "v", 100, 0, 0, 1),
		leg(3, 100, 2, "a", 0, 10, 1005, 0),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_FrontMustSellBase(t *testing.T) {
	// a buys base first and sells it back: not a base round trip
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 0, 10, 1000, 0),
		leg(2, 100, 1, "v", 0, 1, 100, 0),
		leg(3, 100, 2, "a", 1005, 0, 0, 10),
	}

	got, err := Match(legs, baseToken0Params())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatch_TokenIDs(t *testing.T) {
	t.Run("victim ids contradict front", func(t *testing.T) {
		legs := []*domain.SwapLeg{
			leg(1, 100, 0, "a", 1000, 0, 0, 10),
			leg(2, 100, 1, "v", 100, 0, 0, 1),
			leg(3, 100, 2, "a", 0, 10, 1005, 0),
		}
		legs[0].SellTokenID, legs[0].BuyTokenID = ptr(usdc), ptr(tok)
		legs[1].SellTokenID, legs[1].BuyTokenID = ptr(tok), ptr(usdc)

		got, err := Match(legs, baseToken0Params())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("sell equals buy is never a leg", func(t *testing.T) {
		legs := []*domain.SwapLeg{
			leg(1, 100, 0, "a", 1000, 0, 0, 10),
			leg(2, 100, 1, "v", 100, 0, 0, 1),
			leg(3, 100, 2, "a", 0, 10, 1005, 0),
		}
		legs[0].SellTokenID, legs[0].BuyTokenID = ptr(usdc), ptr(usdc)

		got, err := Match(legs, baseToken0Params())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("resolved ids agree", func(t *testing.T) {
		legs := []*domain.SwapLeg{
			leg(1, 100, 0, "a", 1000, 0, 0, 10),
			leg(2, 100, 1, "v", 100, 0, 0, 1),
			leg(3, 100, 2, "a", 0, 10, 1005, 0),
		}
		legs[0].SellTokenID, legs[0].BuyTokenID = ptr(usdc), ptr(tok)
		legs[1].SellTokenID, legs[1].BuyTokenID = ptr(usdc), ptr(tok)
		legs[2].SellTokenID, legs[2].BuyTokenID = ptr(tok), ptr(usdc)

		got, err := Match(legs, baseToken0Params())
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("one side unresolved falls back to amounts", func(t *testing.T) {
		legs := []*domain.SwapLeg{
			leg(1, 100, 0, "a", 1000, 0, 0, 10),
			leg(2, 100, 1, "v", 100, 0, 0, 1),
			leg(3, 100, 2, "a", 0, 10, 1005, 0),
		}
		legs[0].SellTokenID, legs[0].BuyTokenID = ptr(usdc), ptr(tok)

		got, err := Match(legs, baseToken0Params())
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestMatch_MinVictimBase(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 100, 1, "v", 100, 0, 0, 1),
		leg(3, 100, 2, "a", 0, 10, 1005, 0),
	}

	params := baseToken0Params()
	params.MinVictimBaseRaw = big.NewInt(100)

	got, err := Match(legs, params)
	require.NoError(t, err)
	assert.Empty(t, got, "threshold is exclusive")

	params.MinVictimBaseRaw = big.NewInt(99)
	got, err = Match(legs, params)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMatch_FrontWindow(t *testing.T) {
	legs := []*domain.SwapLeg{
		leg(1, 100, 0, "a", 1000, 0, 0, 10),
		leg(2, 101, 0, "v", 100, 0, 0, 1),
		leg(3, 102, 0, "a", 0, 10, 1005, 0),
	}

	params := baseToken0Params()
	params.FrontFrom, params.FrontTo = 101, 200

	got, err := Match(legs, params)
	require.NoError(t, err)
	assert.Empty(t, got, "front outside the core window belongs to another window")

	params.FrontFrom, params.FrontTo = 0, 100
	got, err = Match(legs, params)
	require.NoError(t, err)
	assert.Len(t, got, 1, "back may lie past FrontTo")
}

func TestMatch_Errors(t *testing.T) {
	params := baseToken0Params()
	params.BaseTokenID = 99

	_, err := Match(nil, params)
	assert.ErrorIs(t, err, ErrBaseNotInPool)

	legs := []*domain.SwapLeg{
		leg(1, 100, 1, "a", 1000, 0, 0, 10),
		leg(2, 100, 1, "v", 100, 0, 0, 1),
	}
	_, err = Match(legs, baseToken0Params())
	assert.ErrorIs(t, err, ErrInvalidOrdering)
}

func TestMatch_EmptyPool(t *testing.T) {
	got, err := Match(nil, baseToken0Params())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRevenue(t *testing.T) {
	front := leg(1, 1, 0, "a", 1000, 0, 0, 10)
	back := leg(2, 1, 1, "a", 0, 10, 1005, 0)

	assert.Equal(t, int64(5), Revenue(front, back, true).Int64())

	back.Amount0Out = big.NewInt(900)
	assert.Equal(t, int64(0), Revenue(front, back, true).Int64())
}
