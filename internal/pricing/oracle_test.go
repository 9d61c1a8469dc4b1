package pricing

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
	"sandwich-scan/internal/storage/memory"
)

const chainID = 1

type env struct {
	wrapped *memory.WrappedNativeTokenStore
	pools   *memory.PoolStore
	tokens  *memory.TokenStore

	weth, usdc *domain.Token
	v3, v2     *domain.Pool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()
	e := &env{
		wrapped: memory.NewWrappedNativeTokenStore(db),
		pools:   memory.NewPoolStore(db),
		tokens:  memory.NewTokenStore(db),
		weth:    &domain.Token{ChainID: chainID, Address: "0xweth", Symbol: "WETH", Decimals: 18},
		usdc:    &domain.Token{ChainID: chainID, Address: "0xusdc", Symbol: "USDC", Decimals: 6},
	}
	_, err := e.tokens.UpsertBulk(ctx, []*domain.Token{e.weth, e.usdc})
	require.NoError(t, err)
	require.NoError(t, e.tokens.AddStableCoin(ctx, domain.StableCoin{TokenID: e.usdc.ID, Priority: 1}))

	e.v3 = &domain.Pool{ChainID: chainID, Address: "0xv3", Version: domain.PoolVersionV3,
		Token0ID: e.weth.ID, Token1ID: e.usdc.ID, FeePips: 500, CreatedBlockNumber: 100}
	e.v2 = &domain.Pool{ChainID: chainID, Address: "0xv2", Version: domain.PoolVersionV2,
		Token0ID: e.weth.ID, Token1ID: e.usdc.ID, CreatedBlockNumber: 10}
	_, err = e.pools.UpsertBulk(ctx, []*domain.Pool{e.v3, e.v2})
	require.NoError(t, err)

	require.NoError(t, e.wrapped.Upsert(ctx, &domain.WrappedNativeToken{
		ChainID: chainID, TokenID: e.weth.ID, USDV3PoolID: &e.v3.ID, USDV2PoolID: &e.v2.ID,
	}))
	return e
}

func (e *env) oracle(swaps SwapPriceSource, node NodeReader) *Oracle {
	return NewOracle(Options{Wrapped: e.wrapped, Pools: e.pools, Tokens: e.tokens, Swaps: swaps, Node: node})
}

type swapSource struct {
	leg   *domain.SwapLeg
	calls int
}

func (s *swapSource) LatestPricedAtOrBefore(context.Context, int64, int64) (*domain.SwapLeg, error) {
	s.calls++
	if s.leg == nil {
		return nil, storage.ErrNotFound
	}
	return s.leg, nil
}

type node struct {
	sqrt     *big.Int
	r0, r1   *big.Int
	err      error
	slot0s   int
	reserves int
}

func (n *node) Slot0(context.Context, string, int64) (*big.Int, int, error) {
	n.slot0s++
	if n.err != nil || n.sqrt == nil {
		return nil, 0, errors.New("execution reverted")
	}
	return n.sqrt, 0, nil
}

func (n *node) GetReserves(context.Context, string, int64) (*big.Int, *big.Int, error) {
	n.reserves++
	if n.err != nil || n.r0 == nil {
		return nil, nil, errors.New("execution reverted")
	}
	return n.r0, n.r1, nil
}

// sqrtFor returns the sqrtPriceX96 of a token1/token0 raw ratio that is a perfect square.
func sqrtFor(root int64) *big.Int {
	return new(big.Int).Lsh(big.NewInt(root), 96)
}

func TestNativeUSD_FromIngestedSwap(t *testing.T) {
	e := newEnv(t)
	// tick 0: one raw USDC unit per raw WETH unit
	tick := 0
	swaps := &swapSource{leg: &domain.SwapLeg{Tick: &tick}}
	o := e.oracle(swaps, nil)

	p, err := o.NativeUSD(context.Background(), chainID, 500)
	require.NoError(t, err)
	// 1.0001^0 * 10^(18-6)
	assert.Equal(t, "1000000000000", p.String())

	// cached
	_, err = o.NativeUSD(context.Background(), chainID, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, swaps.calls)
}

func TestNativeUSD_Slot0Fallback(t *testing.T) {
	e := newEnv(t)
	n := &node{sqrt: sqrtFor(2)}
	o := e.oracle(&swapSource{}, n)

	p, err := o.NativeUSD(context.Background(), chainID, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, n.slot0s)
	// 4 * 10^12
	assert.Equal(t, "4000000000000", p.String())
}

func TestNativeUSD_V2Fallback(t *testing.T) {
	e := newEnv(t)
	tenEth := new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	n := &node{r0: tenEth, r1: big.NewInt(20_000_000_000)} // 10 WETH, 20000 USDC

	// v3 pool does not exist yet at block 50
	p, err := e.oracle(nil, n).NativeUSD(context.Background(), chainID, 50)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(2000)), p.String())
	assert.Equal(t, 0, n.slot0s)
	assert.Equal(t, 1, n.reserves)
}

func TestNativeUSD_Unavailable(t *testing.T) {
	e := newEnv(t)

	_, err := e.oracle(nil, nil).NativeUSD(context.Background(), chainID, 5)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = e.oracle(nil, &node{err: errors.New("down")}).NativeUSD(context.Background(), chainID, 500)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = e.oracle(nil, nil).NativeUSD(context.Background(), 999, 500)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestBaseUSD(t *testing.T) {
	e := newEnv(t)
	tick := 0
	o := e.oracle(&swapSource{leg: &domain.SwapLeg{Tick: &tick}}, nil)
	ctx := context.Background()

	p, err := o.BaseUSD(ctx, chainID, e.usdc.ID, 500)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(1)))

	p, err = o.BaseUSD(ctx, chainID, e.weth.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000", p.String())

	_, err = o.BaseUSD(ctx, chainID, 12345, 500)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestGasToBase(t *testing.T) {
	// 2 legs * 150000 gas * 20 gwei = 0.006 ETH at 2000 USD = 12 USD
	wei := big.NewInt(2 * 150_000 * 20_000_000_000)
	got := GasToBase(wei, decimal.NewFromInt(2000), decimal.NewFromInt(1), 6)
	assert.Equal(t, int64(12_000_000), got.Int64())

	// wrapped native base: gas in wei is gas in base units
	got = GasToBase(wei, decimal.NewFromInt(2000), decimal.NewFromInt(2000), 18)
	assert.Equal(t, 0, got.Cmp(wei))

	assert.Equal(t, int64(0), GasToBase(wei, decimal.NewFromInt(2000), decimal.Zero, 6).Int64())
}

func TestToUSD(t *testing.T) {
	assert.Equal(t, "12.5", ToUSD(big.NewInt(12_500_000), 6, decimal.NewFromInt(1)).String())
	assert.True(t, ToUSD(nil, 6, decimal.NewFromInt(1)).IsZero())

	// 1 wei at 3000 USD
	got := ToUSD(big.NewInt(1), 18, decimal.NewFromInt(3000))
	assert.Equal(t, "0.000000000000003", got.String())
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", decimal.NewFromInt(1)))
	require.NoError(t, c.Set(ctx, "b", decimal.NewFromInt(2)))
	p, ok, err := c.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(2)))

	// full: cleared before insert
	require.NoError(t, c.Set(ctx, "c", decimal.NewFromInt(3)))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}
