// Package pricing converts raw token amounts and gas costs to USD using a
// native/USD price read from a reference pool at a historical block.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sandwich-scan/internal/amm"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// NativeDecimals is the decimals of every EVM native coin.
const NativeDecimals = 18

// Price sources
const (
	SourceV3Swap  = "v3_swap"
	SourceV3Slot0 = "v3_slot0"
	SourceV2      = "v2_reserves"
)

// NodeReader reads pool state at a historical block. evm.Client satisfies it.
type NodeReader interface {
	Slot0(ctx context.Context, pool string, block int64) (*big.Int, int, error)
	GetReserves(ctx context.Context, pair string, block int64) (*big.Int, *big.Int, error)
}

// SwapPriceSource finds the latest ingested swap carrying v3 price state.
type SwapPriceSource interface {
	LatestPricedAtOrBefore(ctx context.Context, poolID int64, block int64) (*domain.SwapLeg, error)
}

// Options configures the Oracle.
type Options struct {
	Wrapped storage.WrappedNativeTokenStore
	Pools   storage.PoolStore
	Tokens  storage.TokenStore
	Swaps   SwapPriceSource
	Node    NodeReader // optional
	Cache   Cache      // defaults to a MemoryCache
	Logger  *zap.Logger
}

// Oracle prices the native coin in USD.
type Oracle struct {
	wrapped storage.WrappedNativeTokenStore
	pools   storage.PoolStore
	tokens  storage.TokenStore
	swaps   SwapPriceSource
	node    NodeReader
	cache   Cache
	log     *zap.Logger
}

// NewOracle creates an Oracle.
func NewOracle(opts Options) *Oracle {
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Oracle{
		wrapped: opts.Wrapped,
		pools:   opts.Pools,
		tokens:  opts.Tokens,
		swaps:   opts.Swaps,
		node:    opts.Node,
		cache:   opts.Cache,
		log:     opts.Logger.Named("pricing"),
	}
}

// NativeUSD returns the USD price of one native coin at block, from the chain's
// v3 reference pool when possible and its v2 pool otherwise. Returns an error
// matching storage.ErrUnavailable when no configured pool can answer.
func (o *Oracle) NativeUSD(ctx context.Context, chainID, block int64) (decimal.Decimal, error) {
	key := fmt.Sprintf("%d:%d", chainID, block)
	if p, ok, err := o.cache.Get(ctx, key); err != nil {
		o.log.Warn("price cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return p, nil
	}

	w, err := o.wrapped.GetByChain(ctx, chainID)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: no wrapped native token for chain %d", storage.ErrUnavailable, chainID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get wrapped native token: %w", err)
	}

	price, source, err := o.fromV3(ctx, w, block)
	if errors.Is(err, storage.ErrUnavailable) {
		price, source, err = o.fromV2(ctx, w, block)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if err := o.cache.Set(ctx, key, price); err != nil {
		o.log.Warn("price cache set failed", zap.String("key", key), zap.Error(err))
	}
	o.log.Debug("native price",
		zap.Int64("chain_id", chainID),
		zap.Int64("block", block),
		zap.String("source", source),
		zap.String("usd", price.String()))
	return price, nil
}

// refPool loads a reference pool and its decimals. Pools created after block
// are unavailable.
func (o *Oracle) refPool(ctx context.Context, id *int64, block int64) (*domain.Pool, int, int, error) {
	if id == nil {
		return nil, 0, 0, storage.ErrUnavailable
	}
	pool, err := o.pools.GetByID(ctx, *id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, 0, fmt.Errorf("%w: reference pool %d missing", storage.ErrUnavailable, *id)
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("get reference pool: %w", err)
	}
	if pool.CreatedBlockNumber > block {
		return nil, 0, 0, fmt.Errorf("%w: reference pool %d created at %d after block %d",
			storage.ErrUnavailable, pool.ID, pool.CreatedBlockNumber, block)
	}

	d0, err := o.decimals(ctx, pool.Token0ID)
	if err != nil {
		return nil, 0, 0, err
	}
	d1, err := o.decimals(ctx, pool.Token1ID)
	if err != nil {
		return nil, 0, 0, err
	}
	return pool, d0, d1, nil
}

func (o *Oracle) decimals(ctx context.Context, tokenID int64) (int, error) {
	t, err := o.tokens.GetByID(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("get token %d: %w", tokenID, err)
	}
	return t.Decimals, nil
}

func (o *Oracle) fromV3(ctx context.Context, w *domain.WrappedNativeToken, block int64) (decimal.Decimal, string, error) {
	pool, d0, d1, err := o.refPool(ctx, w.USDV3PoolID, block)
	if err != nil {
		return decimal.Zero, "", err
	}
	nativeIsToken0 := pool.Token0ID == w.TokenID

	if o.swaps != nil {
		leg, err := o.swaps.LatestPricedAtOrBefore(ctx, pool.ID, block)
		switch {
		case err == nil:
			if native, err := v3NativePrice(leg.SqrtPriceX96, leg.Tick, d0, d1, nativeIsToken0); err == nil {
				return native, SourceV3Swap, nil
			}
		case !errors.Is(err, storage.ErrNotFound):
			return decimal.Zero, "", fmt.Errorf("get latest priced swap: %w", err)
		}
	}

	if o.node == nil {
		return decimal.Zero, "", fmt.Errorf("%w: no ingested price for pool %d", storage.ErrUnavailable, pool.ID)
	}
	sqrt, tick, err := o.node.Slot0(ctx, pool.Address, block)
	if err != nil {
		o.log.Warn("slot0 failed", zap.String("pool", pool.Address), zap.Int64("block", block), zap.Error(err))
		return decimal.Zero, "", fmt.Errorf("%w: slot0: %v", storage.ErrUnavailable, err)
	}
	native, err := v3NativePrice(sqrt, &tick, d0, d1, nativeIsToken0)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: slot0 price: %v", storage.ErrUnavailable, err)
	}
	return native, SourceV3Slot0, nil
}

// v3NativePrice prefers the sqrt price and falls back to the tick.
func v3NativePrice(sqrt *big.Int, tick *int, d0, d1 int, nativeIsToken0 bool) (decimal.Decimal, error) {
	var (
		p   decimal.Decimal
		err error
	)
	switch {
	case sqrt != nil && sqrt.Sign() > 0:
		p, err = amm.PriceFromSqrtPriceX96(sqrt, d0, d1)
	case tick != nil:
		p, err = amm.PriceFromTick(*tick, d0, d1)
	default:
		err = amm.ErrInvalidPrice
	}
	if err != nil {
		return decimal.Zero, err
	}
	return amm.BasePrice(p, nativeIsToken0)
}

func (o *Oracle) fromV2(ctx context.Context, w *domain.WrappedNativeToken, block int64) (decimal.Decimal, string, error) {
	pool, d0, d1, err := o.refPool(ctx, w.USDV2PoolID, block)
	if err != nil {
		return decimal.Zero, "", err
	}
	if o.node == nil {
		return decimal.Zero, "", fmt.Errorf("%w: no node for v2 reserves", storage.ErrUnavailable)
	}

	r0, r1, err := o.node.GetReserves(ctx, pool.Address, block)
	if err != nil {
		o.log.Warn("getReserves failed", zap.String("pool", pool.Address), zap.Int64("block", block), zap.Error(err))
		return decimal.Zero, "", fmt.Errorf("%w: getReserves: %v", storage.ErrUnavailable, err)
	}
	p, err := amm.PriceFromReserves(r0, r1, d0, d1)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: reserves price: %v", storage.ErrUnavailable, err)
	}
	native, err := amm.BasePrice(p, pool.Token0ID == w.TokenID)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: reserves price: %v", storage.ErrUnavailable, err)
	}
	return native, SourceV2, nil
}

// BaseUSD returns the USD price of one whole base token: 1 for registered
// stable coins, the native price for the wrapped native token. Any other token
// is unavailable.
func (o *Oracle) BaseUSD(ctx context.Context, chainID, baseTokenID, block int64) (decimal.Decimal, error) {
	stables, err := o.tokens.ListStableCoins(ctx, chainID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list stable coins: %w", err)
	}
	for _, sc := range stables {
		if sc.TokenID == baseTokenID {
			return decimal.NewFromInt(1), nil
		}
	}

	w, err := o.wrapped.GetByChain(ctx, chainID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("get wrapped native token: %w", err)
	}
	if w != nil && w.TokenID == baseTokenID {
		return o.NativeUSD(ctx, chainID, block)
	}
	return decimal.Zero, fmt.Errorf("%w: base token %d has no USD price", storage.ErrUnavailable, baseTokenID)
}

// divPlaces is the scale kept when dividing by a USD price.
const divPlaces = 40

// WeiToUSD converts a wei amount to USD: (wei / 1e18) * nativeUSD.
func WeiToUSD(wei *big.Int, nativeUSD decimal.Decimal) decimal.Decimal {
	if wei == nil || wei.Sign() <= 0 || nativeUSD.Sign() <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals).Mul(nativeUSD)
}

// GasToBase converts a gas cost in wei to raw base units:
// usd = (wei / 1e18) * nativeUSD, then usd / baseUSD * 10^baseDecimals, floored.
func GasToBase(wei *big.Int, nativeUSD, baseUSD decimal.Decimal, baseDecimals int) *big.Int {
	if baseUSD.Sign() <= 0 {
		return new(big.Int)
	}
	usd := WeiToUSD(wei, nativeUSD)
	raw := usd.DivRound(baseUSD, divPlaces).Shift(int32(baseDecimals))
	return amm.FloorRaw(raw)
}

// ToUSD converts raw base units to USD, rounded half-even to 18 places.
func ToUSD(raw *big.Int, decimals int, baseUSD decimal.Decimal) decimal.Decimal {
	if raw == nil || raw.Sign() == 0 {
		return decimal.Zero
	}
	whole := decimal.NewFromBigInt(raw, int32(-decimals))
	return amm.RoundBank(whole.Mul(baseUSD), amm.DisplayPlaces)
}
