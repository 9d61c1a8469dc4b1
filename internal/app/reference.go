package app

import (
	"context"
	"fmt"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// TokenRef describes a token of a reference catalog.
type TokenRef struct {
	Address  string
	Symbol   string
	Decimals int
}

// PoolRef describes a native/USD reference pool. Token0 and Token1 are
// addresses from the same catalog.
type PoolRef struct {
	Address      string
	Version      domain.PoolVersion
	Token0       string
	Token1       string
	FeePips      int64
	CreatedBlock int64
}

// Reference is the reference data a chain needs before detection and
// valuation can run: a wrapped native token, ranked stable coins and the
// pools that price the native coin in USD.
type Reference struct {
	Chain       domain.Chain
	Wrapped     TokenRef
	StableCoins []TokenRef // ranked, first wins
	USDV3Pool   *PoolRef
	USDV2Pool   *PoolRef
	Factories   []string // Uniswap v2 and v3 factories
}

var (
	mainnetUSDC = TokenRef{Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6}
	mainnetUSDT = TokenRef{Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Decimals: 6}
	mainnetDAI  = TokenRef{Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI", Decimals: 18}
	mainnetWETH = TokenRef{Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Decimals: 18}
)

// References is the built-in catalog, keyed by EIP-155 chain id.
var References = map[int64]Reference{
	1: {
		Chain:       domain.Chain{ChainID: 1, Name: "mainnet", NativeSymbol: "ETH", NativeDecimals: 18},
		Wrapped:     mainnetWETH,
		StableCoins: []TokenRef{mainnetUSDC, mainnetUSDT, mainnetDAI},
		USDV3Pool: &PoolRef{
			Address:      "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640",
			Version:      domain.PoolVersionV3,
			Token0:       mainnetUSDC.Address,
			Token1:       mainnetWETH.Address,
			FeePips:      500,
			CreatedBlock: 12_376_729,
		},
		USDV2Pool: &PoolRef{
			Address:      "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc",
			Version:      domain.PoolVersionV2,
			Token0:       mainnetUSDC.Address,
			Token1:       mainnetWETH.Address,
			FeePips:      domain.DefaultFeePips,
			CreatedBlock: 10_008_355,
		},
		Factories: []string{
			"0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f",
			"0x1f98431c8ad98523631ae4a59f267346ea31f984",
		},
	},
}

// SeedStores are the stores Seed writes to.
type SeedStores struct {
	Chains  storage.ChainStore
	Tokens  storage.TokenStore
	Wrapped storage.WrappedNativeTokenStore
	Pools   storage.PoolStore
}

// Seed writes ref into the stores and returns the stored chain. Existing rows
// are kept, so seeding twice is harmless.
func Seed(ctx context.Context, s SeedStores, ref Reference) (*domain.Chain, error) {
	chain := ref.Chain
	if err := s.Chains.Upsert(ctx, &chain); err != nil {
		return nil, fmt.Errorf("upsert chain: %w", err)
	}

	refs := append([]TokenRef{ref.Wrapped}, ref.StableCoins...)
	tokens := make([]*domain.Token, len(refs))
	ids := make(map[string]int64, len(refs))
	for i, t := range refs {
		tokens[i] = &domain.Token{ChainID: chain.ID, Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}
	}
	if _, err := s.Tokens.UpsertBulk(ctx, tokens); err != nil {
		return nil, fmt.Errorf("upsert tokens: %w", err)
	}
	for _, t := range tokens {
		ids[t.Address] = t.ID
	}

	for i, t := range tokens[1:] {
		if err := s.Tokens.AddStableCoin(ctx, domain.StableCoin{TokenID: t.ID, Priority: i + 1}); err != nil {
			return nil, fmt.Errorf("add stable coin %s: %w", t.Address, err)
		}
	}

	w := &domain.WrappedNativeToken{ChainID: chain.ID, TokenID: ids[ref.Wrapped.Address]}
	var err error
	if w.USDV3PoolID, err = seedPool(ctx, s.Pools, chain.ID, ids, ref.USDV3Pool); err != nil {
		return nil, err
	}
	if w.USDV2PoolID, err = seedPool(ctx, s.Pools, chain.ID, ids, ref.USDV2Pool); err != nil {
		return nil, err
	}
	if err := s.Wrapped.Upsert(ctx, w); err != nil {
		return nil, fmt.Errorf("upsert wrapped native: %w", err)
	}
	return &chain, nil
}

func seedPool(ctx context.Context, pools storage.PoolStore, chainID int64, ids map[string]int64, ref *PoolRef) (*int64, error) {
	if ref == nil {
		return nil, nil
	}
	t0, ok0 := ids[ref.Token0]
	t1, ok1 := ids[ref.Token1]
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("reference pool %s: %w: tokens outside the catalog", ref.Address, storage.ErrInvalidInput)
	}

	p := &domain.Pool{
		ChainID:            chainID,
		Address:            ref.Address,
		Version:            ref.Version,
		Token0ID:           t0,
		Token1ID:           t1,
		FeePips:            ref.FeePips,
		CreatedBlockNumber: ref.CreatedBlock,
		IsActive:           true,
	}
	if _, err := pools.UpsertBulk(ctx, []*domain.Pool{p}); err != nil {
		return nil, fmt.Errorf("upsert reference pool %s: %w", ref.Address, err)
	}
	return &p.ID, nil
}
