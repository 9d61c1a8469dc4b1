// Package fixtures builds small, deterministic chains of swaps for tests and
// for the demo mode of the binaries.
package fixtures

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/storage"
	"sandwich-scan/internal/storage/memory"
)

// Demo actors
const (
	Attacker = "0x00000000000000000000000000000000000a77ac"
	Victim   = "0x00000000000000000000000000000000000b0b00"
	Trader   = "0x00000000000000000000000000000000000c0ffe"
)

// Time of block 0 in the demo chain. Blocks are 12 s apart.
const GenesisTime = 1_700_000_000

// DemoHorizon is the last block of the demo dataset.
const DemoHorizon = 500

// DemoPeriod returns the month holding the demo dataset as [from, to).
func DemoPeriod() (time.Time, time.Time) {
	t := time.Unix(GenesisTime, 0).UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// Stores are the relational stores a Builder writes to.
type Stores struct {
	Chains  storage.ChainStore
	Tokens  storage.TokenStore
	Wrapped storage.WrappedNativeTokenStore
	Pools   storage.PoolStore
	Txs     storage.TransactionStore
	Swaps   storage.SwapStore
}

// Memory returns Stores backed by db.
func Memory(db *memory.DB) Stores {
	return Stores{
		Chains:  memory.NewChainStore(db),
		Tokens:  memory.NewTokenStore(db),
		Wrapped: memory.NewWrappedNativeTokenStore(db),
		Pools:   memory.NewPoolStore(db),
		Txs:     memory.NewTransactionStore(db),
		Swaps:   memory.NewSwapStore(db),
	}
}

// Options configures the demo pool.
type Options struct {
	Version domain.PoolVersion // default v2
	FeePips int64              // default 3000
}

// Builder holds one chain with a USDC/TOK pool and a WETH token.
// USDC is token0 and a registered stable coin.
type Builder struct {
	stores Stores
	nextTx int

	Chain *domain.Chain
	USDC  *domain.Token
	TOK   *domain.Token
	WETH  *domain.Token
	Pool  *domain.Pool
}

// NewBuilder writes the reference data of the demo chain.
func NewBuilder(ctx context.Context, s Stores, opts Options) (*Builder, error) {
	if opts.Version == "" {
		opts.Version = domain.PoolVersionV2
	}
	if opts.FeePips == 0 {
		opts.FeePips = domain.DefaultFeePips
	}

	b := &Builder{stores: s}
	b.Chain = &domain.Chain{ChainID: 1, Name: "mainnet", NativeSymbol: "ETH", NativeDecimals: 18}
	if err := s.Chains.Upsert(ctx, b.Chain); err != nil {
		return nil, fmt.Errorf("upsert chain: %w", err)
	}

	b.USDC = &domain.Token{ChainID: b.Chain.ID, Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6}
	b.TOK = &domain.Token{ChainID: b.Chain.ID, Address: "0xc0de00000000000000000000000000000000c0de", Symbol: "TOK", Decimals: 18}
	b.WETH = &domain.Token{ChainID: b.Chain.ID, Address: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", Symbol: "WETH", Decimals: 18}
	if _, err := s.Tokens.UpsertBulk(ctx, []*domain.Token{b.USDC, b.TOK, b.WETH}); err != nil {
		return nil, fmt.Errorf("upsert tokens: %w", err)
	}
	if err := s.Tokens.AddStableCoin(ctx, domain.StableCoin{TokenID: b.USDC.ID, Priority: 1}); err != nil {
		return nil, fmt.Errorf("add stable coin: %w", err)
	}
	if err := s.Wrapped.Upsert(ctx, &domain.WrappedNativeToken{ChainID: b.Chain.ID, TokenID: b.WETH.ID}); err != nil {
		return nil, fmt.Errorf("upsert wrapped native: %w", err)
	}

	b.Pool = &domain.Pool{
		ChainID:            b.Chain.ID,
		Address:            "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc",
		Version:            opts.Version,
		Token0ID:           b.USDC.ID,
		Token1ID:           b.TOK.ID,
		FeePips:            opts.FeePips,
		CreatedBlockNumber: 1,
		IsActive:           true,
	}
	if _, err := s.Pools.UpsertBulk(ctx, []*domain.Pool{b.Pool}); err != nil {
		return nil, fmt.Errorf("upsert pool: %w", err)
	}
	return b, nil
}

// Swap describes one swap to record. A zero TxHash gets a fresh transaction.
type Swap struct {
	Block    int64
	TxIndex  int
	LogIndex int
	Actor    string
	TxHash   string

	Amount0In, Amount1In, Amount0Out, Amount1Out int64

	GasUsed  *int64   // default 100000
	GasPrice *big.Int // effective price, default 20 gwei

	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *int
}

// Add records s in the builder's pool and returns the stored swap.
func (b *Builder) Add(ctx context.Context, s Swap) (*domain.Swap, error) {
	return b.AddTo(ctx, b.Pool, s)
}

// AddTo records s in pool.
func (b *Builder) AddTo(ctx context.Context, pool *domain.Pool, s Swap) (*domain.Swap, error) {
	if s.TxHash == "" {
		b.nextTx++
		s.TxHash = fmt.Sprintf("0x%064x", b.nextTx)
	}
	if s.GasUsed == nil {
		g := int64(100_000)
		s.GasUsed = &g
	}
	if s.GasPrice == nil {
		s.GasPrice = big.NewInt(20_000_000_000)
	}

	tx := &domain.Transaction{
		ChainID:              b.Chain.ID,
		TxHash:               s.TxHash,
		BlockNumber:          s.Block,
		TxIndex:              s.TxIndex,
		BlockTimestamp:       GenesisTime + s.Block*12,
		FromAddress:          s.Actor,
		GasUsed:              s.GasUsed,
		EffectiveGasPriceWei: s.GasPrice,
	}
	if _, err := b.stores.Txs.UpsertBulk(ctx, []*domain.Transaction{tx}); err != nil {
		return nil, fmt.Errorf("upsert transaction: %w", err)
	}

	decoded := &evm.DecodedSwap{
		Version:      pool.Version,
		Sender:       s.Actor,
		Recipient:    s.Actor,
		Amount0In:    big.NewInt(s.Amount0In),
		Amount1In:    big.NewInt(s.Amount1In),
		Amount0Out:   big.NewInt(s.Amount0Out),
		Amount1Out:   big.NewInt(s.Amount1Out),
		SqrtPriceX96: s.SqrtPriceX96,
		Liquidity:    s.Liquidity,
		Tick:         s.Tick,
	}
	sw := decoded.ToSwap(pool, tx.ID, s.LogIndex)
	if _, err := b.stores.Swaps.UpsertBulk(ctx, []*domain.Swap{sw}); err != nil {
		return nil, fmt.Errorf("upsert swap: %w", err)
	}
	return sw, nil
}

// Sandwich is the swap ids of the canonical demo attack.
type Sandwich struct {
	Front, Victim, Back int64
}

// LoadDemo records the canonical attack in the builder's pool: the attacker
// buys 10 TOK for 1000 USDC at block 100, the victim buys TOK for 100 USDC
// right after, and the attacker sells the 10 TOK for 1005 USDC at block 101.
// An unrelated trade at block 400 follows. Amounts are raw units.
func (b *Builder) LoadDemo(ctx context.Context) (*Sandwich, error) {
	front, err := b.Add(ctx, Swap{Block: 100, TxIndex: 0, LogIndex: 0, Actor: Attacker, Amount0In: 1000, Amount1Out: 10})
	if err != nil {
		return nil, err
	}
	victim, err := b.Add(ctx, Swap{Block: 100, TxIndex: 1, LogIndex: 3, Actor: Victim, Amount0In: 100, Amount1Out: 1})
	if err != nil {
		return nil, err
	}
	back, err := b.Add(ctx, Swap{Block: 101, TxIndex: 0, LogIndex: 1, Actor: Attacker, Amount1In: 10, Amount0Out: 1005})
	if err != nil {
		return nil, err
	}
	if _, err := b.Add(ctx, Swap{Block: 400, TxIndex: 2, LogIndex: 5, Actor: Trader, Amount1In: 3, Amount0Out: 290}); err != nil {
		return nil, err
	}
	return &Sandwich{Front: front.ID, Victim: victim.ID, Back: back.ID}, nil
}

// ReferenceTick prices WETH at about 2000 USDC in a USDC/WETH pool.
const ReferenceTick = 200_311

// LoadPriceReference registers a v3 USDC/WETH pool as the native/USD reference
// of the chain and records one priced swap in it at block 50.
func (b *Builder) LoadPriceReference(ctx context.Context) (*domain.Pool, error) {
	ref := &domain.Pool{
		ChainID:            b.Chain.ID,
		Address:            "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640",
		Version:            domain.PoolVersionV3,
		Token0ID:           b.USDC.ID,
		Token1ID:           b.WETH.ID,
		FeePips:            500,
		CreatedBlockNumber: 1,
	}
	if _, err := b.stores.Pools.UpsertBulk(ctx, []*domain.Pool{ref}); err != nil {
		return nil, fmt.Errorf("upsert reference pool: %w", err)
	}
	if err := b.stores.Wrapped.Upsert(ctx, &domain.WrappedNativeToken{ChainID: b.Chain.ID, TokenID: b.WETH.ID, USDV3PoolID: &ref.ID}); err != nil {
		return nil, fmt.Errorf("upsert wrapped native: %w", err)
	}

	tick := ReferenceTick
	if _, err := b.AddTo(ctx, ref, Swap{Block: 50, LogIndex: 0, Actor: Trader, Amount0In: 2_000_000_000, Amount1Out: 1_000_000_000_000_000_000, Tick: &tick}); err != nil {
		return nil, err
	}
	return ref, nil
}

// SyncLog returns a v2 Sync event of pair at block, placed before any swap of
// that block.
func SyncLog(pair string, block, reserve0, reserve1 int64) *domain.RawLog {
	return &domain.RawLog{
		Address:         pair,
		Topics:          []string{evm.TopicSync},
		Data:            fmt.Sprintf("0x%064x%064x", reserve0, reserve1),
		BlockNumber:     block,
		BlockTimestamp:  GenesisTime + block*12,
		TransactionHash: fmt.Sprintf("0x%064x", 0x5c000000+block),
	}
}
