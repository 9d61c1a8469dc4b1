package memory

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"sandwich-scan/internal/domain"
)

// fixture is a chain with one v2 pool usdc/tok and helpers to add swaps.
type fixture struct {
	db     *DB
	chain  *domain.Chain
	usdc   *domain.Token
	tok    *domain.Token
	pool   *domain.Pool
	txs    *TransactionStore
	swaps  *SwapStore
	nextTx int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := NewDB()

	chain := &domain.Chain{ChainID: 1, Name: "mainnet", NativeSymbol: "ETH", NativeDecimals: 18}
	if err := NewChainStore(db).Upsert(ctx, chain); err != nil {
		t.Fatalf("Upsert chain failed: %v", err)
	}

	usdc := &domain.Token{ChainID: chain.ID, Address: "0xA0B8", Symbol: "USDC", Decimals: 6}
	tok := &domain.Token{ChainID: chain.ID, Address: "0xC0DE", Symbol: "TOK", Decimals: 18}
	if _, err := NewTokenStore(db).UpsertBulk(ctx, []*domain.Token{usdc, tok}); err != nil {
		t.Fatalf("UpsertBulk tokens failed: %v", err)
	}

	pool := &domain.Pool{
		ChainID:  chain.ID,
		Address:  "0xP001",
		Version:  domain.PoolVersionV2,
		Token0ID: usdc.ID,
		Token1ID: tok.ID,
		FeePips:  domain.DefaultFeePips,
		IsActive: true,
	}
	if _, err := NewPoolStore(db).UpsertBulk(ctx, []*domain.Pool{pool}); err != nil {
		t.Fatalf("UpsertBulk pool failed: %v", err)
	}

	return &fixture{
		db:    db,
		chain: chain,
		usdc:  usdc,
		tok:   tok,
		pool:  pool,
		txs:   NewTransactionStore(db),
		swaps: NewSwapStore(db),
	}
}

// swap records one transaction with one swap and returns the swap id.
func (f *fixture) swap(t *testing.T, block int64, txIndex int, actor string, a0in, a1in, a0out, a1out int64) int64 {
	t.Helper()
	ctx := context.Background()
	f.nextTx++

	gasUsed := int64(100_000)
	tx := &domain.Transaction{
		ChainID:              f.chain.ID,
		TxHash:               fmt.Sprintf("0xT%04d", f.nextTx),
		BlockNumber:          block,
		TxIndex:              txIndex,
		BlockTimestamp:       1_700_000_000 + block*12,
		FromAddress:          actor,
		GasUsed:              &gasUsed,
		EffectiveGasPriceWei: big.NewInt(20_000_000_000),
	}
	if _, err := f.txs.UpsertBulk(ctx, []*domain.Transaction{tx}); err != nil {
		t.Fatalf("UpsertBulk tx failed: %v", err)
	}

	sw := &domain.Swap{
		ChainID:       f.chain.ID,
		PoolID:        f.pool.ID,
		TransactionID: tx.ID,
		LogIndex:      txIndex * 10,
		Amount0In:     big.NewInt(a0in),
		Amount1In:     big.NewInt(a1in),
		Amount0Out:    big.NewInt(a0out),
		Amount1Out:    big.NewInt(a1out),
	}
	if _, err := f.swaps.UpsertBulk(ctx, []*domain.Swap{sw}); err != nil {
		t.Fatalf("UpsertBulk swap failed: %v", err)
	}
	return sw.ID
}
