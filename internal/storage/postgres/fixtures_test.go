package postgres

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
)

// fixture is a chain with a USDC/TOK v2 pool.
type fixture struct {
	chain *domain.Chain
	usdc  *domain.Token
	tok   *domain.Token
	pool  *domain.Pool

	txs    *TransactionStore
	swaps  *SwapStore
	nextTx int
}

func newFixture(t *testing.T, ctx context.Context, pool *Pool) *fixture {
	t.Helper()

	chain := &domain.Chain{ChainID: 1, Name: "ethereum", NativeSymbol: "ETH", NativeDecimals: 18}
	require.NoError(t, NewChainStore(pool).Upsert(ctx, chain))

	usdc := &domain.Token{ChainID: chain.ID, Address: "0x00000000000000000000000000000000000000C1", Symbol: "USDC", Decimals: 6}
	tok := &domain.Token{ChainID: chain.ID, Address: "0x00000000000000000000000000000000000000c2", Symbol: "TOK", Decimals: 18}
	_, err := NewTokenStore(pool).UpsertBulk(ctx, []*domain.Token{usdc, tok})
	require.NoError(t, err)

	p := &domain.Pool{
		ChainID:  chain.ID,
		Address:  "0x00000000000000000000000000000000000000a1",
		Version:  domain.PoolVersionV2,
		Token0ID: usdc.ID,
		Token1ID: tok.ID,
		FeePips:  domain.DefaultFeePips,
		IsActive: true,
	}
	_, err = NewPoolStore(pool).UpsertBulk(ctx, []*domain.Pool{p})
	require.NoError(t, err)

	return &fixture{
		chain: chain, usdc: usdc, tok: tok, pool: p,
		txs:   NewTransactionStore(pool),
		swaps: NewSwapStore(pool),
	}
}

// swap stores one transaction with one swap and returns the swap id.
func (f *fixture) swap(t *testing.T, ctx context.Context, block int64, txIndex int, actor string, a0in, a1in, a0out, a1out int64) int64 {
	t.Helper()

	f.nextTx++
	tx := &domain.Transaction{
		ChainID:              f.chain.ID,
		TxHash:               fmt.Sprintf("0x%064x", f.nextTx),
		BlockNumber:          block,
		TxIndex:              txIndex,
		BlockTimestamp:       1_700_000_000 + block*12,
		FromAddress:          actor,
		GasUsed:              ptr(int64(100_000)),
		EffectiveGasPriceWei: big.NewInt(20_000_000_000),
	}
	_, err := f.txs.UpsertBulk(ctx, []*domain.Transaction{tx})
	require.NoError(t, err)

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
	n, err := f.swaps.UpsertBulk(ctx, []*domain.Swap{sw})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	legs, err := f.swaps.ListLegs(ctx, f.pool.ID, block, block)
	require.NoError(t, err)
	for _, l := range legs {
		if l.TxHash == tx.TxHash {
			return l.SwapID
		}
	}
	t.Fatalf("swap not found after insert")
	return 0
}
