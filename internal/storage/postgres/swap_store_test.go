package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

func TestSwapStore_ListLegsTotalOrder(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	f := newFixture(t, ctx, pool)

	s3 := f.swap(t, ctx, 101, 0, "0xX", 0, 10, 1005, 0)
	s1 := f.swap(t, ctx, 100, 1, "0xX", 1000, 0, 0, 10)
	s2 := f.swap(t, ctx, 100, 2, "0xY", 100, 0, 0, 1)

	legs, err := f.swaps.ListLegs(ctx, f.pool.ID, 100, 101)
	require.NoError(t, err)
	require.Len(t, legs, 3)
	assert.Equal(t, []int64{s1, s2, s3}, []int64{legs[0].SwapID, legs[1].SwapID, legs[2].SwapID})

	l := legs[0]
	assert.Equal(t, "0xx", l.Actor)
	assert.Equal(t, int64(1000), l.Amount0In.Int64())
	assert.Equal(t, int64(10), l.Amount1Out.Int64())
	assert.Equal(t, ptr(int64(100_000)), l.GasUsed)
	assert.Nil(t, l.GasPriceWei)
	assert.Equal(t, 0, big.NewInt(20_000_000_000).Cmp(l.EffectiveGasPriceWei))
	assert.Nil(t, l.SqrtPriceX96)

	legs, err = f.swaps.ListLegs(ctx, f.pool.ID, 101, 200)
	require.NoError(t, err)
	require.Len(t, legs, 1)
}

func TestSwapStore_UpsertBulkIgnoresDuplicates(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	f := newFixture(t, ctx, pool)
	f.swap(t, ctx, 100, 0, "0xa", 1, 0, 0, 1)

	legs, err := f.swaps.ListLegs(ctx, f.pool.ID, 100, 100)
	require.NoError(t, err)
	require.Len(t, legs, 1)

	tx, err := f.txs.GetByHash(ctx, f.chain.ID, legs[0].TxHash)
	require.NoError(t, err)

	dup := &domain.Swap{ChainID: f.chain.ID, PoolID: f.pool.ID, TransactionID: tx.ID, LogIndex: 0, Amount0In: big.NewInt(9)}
	n, err := f.swaps.UpsertBulk(ctx, []*domain.Swap{dup})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	legs, err = f.swaps.ListLegs(ctx, f.pool.ID, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), legs[0].Amount0In.Int64())
}

func TestSwapStore_UnknownTransaction(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	f := newFixture(t, ctx, pool)

	orphan := &domain.Swap{ChainID: f.chain.ID, PoolID: f.pool.ID, TransactionID: 999_999, Amount0In: big.NewInt(1)}
	_, err := f.swaps.UpsertBulk(ctx, []*domain.Swap{orphan})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSwapStore_LatestStateBefore(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	f := newFixture(t, ctx, pool)

	addState := func(block int64, txIndex int, sqrt int64) string {
		t.Helper()
		f.nextTx++
		tx := &domain.Transaction{ChainID: f.chain.ID, TxHash: "0xstate" + string(rune('a'+f.nextTx)), BlockNumber: block, TxIndex: txIndex, FromAddress: "0xs"}
		_, err := f.txs.UpsertBulk(ctx, []*domain.Transaction{tx})
		require.NoError(t, err)
		_, err = f.swaps.UpsertBulk(ctx, []*domain.Swap{{
			ChainID: f.chain.ID, PoolID: f.pool.ID, TransactionID: tx.ID, LogIndex: txIndex,
			Amount0In: big.NewInt(1), Amount1Out: big.NewInt(1),
			SqrtPriceX96: big.NewInt(sqrt), Liquidity: big.NewInt(1_000), Tick: ptr(-5),
		}})
		require.NoError(t, err)
		return tx.TxHash
	}

	addState(90, 0, 111)
	front := addState(100, 3, 222)

	got, err := f.swaps.LatestStateBefore(ctx, f.pool.ID, domain.Position{BlockNumber: 100, TxIndex: 3, LogIndex: 4}, front)
	require.NoError(t, err)
	assert.Equal(t, int64(111), got.SqrtPriceX96.Int64())
	assert.Equal(t, ptr(-5), got.Tick)

	got, err = f.swaps.LatestPricedAtOrBefore(ctx, f.pool.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(222), got.SqrtPriceX96.Int64())

	_, err = f.swaps.LatestPricedAtOrBefore(ctx, f.pool.ID, 89)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransactionStore_GetByHash(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	f := newFixture(t, ctx, pool)

	price, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	tx := &domain.Transaction{
		ChainID: f.chain.ID, TxHash: "0xABCD", BlockNumber: 5, TxIndex: 1, FromAddress: "0xFrom",
		ToAddress: ptr("0xTo"), GasPriceWei: price, Status: ptr(1),
	}
	n, err := f.txs.UpsertBulk(ctx, []*domain.Transaction{tx})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.txs.GetByHash(ctx, f.chain.ID, "0xabcd")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, "0xfrom", got.FromAddress)
	assert.Equal(t, ptr("0xto"), got.ToAddress)
	assert.Equal(t, 0, price.Cmp(got.GasPriceWei))
	assert.Nil(t, got.EffectiveGasPriceWei)
	assert.Nil(t, got.GasUsed)

	_, err = f.txs.GetByHash(ctx, f.chain.ID, "0xnone")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransactionStore_MaxBlockNumber(t *testing.T) {
	pool := newTestPool(t)

	ctx := context.Background()
	f := newFixture(t, ctx, pool)

	top, err := f.txs.MaxBlockNumber(ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), top)

	f.swap(t, ctx, 120, 0, "0xa", 1, 0, 0, 1)
	f.swap(t, ctx, 100, 0, "0xb", 1, 0, 0, 1)

	top, err = f.txs.MaxBlockNumber(ctx, f.chain.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), top)
}
