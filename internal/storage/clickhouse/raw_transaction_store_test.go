package clickhouse

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
)

func TestRawTransactionStore_InsertAndGet(t *testing.T) {
	conn := newTestConn(t)

	store := NewRawTransactionStore(conn)
	ctx := context.Background()

	price, _ := new(big.Int).SetString("123456789012345678901234", 10)
	txs := []*domain.RawTransaction{
		{
			Hash:              "0xAA",
			BlockNumber:       100,
			TransactionIndex:  3,
			BlockTimestamp:    1_700_000_000,
			FromAddress:       "0xAttacker",
			ToAddress:         "0xrouter",
			GasUsed:           ptr(int64(150_000)),
			GasPrice:          price,
			EffectiveGasPrice: big.NewInt(30_000_000_000),
			Status:            ptr(1),
		},
		{Hash: "0xbb", BlockNumber: 101, FromAddress: "0xvictim"},
	}
	require.NoError(t, store.InsertBulk(ctx, txs))

	got, err := store.GetByHashes(ctx, []string{"0xaa", "0xbb", "0xcc"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byHash := map[string]*domain.RawTransaction{}
	for _, tx := range got {
		byHash[tx.Hash] = tx
	}

	a := byHash["0xaa"]
	require.NotNil(t, a)
	assert.Equal(t, "0xattacker", a.FromAddress)
	assert.Equal(t, 3, a.TransactionIndex)
	assert.Equal(t, ptr(int64(150_000)), a.GasUsed)
	assert.Equal(t, 0, price.Cmp(a.GasPrice))
	assert.Equal(t, 0, big.NewInt(30_000_000_000).Cmp(a.EffectiveGasPrice))
	assert.Equal(t, ptr(1), a.Status)

	b := byHash["0xbb"]
	require.NotNil(t, b)
	assert.Nil(t, b.GasUsed)
	assert.Nil(t, b.GasPrice)
	assert.Nil(t, b.Status)
}

func TestParseBig(t *testing.T) {
	v, err := parseBig(ptr("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())

	v, err = parseBig(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = parseBig(ptr("4x"))
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
