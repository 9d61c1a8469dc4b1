package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/storage"
	"sandwich-scan/internal/storage/memory"
)

func addrTopic(addr string) string {
	return "0x000000000000000000000000" + addr[2:]
}

func v2SwapLog(pool, tx string, block int64, logIndex int, a0in, a1in, a0out, a1out int64) *domain.RawLog {
	return &domain.RawLog{
		Address:         pool,
		Topics:          []string{evm.TopicV2Swap, addrTopic(fixtures.Trader), addrTopic(fixtures.Trader)},
		Data:            fmt.Sprintf("0x%064x%064x%064x%064x", a0in, a1in, a0out, a1out),
		BlockNumber:     block,
		LogIndex:        logIndex,
		TransactionHash: tx,
		BlockTimestamp:  fixtures.GenesisTime + block*12,
	}
}

func rawTx(hash, from string, block int64, index int) *domain.RawTransaction {
	gas := int64(120_000)
	return &domain.RawTransaction{
		Hash:              hash,
		BlockNumber:       block,
		TransactionIndex:  index,
		BlockTimestamp:    fixtures.GenesisTime + block*12,
		FromAddress:       from,
		ToAddress:         "0x7a250d5630b4cf539739df2c5dacb4c659f2488d",
		GasUsed:           &gas,
		EffectiveGasPrice: big.NewInt(30_000_000_000),
	}
}

type backfillEnv struct {
	db      *memory.DB
	builder *fixtures.Builder
	logs    *memory.LogStore
	rawTxs  *memory.RawTransactionStore
}

func newBackfillEnv(t *testing.T) *backfillEnv {
	t.Helper()
	db := memory.NewDB()
	b, err := fixtures.NewBuilder(context.Background(), fixtures.Memory(db), fixtures.Options{})
	require.NoError(t, err)
	return &backfillEnv{db: db, builder: b, logs: memory.NewLogStore(db), rawTxs: memory.NewRawTransactionStore(db)}
}

func (e *backfillEnv) backfiller(source Source) *Backfiller {
	return NewBackfiller(BackfillOptions{
		Source:      source,
		Pools:       memory.NewPoolStore(e.db),
		Txs:         memory.NewTransactionStore(e.db),
		Swaps:       memory.NewSwapStore(e.db),
		ChunkBlocks: 100,
		Policy:      retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
}

func TestBackfiller_BackfillRange(t *testing.T) {
	env := newBackfillEnv(t)
	ctx := context.Background()
	pool := env.builder.Pool.Address

	txA := fmt.Sprintf("0x%064x", 0xa)
	txB := fmt.Sprintf("0x%064x", 0xb)
	txC := fmt.Sprintf("0x%064x", 0xc)
	require.NoError(t, env.logs.InsertBulk(ctx, []*domain.RawLog{
		v2SwapLog(pool, txB, 150, 4, 0, 10, 1005, 0),
		v2SwapLog(pool, txA, 100, 0, 1000, 0, 0, 10),
		v2SwapLog(pool, txA, 100, 0, 1000, 0, 0, 10), // warehouse duplicate
		{Address: pool, Topics: []string{evm.TopicV2Swap}, Data: "0x00", BlockNumber: 120, LogIndex: 1, TransactionHash: txA},
		v2SwapLog(pool, txC, 180, 2, 5, 0, 0, 1), // no transaction row
		v2SwapLog("0x00000000000000000000000000000000000f0f0f", txA, 100, 9, 1, 0, 0, 1),
	}))
	require.NoError(t, env.rawTxs.InsertBulk(ctx, []*domain.RawTransaction{
		rawTx(txA, fixtures.Attacker, 100, 0),
		rawTx(txB, fixtures.Attacker, 150, 3),
	}))

	b := env.backfiller(NewWarehouseSource(env.logs, env.rawTxs))
	res, err := b.BackfillRange(ctx, env.builder.Chain.ID, 1, 250)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Logs)
	assert.Equal(t, 2, res.SwapsStored)
	assert.Equal(t, 2, res.TxsStored)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, res.MissingTx)
	assert.Equal(t, 0, res.SkippedChunks)
	assert.Equal(t, int64(250), res.LastBlockBound)

	legs, err := memory.NewSwapStore(env.db).ListLegs(ctx, env.builder.Pool.ID, 1, 250)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	front := legs[0]
	assert.Equal(t, int64(100), front.Position.BlockNumber)
	assert.Equal(t, fixtures.Attacker, front.Actor)
	assert.Equal(t, "1000", front.Amount0In.String())
	require.NotNil(t, front.SellTokenID)
	assert.Equal(t, env.builder.USDC.ID, *front.SellTokenID)
	require.NotNil(t, front.BuyTokenID)
	assert.Equal(t, env.builder.TOK.ID, *front.BuyTokenID)
	assert.Equal(t, "30000000000", front.EffectiveGasPriceWei.String())

	assert.Equal(t, 3, legs[1].Position.TxIndex)

	// re-running the range inserts nothing new
	res, err = b.BackfillRange(ctx, env.builder.Chain.ID, 1, 250)
	require.NoError(t, err)
	assert.Equal(t, 0, res.SwapsStored)
	assert.Equal(t, 0, res.TxsStored)
}

func TestBackfiller_VersionMismatchIsMalformed(t *testing.T) {
	env := newBackfillEnv(t)
	ctx := context.Background()

	tx := fmt.Sprintf("0x%064x", 0x1)
	v3 := v2SwapLog(env.builder.Pool.Address, tx, 100, 0, 1000, 0, 0, 10)
	v3.Topics[0] = evm.TopicV3Swap
	v3.Data = fmt.Sprintf("0x%064x%064x%064x%064x%064x", 1000, 0, 1, 1, 0)
	require.NoError(t, env.logs.InsertBulk(ctx, []*domain.RawLog{v3}))
	require.NoError(t, env.rawTxs.InsertBulk(ctx, []*domain.RawTransaction{rawTx(tx, fixtures.Trader, 100, 0)}))

	res, err := env.backfiller(NewWarehouseSource(env.logs, env.rawTxs)).BackfillRange(ctx, env.builder.Chain.ID, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 0, res.SwapsStored)
}

type failingSource struct {
	err   error
	calls int
}

func (s *failingSource) Logs(context.Context, storage.LogFilter) ([]*domain.RawLog, error) {
	s.calls++
	return nil, s.err
}

func (s *failingSource) Transactions(context.Context, []string) ([]*domain.RawTransaction, error) {
	return nil, nil
}

func TestBackfiller_SkipsFailingChunks(t *testing.T) {
	env := newBackfillEnv(t)
	src := &failingSource{err: errors.New("code: 202, TOO_MANY_SIMULTANEOUS_QUERIES")}

	res, err := env.backfiller(src).BackfillRange(context.Background(), env.builder.Chain.ID, 1, 300)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SkippedChunks)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, 6, src.calls)
	assert.Equal(t, int64(300), res.LastBlockBound)
}

func TestBackfiller_DoesNotRetryExhaustedSource(t *testing.T) {
	env := newBackfillEnv(t)
	src := &failingSource{err: fmt.Errorf("%w: eth_getLogs: 429", retry.ErrExhausted)}

	res, err := env.backfiller(src).BackfillRange(context.Background(), env.builder.Chain.ID, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, res.SkippedChunks)
}

func TestBackfiller_PermanentErrorAborts(t *testing.T) {
	env := newBackfillEnv(t)
	src := &failingSource{err: errors.New("code: 60, UNKNOWN_TABLE")}

	_, err := env.backfiller(src).BackfillRange(context.Background(), env.builder.Chain.ID, 1, 300)
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}
