package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

func TestScore(t *testing.T) {
	cfg := DefaultConfig()
	now := int64(1_700_000_000)

	tests := []struct {
		name string
		a    domain.PoolActivity
		want int64
	}{
		{name: "no activity", a: domain.PoolActivity{}, want: 0},
		{name: "fresh", a: domain.PoolActivity{Swaps24h: 2, Swaps7d: 3, LastSwapAt: ptr(now - 60)}, want: 34},
		{name: "two days old", a: domain.PoolActivity{Swaps7d: 1, LastSwapAt: ptr(now - 2*Window24h)}, want: 11},
		{name: "stale", a: domain.PoolActivity{Swaps7d: 4, LastSwapAt: ptr(now - 5*Window24h)}, want: 4},
		{name: "exactly 24h", a: domain.PoolActivity{LastSwapAt: ptr(now - Window24h)}, want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(cfg, tt.a, now))
		})
	}
}

func TestScorer_ScoreChain(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	b, err := fixtures.NewBuilder(ctx, fixtures.Memory(db), fixtures.Options{})
	require.NoError(t, err)

	pools := memory.NewPoolStore(db)
	quiet := &domain.Pool{ChainID: b.Chain.ID, Address: "0x0000000000000000000000000000000000000e01", Version: domain.PoolVersionV3, Token0ID: b.USDC.ID, Token1ID: b.WETH.ID, IsActive: true}
	idle := &domain.Pool{ChainID: b.Chain.ID, Address: "0x0000000000000000000000000000000000000e02", Version: domain.PoolVersionV2, Token0ID: b.TOK.ID, Token1ID: b.WETH.ID, IsActive: true}
	_, err = pools.UpsertBulk(ctx, []*domain.Pool{quiet, idle})
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	nowUnix := now.Unix()
	logs := memory.NewLogStore(db)
	require.NoError(t, logs.InsertBulk(ctx, []*domain.RawLog{
		{Address: b.Pool.Address, Topics: []string{evm.TopicV2Swap}, BlockNumber: 1000, TransactionHash: "0x01", BlockTimestamp: nowUnix - 3600},
		{Address: b.Pool.Address, Topics: []string{evm.TopicV2Swap}, BlockNumber: 1001, TransactionHash: "0x02", BlockTimestamp: nowUnix - 60},
		{Address: b.Pool.Address, Topics: []string{evm.TopicV2Swap}, BlockNumber: 900, TransactionHash: "0x03", BlockTimestamp: nowUnix - 3*Window24h},
		{Address: b.Pool.Address, Topics: []string{evm.TopicSync}, BlockNumber: 1001, TransactionHash: "0x02", BlockTimestamp: nowUnix - 60},
		{Address: quiet.Address, Topics: []string{evm.TopicV3Swap}, BlockNumber: 950, TransactionHash: "0x04", BlockTimestamp: nowUnix - 2*Window24h},
	}))

	cfg := DefaultConfig()
	cfg.BatchSize = 2
	res, err := NewScorer(cfg, logs, pools, nil).ScoreChain(ctx, b.Chain.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pools)
	assert.Equal(t, 2, res.Active)
	assert.Empty(t, res.Errors)

	active, err := pools.ListActive(ctx, b.Chain.ID, 1)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, b.Pool.ID, active[0].ID)
	assert.Equal(t, int64(34), active[0].ActivityScore)
	assert.Equal(t, int64(2), active[0].Swaps24h)
	assert.Equal(t, int64(3), active[0].Swaps7d)
	require.NotNil(t, active[0].LastSwapBlock)
	assert.Equal(t, int64(1001), *active[0].LastSwapBlock)

	assert.Equal(t, quiet.ID, active[1].ID)
	assert.Equal(t, int64(11), active[1].ActivityScore)

	got, err := pools.GetByID(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.ActivityScore)
}

func TestScorer_Cancelled(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	_, err := fixtures.NewBuilder(ctx, fixtures.Memory(db), fixtures.Options{})
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewScorer(DefaultConfig(), memory.NewLogStore(db), memory.NewPoolStore(db), nil).ScoreChain(cctx, 1, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
