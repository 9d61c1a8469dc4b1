package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sandwich-scan/internal/config"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(nil))
	return cfg
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	s := MemoryStores(db)
	seed := SeedStores{Chains: s.Chains, Tokens: s.Tokens, Wrapped: s.Wrapped, Pools: s.Pools}

	chain, err := Seed(ctx, seed, References[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), chain.ChainID)
	assert.NotZero(t, chain.ID)

	stables, err := s.Tokens.ListStableCoins(ctx, chain.ID)
	require.NoError(t, err)
	require.Len(t, stables, 3)
	usdc, err := s.Tokens.GetByID(ctx, stables[0].TokenID)
	require.NoError(t, err)
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, 6, usdc.Decimals)

	w, err := s.Wrapped.GetByChain(ctx, chain.ID)
	require.NoError(t, err)
	require.NotNil(t, w.USDV3PoolID)
	require.NotNil(t, w.USDV2PoolID)
	v3, err := s.Pools.GetByID(ctx, *w.USDV3PoolID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolVersionV3, v3.Version)
	assert.Equal(t, int64(500), v3.FeePips)
	assert.Equal(t, usdc.ID, v3.Token0ID)
	assert.Equal(t, w.TokenID, v3.Token1ID)

	// seeding again keeps the rows
	again, err := Seed(ctx, seed, References[1])
	require.NoError(t, err)
	assert.Equal(t, chain.ID, again.ID)
	pools, err := s.Pools.ListByChain(ctx, chain.ID)
	require.NoError(t, err)
	assert.Len(t, pools, 2)
}

func TestSeed_PoolOutsideCatalog(t *testing.T) {
	ref := References[1]
	ref.USDV2Pool = &PoolRef{
		Address: "0x0000000000000000000000000000000000000bad",
		Version: domain.PoolVersionV2,
		Token0:  mainnetUSDC.Address,
		Token1:  "0x0000000000000000000000000000000000000001",
	}
	s := MemoryStores(memory.NewDB())
	_, err := Seed(context.Background(), SeedStores{Chains: s.Chains, Tokens: s.Tokens, Wrapped: s.Wrapped, Pools: s.Pools}, ref)
	assert.Error(t, err)
}

func TestOpenDemo_Pipeline(t *testing.T) {
	ctx := context.Background()
	a, err := OpenDemo(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	orch, err := a.Orchestrator(0)
	require.NoError(t, err)
	result, err := orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.ToBlock)
	assert.Equal(t, 1, result.Detection.Inserted)
	assert.Equal(t, 1, result.Valued)
	assert.Equal(t, 1, result.Priced)
	assert.Empty(t, result.Errors)

	summaries, err := a.Stores.Attacks.MonthlySummary(ctx, a.Chain.ID, time.Unix(0, 0), time.Unix(fixtures.GenesisTime+86400, 0))
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].Valued)
	// the attacker paid more gas than the 5 raw USDC it took
	assert.True(t, summaries[0].ProfitUSD.IsNegative())
}

func TestApp_Detector(t *testing.T) {
	a := &App{Config: testConfig(t), Log: zap.NewNop(), Stores: MemoryStores(memory.NewDB())}

	a.Config.Detection.Engine = EngineSQL
	_, err := a.Detector()
	assert.Error(t, err, "sql engine without postgres")

	a.Config.Detection.Engine = EngineMatcher
	det, err := a.Detector()
	require.NoError(t, err)
	assert.Contains(t, det.DetectedBy(), "sandwich-scan@")

	a.Config.Detection.MinVictimBaseRaw = "-1"
	_, err = a.Detector()
	assert.Error(t, err)
}

func TestApp_Verifier(t *testing.T) {
	ctx := context.Background()
	a, err := OpenDemo(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Verifier(true)
	assert.Error(t, err, "engine comparison without postgres")

	orch, err := a.Orchestrator(0)
	require.NoError(t, err)
	_, err = orch.Run(ctx)
	require.NoError(t, err)

	v, err := a.Verifier(false)
	require.NoError(t, err)
	pools, err := a.Stores.Pools.ListActive(ctx, a.Chain.ID, a.Config.Activity.MinScore)
	require.NoError(t, err)
	require.NotEmpty(t, pools)

	matched := 0
	for _, p := range pools {
		r, err := v.VerifyStored(ctx, p, p.CreatedBlockNumber, a.DemoToBlock)
		require.NoError(t, err)
		assert.True(t, r.Match(), "pool %d: %+v", p.ID, r)
		matched += r.Matched
	}
	assert.Equal(t, 1, matched)
}

func TestApp_ToBlock(t *testing.T) {
	ctx := context.Background()
	a := &App{Config: testConfig(t), Log: zap.NewNop()}

	to, err := a.ToBlock(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), to)

	_, err = a.ToBlock(ctx, 0)
	assert.Error(t, err, "no node")

	a.DemoToBlock = 500
	to, err = a.ToBlock(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(500), to)
}

func TestApp_DetectToBlock(t *testing.T) {
	ctx := context.Background()
	a, err := OpenDemo(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	to, err := a.DetectToBlock(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), to)

	to, err = a.DetectToBlock(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(fixtures.DemoHorizon), to)

	// the last demo swap is at block 400
	to, err = a.clampIngested(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(400), to)

	to, err = a.clampIngested(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(300), to)
}

func TestApp_Source(t *testing.T) {
	a := &App{Config: testConfig(t), Log: zap.NewNop(), Stores: MemoryStores(memory.NewDB())}

	_, err := a.Source()
	require.NoError(t, err)

	a.Config.Ingestion.Source = SourceRPC
	_, err = a.Source()
	assert.Error(t, err)
}
