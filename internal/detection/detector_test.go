package detection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/sandwich"
	"sandwich-scan/internal/storage"
	"sandwich-scan/internal/storage/memory"
)

func TestWindows(t *testing.T) {
	tests := []struct {
		name                    string
		from, to, size, overlap int64
		want                    []Window
	}{
		{
			name: "overlap capped at end",
			from: 1, to: 10, size: 4, overlap: 2,
			want: []Window{{1, 4, 6}, {5, 8, 10}, {9, 10, 10}},
		},
		{
			name: "single window",
			from: 100, to: 150, size: 100, overlap: 2,
			want: []Window{{100, 150, 150}},
		},
		{
			name: "exact multiple",
			from: 0, to: 5, size: 3, overlap: 1,
			want: []Window{{0, 2, 3}, {3, 5, 5}},
		},
		{
			name: "empty range",
			from: 10, to: 9, size: 3, overlap: 1,
		},
		{
			name: "invalid size",
			from: 1, to: 9, size: 0, overlap: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Windows(tt.from, tt.to, tt.size, tt.overlap))
		})
	}
}

func TestWindows_PartitionFronts(t *testing.T) {
	ws := Windows(7, 1003, 50, 3)
	require.NotEmpty(t, ws)
	assert.Equal(t, int64(7), ws[0].From)
	assert.Equal(t, int64(1003), ws[len(ws)-1].To)
	for i := 1; i < len(ws); i++ {
		assert.Equal(t, ws[i-1].To+1, ws[i].From)
		assert.GreaterOrEqual(t, ws[i-1].ReadTo, ws[i-1].To)
		assert.LessOrEqual(t, ws[i-1].ReadTo, ws[i-1].To+3)
	}
}

type detectorEnv struct {
	db       *memory.DB
	builder  *fixtures.Builder
	demo     *fixtures.Sandwich
	attacks  *memory.SandwichAttackStore
	progress *memory.DetectionProgressStore
}

func newDetectorEnv(t *testing.T) *detectorEnv {
	t.Helper()
	ctx := context.Background()

	db := memory.NewDB()
	b, err := fixtures.NewBuilder(ctx, fixtures.Memory(db), fixtures.Options{})
	require.NoError(t, err)
	demo, err := b.LoadDemo(ctx)
	require.NoError(t, err)

	return &detectorEnv{
		db:       db,
		builder:  b,
		demo:     demo,
		attacks:  memory.NewSandwichAttackStore(db),
		progress: memory.NewDetectionProgressStore(db),
	}
}

func (e *detectorEnv) options(finder storage.CandidateFinder) Options {
	return Options{
		Finder:      finder,
		Attacks:     e.attacks,
		Progress:    e.progress,
		Tokens:      memory.NewTokenStore(e.db),
		Wrapped:     memory.NewWrappedNativeTokenStore(e.db),
		WindowSize:  100,
		MaxBlockGap: 2,
		Policy:      retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func (e *detectorEnv) detector() *Detector {
	return New(e.options(NewMatcherFinder(memory.NewSwapStore(e.db))))
}

func TestDetector_WindowBoundaryFoundOnce(t *testing.T) {
	env := newDetectorEnv(t)
	ctx := context.Background()
	d := env.detector()

	// windows of 100 from block 1: the front at 100 closes [1,100], the back at 101 opens [101,200]
	res, err := d.DetectPool(ctx, env.builder.Pool, 500)
	require.NoError(t, err)
	assert.Equal(t, env.builder.USDC.ID, res.BaseTokenID)
	assert.Equal(t, int64(1), res.FromBlock)
	assert.Equal(t, 5, res.Windows)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, int64(498), res.Cursor)
	assert.Empty(t, res.Errors)

	attacks, err := env.attacks.ListByPool(ctx, env.builder.Pool.ID)
	require.NoError(t, err)
	require.Len(t, attacks, 1)

	a := attacks[0]
	assert.Equal(t, env.demo.Front, a.FrontSwapID)
	assert.Equal(t, env.demo.Victim, a.VictimSwapID)
	assert.Equal(t, env.demo.Back, a.BackSwapID)
	assert.Equal(t, fixtures.Attacker, a.AttackerAddress)
	assert.Equal(t, fixtures.Victim, a.VictimAddress)
	assert.Equal(t, int64(100), a.BlockNumber)
	assert.Equal(t, int64(fixtures.GenesisTime+100*12), a.BlockTimestamp)
	assert.Equal(t, "5", a.RevenueBaseRaw.String())
	assert.Equal(t, "100", a.VictimBaseSizeRaw.String())
	assert.Equal(t, d.DetectedBy(), a.DetectedBy)
	assert.True(t, strings.HasPrefix(a.DetectedBy, DefaultName+"@"))

	last, err := env.progress.GetLastBlock(ctx, env.builder.Pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(498), last)
}

func TestDetector_ResumesFromCursor(t *testing.T) {
	env := newDetectorEnv(t)
	ctx := context.Background()
	d := env.detector()

	_, err := d.DetectPool(ctx, env.builder.Pool, 500)
	require.NoError(t, err)

	res, err := d.DetectPool(ctx, env.builder.Pool, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(499), res.FromBlock)
	assert.Equal(t, 1, res.Windows)
	assert.Equal(t, 0, res.Found)
}

func TestDetector_RescanIsIdempotent(t *testing.T) {
	env := newDetectorEnv(t)
	ctx := context.Background()

	_, err := env.detector().DetectPool(ctx, env.builder.Pool, 500)
	require.NoError(t, err)

	// a fresh cursor store forces a full rescan
	opts := env.options(NewMatcherFinder(memory.NewSwapStore(env.db)))
	opts.Progress = memory.NewDetectionProgressStore(memory.NewDB())
	res, err := New(opts).DetectPool(ctx, env.builder.Pool, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 0, res.Inserted)

	attacks, err := env.attacks.ListByPool(ctx, env.builder.Pool.ID)
	require.NoError(t, err)
	assert.Len(t, attacks, 1)
}

func TestDetector_HeadFrontsNotFinalized(t *testing.T) {
	env := newDetectorEnv(t)
	ctx := context.Background()
	d := env.detector()

	// data ends at 101: the triplet is complete but the cursor stays below 100
	res, err := d.DetectPool(ctx, env.builder.Pool, 101)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, int64(99), res.Cursor)

	res, err = d.DetectPool(ctx, env.builder.Pool, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.FromBlock)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 0, res.Inserted)
}

type flakyFinder struct {
	err   error
	calls int
}

func (f *flakyFinder) FindCandidates(context.Context, sandwich.Params, int64) ([]*domain.Candidate, error) {
	f.calls++
	return nil, f.err
}

func TestDetector_SkipsExhaustedWindows(t *testing.T) {
	env := newDetectorEnv(t)
	ctx := context.Background()

	finder := &flakyFinder{err: errors.New("warehouse: 429 too many requests")}
	res, err := New(env.options(finder)).DetectPool(ctx, env.builder.Pool, 250)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Windows)
	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, 6, finder.calls)

	// the cursor moves past skipped windows
	last, err := env.progress.GetLastBlock(ctx, env.builder.Pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(248), last)
}

func TestDetector_PermanentErrorAborts(t *testing.T) {
	env := newDetectorEnv(t)
	finder := &flakyFinder{err: errors.New("relation \"swaps\" does not exist")}

	_, err := New(env.options(finder)).DetectPool(context.Background(), env.builder.Pool, 250)
	require.Error(t, err)
	assert.Equal(t, 1, finder.calls)

	_, err = env.progress.GetLastBlock(context.Background(), env.builder.Pool.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDetector_NoBaseToken(t *testing.T) {
	env := newDetectorEnv(t)
	ctx := context.Background()

	tokens := memory.NewTokenStore(env.db)
	other := &domain.Token{ChainID: env.builder.Chain.ID, Address: "0x00000000000000000000000000000000000dead0", Symbol: "DEAD", Decimals: 18}
	_, err := tokens.UpsertBulk(ctx, []*domain.Token{other})
	require.NoError(t, err)

	pool := &domain.Pool{
		ChainID:  env.builder.Chain.ID,
		Address:  "0x00000000000000000000000000000000000fee01",
		Version:  domain.PoolVersionV2,
		Token0ID: env.builder.TOK.ID,
		Token1ID: other.ID,
		IsActive: true,
	}
	_, err = memory.NewPoolStore(env.db).UpsertBulk(ctx, []*domain.Pool{pool})
	require.NoError(t, err)

	_, err = env.detector().DetectPool(ctx, pool, 500)
	assert.ErrorIs(t, err, ErrNoBaseToken)
}

func TestDetector_Cancelled(t *testing.T) {
	env := newDetectorEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.detector().DetectPool(ctx, env.builder.Pool, 500)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Windows)
}

func TestMatcherFinder_RestrictsFronts(t *testing.T) {
	env := newDetectorEnv(t)
	b := env.builder
	f := NewMatcherFinder(memory.NewSwapStore(env.db))

	p := sandwich.Params{
		PoolID:      b.Pool.ID,
		Token0ID:    b.Pool.Token0ID,
		Token1ID:    b.Pool.Token1ID,
		BaseTokenID: b.USDC.ID,
		MaxBlockGap: 2,
		FrontFrom:   101,
		FrontTo:     200,
	}
	cands, err := f.FindCandidates(context.Background(), p, 202)
	require.NoError(t, err)
	assert.Empty(t, cands)

	p.FrontFrom, p.FrontTo = 1, 100
	cands, err = f.FindCandidates(context.Background(), p, 102)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, env.demo.Victim, cands[0].Victim.SwapID)
}
