package detection

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/idhash"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/sandwich"
	"sandwich-scan/internal/storage"
)

// Defaults
const (
	DefaultWindowSize      = 100_000
	DefaultMaxBlockGap     = 2
	DefaultInsertChunkSize = 1000
	DefaultName            = "sandwich-scan"
)

// ErrNoBaseToken is returned for pools holding neither a stable coin nor the
// wrapped native token.
var ErrNoBaseToken = errors.New("pool has no base token")

// Options configures the Detector.
type Options struct {
	Finder   storage.CandidateFinder
	Attacks  storage.SandwichAttackStore
	Progress storage.DetectionProgressStore
	Tokens   storage.TokenStore
	Wrapped  storage.WrappedNativeTokenStore

	WindowSize       int64
	Overlap          int64 // raised to MaxBlockGap when lower
	MaxBlockGap      int64
	MinVictimBaseRaw *big.Int
	InsertChunkSize  int

	Name   string  // detector name, prefix of detected_by
	Notes  *string // stored on every inserted attack
	Policy retry.Policy
	Logger *zap.Logger
}

// Detector scans pools window by window. Windows of one pool run strictly in
// order; distinct pools may run concurrently on one Detector.
type Detector struct {
	finder   storage.CandidateFinder
	attacks  storage.SandwichAttackStore
	progress storage.DetectionProgressStore
	tokens   storage.TokenStore
	wrapped  storage.WrappedNativeTokenStore

	windowSize  int64
	overlap     int64
	maxBlockGap int64
	minVictim   *big.Int
	chunkSize   int

	detectedBy string
	notes      *string
	policy     retry.Policy
	log        *zap.Logger
}

// New creates a Detector.
func New(opts Options) *Detector {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.MaxBlockGap <= 0 {
		opts.MaxBlockGap = DefaultMaxBlockGap
	}
	if opts.Overlap < opts.MaxBlockGap {
		opts.Overlap = opts.MaxBlockGap
	}
	if opts.MinVictimBaseRaw == nil {
		opts.MinVictimBaseRaw = new(big.Int)
	}
	if opts.InsertChunkSize <= 0 {
		opts.InsertChunkSize = DefaultInsertChunkSize
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Detector{
		finder:      opts.Finder,
		attacks:     opts.Attacks,
		progress:    opts.Progress,
		tokens:      opts.Tokens,
		wrapped:     opts.Wrapped,
		windowSize:  opts.WindowSize,
		overlap:     opts.Overlap,
		maxBlockGap: opts.MaxBlockGap,
		minVictim:   opts.MinVictimBaseRaw,
		chunkSize:   opts.InsertChunkSize,
		detectedBy:  idhash.ComputeDetectorID(opts.Name, opts.WindowSize, opts.MaxBlockGap, opts.MinVictimBaseRaw),
		notes:       opts.Notes,
		policy:      opts.Policy,
		log:         opts.Logger.Named("detector"),
	}
}

// DetectedBy returns the provenance tag written on inserted attacks.
func (d *Detector) DetectedBy() string {
	return d.detectedBy
}

// PoolResult summarizes the detection of one pool.
type PoolResult struct {
	PoolID      int64
	BaseTokenID int64
	FromBlock   int64
	ToBlock     int64
	Windows     int
	Skipped     int // windows given up after retries
	Found       int
	Inserted    int
	Cursor      int64 // last finalized front-run block, 0 if never advanced
	Duration    time.Duration
	Errors      []string
}

// DetectPool scans pool from its cursor (or creation block) through toBlock,
// the highest block whose swaps are ingested. Front-runs closer than
// MaxBlockGap to toBlock are matched but not finalized: the cursor stops
// short of them so a later run with more data sees them again.
//
// A window whose candidate query keeps failing is skipped and the cursor
// still moves past it. Cancellation is checked between windows.
func (d *Detector) DetectPool(ctx context.Context, pool *domain.Pool, toBlock int64) (*PoolResult, error) {
	start := time.Now()
	result := &PoolResult{PoolID: pool.ID, ToBlock: toBlock}
	log := d.log.With(zap.Int64("pool_id", pool.ID), zap.String("pool", pool.Address))

	base, err := d.resolveBase(ctx, pool)
	if err != nil {
		return result, err
	}
	result.BaseTokenID = base

	from, err := d.startBlock(ctx, pool)
	if err != nil {
		return result, err
	}
	result.FromBlock = from
	if from > toBlock {
		log.Debug("pool up to date", zap.Int64("from", from), zap.Int64("to", toBlock))
		return result, nil
	}

	finalBlock := toBlock - d.maxBlockGap
	params := sandwich.Params{
		PoolID:           pool.ID,
		Token0ID:         pool.Token0ID,
		Token1ID:         pool.Token1ID,
		BaseTokenID:      base,
		MaxBlockGap:      d.maxBlockGap,
		MinVictimBaseRaw: d.minVictim,
	}

	for _, w := range Windows(from, toBlock, d.windowSize, d.overlap) {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		result.Windows++

		params.FrontFrom, params.FrontTo = w.From, w.To
		cands, err := retry.Value(ctx, d.policy.WithNotify(func(err error, next time.Duration) {
			observability.RecordRetry("detector", "find_candidates")
			log.Warn("candidate query failed, retrying",
				zap.Int64("window_from", w.From), zap.Duration("next", next), zap.Error(err))
		}), func(ctx context.Context) ([]*domain.Candidate, error) {
			return d.finder.FindCandidates(ctx, params, w.ReadTo)
		})

		switch {
		case err == nil:
			found, inserted, err := d.persist(ctx, pool, cands)
			if err != nil {
				result.Duration = time.Since(start)
				return result, fmt.Errorf("persist window %d-%d: %w", w.From, w.To, err)
			}
			result.Found += found
			result.Inserted += inserted
			observability.RecordCandidates(pool.ChainID, found, inserted)
			if found == 0 {
				observability.RecordWindow(observability.WindowEmpty)
			} else {
				observability.RecordWindow(observability.WindowOK)
			}
			log.Debug("window done",
				zap.Int64("from", w.From), zap.Int64("to", w.To),
				zap.Int("found", found), zap.Int("inserted", inserted))

		case ctx.Err() != nil:
			result.Duration = time.Since(start)
			return result, ctx.Err()

		case errors.Is(err, retry.ErrExhausted):
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("window %d-%d: %v", w.From, w.To, err))
			observability.RecordWindow(observability.WindowSkipped)
			log.Error("window skipped", zap.Int64("from", w.From), zap.Int64("to", w.To), zap.Error(err))

		default:
			result.Duration = time.Since(start)
			return result, fmt.Errorf("find candidates %d-%d: %w", w.From, w.To, err)
		}

		cursor := w.To
		if cursor > finalBlock {
			cursor = finalBlock
		}
		if cursor >= w.From {
			if err := d.progress.SetLastBlock(ctx, pool.ID, cursor); err != nil {
				result.Duration = time.Since(start)
				return result, fmt.Errorf("set detection cursor: %w", err)
			}
			result.Cursor = cursor
			observability.UpdateDetectionCursor(pool.ID, cursor)
		}
	}

	result.Duration = time.Since(start)
	log.Info("pool detection done",
		zap.Int64("from", from),
		zap.Int64("to", toBlock),
		zap.Int("windows", result.Windows),
		zap.Int("skipped", result.Skipped),
		zap.Int("found", result.Found),
		zap.Int("inserted", result.Inserted),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (d *Detector) resolveBase(ctx context.Context, pool *domain.Pool) (int64, error) {
	return ResolveBase(ctx, d.tokens, d.wrapped, pool)
}

// ResolveBase picks the base token of pool from the chain's stable coins and
// wrapped native token. Returns ErrNoBaseToken when neither is in the pool.
func ResolveBase(ctx context.Context, tokens storage.TokenStore, wrapped storage.WrappedNativeTokenStore, pool *domain.Pool) (int64, error) {
	stables, err := tokens.ListStableCoins(ctx, pool.ChainID)
	if err != nil {
		return 0, fmt.Errorf("list stable coins: %w", err)
	}
	w, err := wrapped.GetByChain(ctx, pool.ChainID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("get wrapped native token: %w", err)
	}

	base, ok := sandwich.ResolveBase(pool, stables, w)
	if !ok {
		return 0, fmt.Errorf("pool %d: %w", pool.ID, ErrNoBaseToken)
	}
	return base, nil
}

func (d *Detector) startBlock(ctx context.Context, pool *domain.Pool) (int64, error) {
	last, err := d.progress.GetLastBlock(ctx, pool.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return pool.CreatedBlockNumber, nil
	case err != nil:
		return 0, fmt.Errorf("get detection cursor: %w", err)
	}
	if last+1 < pool.CreatedBlockNumber {
		return pool.CreatedBlockNumber, nil
	}
	return last + 1, nil
}

// persist inserts candidates in chunks. Re-inserting a known triplet is a no-op.
func (d *Detector) persist(ctx context.Context, pool *domain.Pool, cands []*domain.Candidate) (found, inserted int, err error) {
	if len(cands) == 0 {
		return 0, 0, nil
	}

	attacks := make([]*domain.SandwichAttack, len(cands))
	for i, c := range cands {
		attacks[i] = d.toAttack(pool, c)
	}

	for _, ch := range storage.Chunks(len(attacks), d.chunkSize) {
		if err := ctx.Err(); err != nil {
			return len(cands), inserted, err
		}
		n, err := d.attacks.InsertIgnore(ctx, attacks[ch[0]:ch[1]])
		if err != nil {
			return len(cands), inserted, fmt.Errorf("insert attacks: %w", err)
		}
		inserted += n
	}
	return len(cands), inserted, nil
}

func (d *Detector) toAttack(pool *domain.Pool, c *domain.Candidate) *domain.SandwichAttack {
	return &domain.SandwichAttack{
		ChainID:           pool.ChainID,
		PoolID:            pool.ID,
		FrontSwapID:       c.Front.SwapID,
		VictimSwapID:      c.Victim.SwapID,
		BackSwapID:        c.Back.SwapID,
		AttackerAddress:   c.AttackerAddress,
		VictimAddress:     c.VictimAddress,
		BaseTokenID:       c.BaseTokenID,
		BlockNumber:       c.Victim.Position.BlockNumber,
		BlockTimestamp:    c.Victim.BlockTimestamp,
		VictimBaseSizeRaw: c.VictimBaseSizeRaw,
		Valuation:         domain.Valuation{RevenueBaseRaw: c.RevenueBaseRaw},
		DetectedBy:        d.detectedBy,
		Notes:             d.notes,
	}
}
