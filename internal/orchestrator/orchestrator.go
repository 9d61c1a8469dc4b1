// Package orchestrator provides the end-to-end detection pipeline.
// It coordinates: activity scoring → detection → valuation
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sandwich-scan/internal/activity"
	"sandwich-scan/internal/detection"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/storage"
	"sandwich-scan/internal/valuation"
)

// Pipeline phases, used as metric labels.
const (
	PhaseActivity  = "activity"
	PhaseDetection = "detection"
	PhaseValuation = "valuation"
)

// DefaultWorkers bounds concurrent pool detections.
const DefaultWorkers = 4

// HeadSource reports the chain head. *evm.Client satisfies it.
type HeadSource interface {
	BlockNumber(ctx context.Context) (int64, error)
}

// IngestedSource reports the highest ingested block of a chain.
// storage.TransactionStore satisfies it.
type IngestedSource interface {
	MaxBlockNumber(ctx context.Context, chainID int64) (int64, error)
}

// Orchestrator coordinates the pipeline execution for one chain.
type Orchestrator struct {
	chainID int64
	pools   storage.PoolStore

	scorer   *activity.Scorer
	detector *detection.Detector
	valuator *valuation.Valuator

	head          HeadSource
	ingested      IngestedSource
	toBlock       int64
	confirmations int64
	minScore      int64
	workers       int

	log *zap.Logger
	now func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	ChainID int64 // internal chains.id
	Pools   storage.PoolStore

	// Phases. A nil Scorer or Valuator skips that phase.
	Scorer   *activity.Scorer
	Detector *detection.Detector
	Valuator *valuation.Valuator

	// Data horizon: ToBlock when set, else Head minus Confirmations clamped
	// to the highest block reported by Ingested.
	Head          HeadSource
	Ingested      IngestedSource
	ToBlock       int64
	Confirmations int64

	MinActivityScore int64
	Workers          int
	Logger           *zap.Logger

	now func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Orchestrator{
		chainID:       opts.ChainID,
		pools:         opts.Pools,
		scorer:        opts.Scorer,
		detector:      opts.Detector,
		valuator:      opts.Valuator,
		head:          opts.Head,
		ingested:      opts.Ingested,
		toBlock:       opts.ToBlock,
		confirmations: opts.Confirmations,
		minScore:      opts.MinActivityScore,
		workers:       opts.Workers,
		log:           opts.Logger.Named("orchestrator"),
		now:           opts.now,
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	StartedAt time.Time
	ToBlock   int64

	PoolsScored int
	ActivePools int

	Detection DetectionSummary

	Valued          int
	Priced          int
	PartiallyPriced int

	Duration time.Duration
	Errors   []string
}

// DetectionSummary aggregates the per-pool detection results.
type DetectionSummary struct {
	Pools          int
	PoolsSkipped   int // no base token
	Found          int
	Inserted       int
	WindowsSkipped int
	Errors         []string
}

// Run executes the full pipeline.
// Phases:
//  1. Score pool activity from warehouse logs
//  2. Detect sandwiches in active pools, bounded by Workers
//  3. Value pending attacks
//
// Per-pool and per-attack failures are collected in Errors; only store,
// head and cancellation failures abort the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := o.now()
	result := &RunResult{StartedAt: start}
	defer func() { result.Duration = o.now().Sub(start) }()

	toBlock, err := o.horizon(ctx)
	if err != nil {
		return result, err
	}
	result.ToBlock = toBlock

	// Phase 1: activity
	if o.scorer != nil {
		err := o.phase(PhaseActivity, func() error {
			res, err := o.scorer.ScoreChain(ctx, o.chainID, start)
			if res != nil {
				result.PoolsScored = res.Pools
				result.Errors = append(result.Errors, res.Errors...)
			}
			return err
		})
		if err != nil {
			return result, fmt.Errorf("activity phase: %w", err)
		}
	}

	pools, err := o.pools.ListActive(ctx, o.chainID, o.minScore)
	if err != nil {
		return result, fmt.Errorf("list active pools: %w", err)
	}
	result.ActivePools = len(pools)

	// Phase 2: detection
	err = o.phase(PhaseDetection, func() error {
		summary, err := o.DetectPools(ctx, pools, toBlock)
		if summary != nil {
			result.Detection = *summary
			result.Errors = append(result.Errors, summary.Errors...)
		}
		return err
	})
	if err != nil {
		return result, fmt.Errorf("detection phase: %w", err)
	}

	// Phase 3: valuation
	if o.valuator != nil {
		err := o.phase(PhaseValuation, func() error {
			res, err := o.valuator.Run(ctx)
			if res != nil {
				result.Valued = res.Processed
				result.Priced = res.Priced
				result.PartiallyPriced = res.PartiallyPriced
				result.Errors = append(result.Errors, res.Errors...)
			}
			return err
		})
		if err != nil {
			return result, fmt.Errorf("valuation phase: %w", err)
		}
	}

	o.log.Info("pipeline completed",
		zap.Int64("to_block", toBlock),
		zap.Int("active_pools", result.ActivePools),
		zap.Int("found", result.Detection.Found),
		zap.Int("inserted", result.Detection.Inserted),
		zap.Int("valued", result.Valued),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// DetectPools runs detection over pools with at most Workers in flight.
// Pools without a base token are counted and skipped.
func (o *Orchestrator) DetectPools(ctx context.Context, pools []*domain.Pool, toBlock int64) (*DetectionSummary, error) {
	summary := &DetectionSummary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, p := range pools {
		g.Go(func() error {
			res, err := o.detector.DetectPool(gctx, p, toBlock)

			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				summary.Found += res.Found
				summary.Inserted += res.Inserted
				summary.WindowsSkipped += res.Skipped
				summary.Errors = append(summary.Errors, res.Errors...)
			}
			switch {
			case err == nil:
				summary.Pools++
			case errors.Is(err, detection.ErrNoBaseToken):
				summary.PoolsSkipped++
				o.log.Debug("pool skipped", zap.Int64("pool_id", p.ID), zap.Error(err))
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				summary.Errors = append(summary.Errors, fmt.Sprintf("pool %d: %v", p.ID, err))
				o.log.Error("pool detection failed", zap.Int64("pool_id", p.ID), zap.Error(err))
			}
			return nil
		})
	}
	err := g.Wait()
	return summary, err
}

// horizon returns the highest block to scan. Detection never runs past the
// ingested data, or the cursor would skip swaps that arrive later.
func (o *Orchestrator) horizon(ctx context.Context) (int64, error) {
	if o.toBlock > 0 {
		return o.toBlock, nil
	}
	if o.head == nil {
		return 0, fmt.Errorf("no head source or to block: %w", storage.ErrInvalidInput)
	}
	head, err := o.head.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get head block: %w", err)
	}
	to := max(head-o.confirmations, 0)
	if o.ingested == nil {
		return to, nil
	}

	top, err := o.ingested.MaxBlockNumber(ctx, o.chainID)
	if err != nil {
		return 0, fmt.Errorf("get ingested block: %w", err)
	}
	if top < to {
		o.log.Debug("horizon clamped to ingested data", zap.Int64("confirmed", to), zap.Int64("ingested", top))
		to = top
	}
	return to, nil
}

func (o *Orchestrator) phase(name string, fn func() error) error {
	start := time.Now()
	o.log.Info("phase started", zap.String("phase", name))

	err := fn()
	status := observability.StatusSuccess
	if err != nil {
		status = observability.StatusError
	}
	elapsed := time.Since(start)
	observability.RecordPipelineRun(name, status, elapsed.Seconds())
	o.log.Info("phase finished", zap.String("phase", name), zap.String("status", status), zap.Duration("duration", elapsed))
	return err
}
