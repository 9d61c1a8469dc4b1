package valuation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sandwich-scan/internal/amm"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/pricing"
	"sandwich-scan/internal/reserves"
	"sandwich-scan/internal/sandwich"
	"sandwich-scan/internal/storage"
)

// Defaults
const (
	DefaultBatchSize = 500
	DefaultWorkers   = 4
)

// ReserveSource rebuilds pre-attack reserves. *reserves.Reconstructor satisfies it.
type ReserveSource interface {
	Before(ctx context.Context, pool *domain.Pool, ref *domain.SwapLeg) (*reserves.Snapshot, error)
}

// PriceSource prices the native coin and base tokens. *pricing.Oracle satisfies it.
type PriceSource interface {
	NativeUSD(ctx context.Context, chainID, block int64) (decimal.Decimal, error)
	BaseUSD(ctx context.Context, chainID, baseTokenID, block int64) (decimal.Decimal, error)
}

// Options configures the Valuator.
type Options struct {
	Attacks  storage.SandwichAttackStore
	Reserves ReserveSource
	Prices   PriceSource

	BatchSize int
	Workers   int
	Revalue   bool // recompute rows that already carry a valuation
	Logger    *zap.Logger

	now func() time.Time
}

// Valuator runs the update pass that fills the economic fields of attacks.
type Valuator struct {
	attacks  storage.SandwichAttackStore
	reserves ReserveSource
	prices   PriceSource

	batchSize int
	workers   int
	revalue   bool
	log       *zap.Logger
	now       func() time.Time
}

// New creates a Valuator.
func New(opts Options) *Valuator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Valuator{
		attacks:   opts.Attacks,
		reserves:  opts.Reserves,
		prices:    opts.Prices,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		revalue:   opts.Revalue,
		log:       opts.Logger.Named("valuator"),
		now:       opts.now,
	}
}

// Result summarizes a valuation pass.
type Result struct {
	Processed       int
	Priced          int // every flag set
	PartiallyPriced int
	Errors          []string
}

// Run values every pending attack, batch by batch. Cancellation is honored
// between batches; a cancelled run returns the partial result and ctx.Err().
func (v *Valuator) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	var mu sync.Mutex

	afterID := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := v.attacks.ListForValuation(ctx, afterID, v.batchSize, v.revalue)
		if err != nil {
			return result, fmt.Errorf("list attacks for valuation: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(v.workers)
		for _, in := range batch {
			g.Go(func() error {
				val, err := v.Value(gctx, in)
				if err == nil {
					err = v.attacks.UpdateValuation(gctx, in.AttackID, val)
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					result.Errors = append(result.Errors, fmt.Sprintf("attack %d: %v", in.AttackID, err))
					v.log.Warn("valuation failed", zap.Int64("attack_id", in.AttackID), zap.Error(err))
					return nil
				}
				result.Processed++
				if val.GasPriced && val.HarmPriced && val.USDPriced {
					result.Priced++
					observability.RecordValuation(observability.ValuationPriced)
				} else {
					result.PartiallyPriced++
					observability.RecordValuation(observability.ValuationPartiallyPriced)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}

		afterID = batch[len(batch)-1].AttackID
		v.log.Info("valuation batch done",
			zap.Int("size", len(batch)),
			zap.Int64("last_id", afterID),
			zap.Int("processed", result.Processed))
	}

	return result, nil
}

// Value computes the valuation of one attack. Unknown components leave their
// flag false and their fields zero; only context and store failures are errors.
func (v *Valuator) Value(ctx context.Context, in *domain.ValuationInput) (*domain.Valuation, error) {
	baseIsToken0 := in.BaseIsToken0()
	block := in.Front.Position.BlockNumber

	val := &domain.Valuation{
		RevenueBaseRaw:    sandwich.Revenue(&in.Front, &in.Back, baseIsToken0),
		GasFeeWeiAttacker: new(big.Int),
		GasFeeBaseRaw:     new(big.Int),
		HarmBaseRaw:       new(big.Int),
	}

	// Harm
	snap, err := v.reserves.Before(ctx, &in.Pool, &in.Front)
	switch {
	case err == nil && !snap.InRange(&in.Front, &in.Victim):
		v.log.Debug("harm not computable: swaps leave the active tick range", zap.Int64("attack_id", in.AttackID))
	case err == nil:
		val.HarmBaseRaw = Harm(&in.Victim, snap, baseIsToken0, in.Pool.FeePips)
		val.HarmPriced = true
	case errors.Is(err, reserves.ErrNoSnapshot), errors.Is(err, storage.ErrUnavailable):
		v.log.Debug("harm not computable", zap.Int64("attack_id", in.AttackID), zap.Error(err))
	default:
		return nil, fmt.Errorf("reconstruct reserves: %w", err)
	}

	// Prices
	baseUSD, baseOK, err := v.price(func() (decimal.Decimal, error) {
		return v.prices.BaseUSD(ctx, in.ChainID, in.BaseTokenID, block)
	})
	if err != nil {
		return nil, err
	}
	nativeUSD, nativeOK, err := v.price(func() (decimal.Decimal, error) {
		return v.prices.NativeUSD(ctx, in.ChainID, block)
	})
	if err != nil {
		return nil, err
	}

	// Gas
	if wei, ok := GasFeeWei(&in.Front, &in.Back); ok {
		val.GasFeeWeiAttacker = wei
		if nativeOK && baseOK {
			val.GasFeeBaseRaw = pricing.GasToBase(wei, nativeUSD, baseUSD, in.BaseDecimals)
			val.GasPriced = true
		}
	}
	val.ProfitBaseRaw = Profit(val.RevenueBaseRaw, val.GasFeeBaseRaw, val.GasPriced)

	// USD
	if baseOK {
		val.USDPriced = true
		val.RevenueUSD = pricing.ToUSD(val.RevenueBaseRaw, in.BaseDecimals, baseUSD)
		val.ProfitUSD = pricing.ToUSD(val.ProfitBaseRaw, in.BaseDecimals, baseUSD)
		if val.HarmPriced {
			val.HarmUSD = pricing.ToUSD(val.HarmBaseRaw, in.BaseDecimals, baseUSD)
		}
		if val.GasPriced {
			val.GasFeeUSD = amm.RoundBank(pricing.WeiToUSD(val.GasFeeWeiAttacker, nativeUSD), amm.DisplayPlaces)
		}
	}

	now := v.now().UTC()
	val.ValuedAt = &now
	return val, nil
}

// price runs a lookup, mapping "unavailable" to ok=false.
func (v *Valuator) price(fn func() (decimal.Decimal, error)) (decimal.Decimal, bool, error) {
	p, err := fn()
	switch {
	case err == nil:
		return p, true, nil
	case errors.Is(err, storage.ErrUnavailable):
		return decimal.Zero, false, nil
	default:
		return decimal.Zero, false, fmt.Errorf("price lookup: %w", err)
	}
}
