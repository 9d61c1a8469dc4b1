// Package reserves rebuilds a pool's two-sided reserves as they stood
// immediately before a given swap.
package reserves

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"sandwich-scan/internal/amm"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/storage"
)

// ErrNoSnapshot means the pool has no usable state before the reference swap.
var ErrNoSnapshot = errors.New("no reserve snapshot")

// Snapshot sources
const (
	SourceSync    = "sync"
	SourceV3State = "v3_state"
)

// Snapshot is a pool's reserves at one point of the swap order.
type Snapshot struct {
	Reserve0  *big.Int
	Reserve1  *big.Int
	Liquidity *big.Int        // active liquidity, v3 only
	Position  domain.Position // position of the event the reserves were read from
	Source    string
}

// InRange reports whether every leg ran at the snapshot's active liquidity.
// A v3 swap crossing an initialized tick ends at a different liquidity, and
// constant-product maths over the virtual reserves does not hold across it.
// Snapshots without liquidity are always in range.
func (s *Snapshot) InRange(legs ...*domain.SwapLeg) bool {
	if s.Liquidity == nil {
		return true
	}
	for _, l := range legs {
		if l.Liquidity == nil || l.Liquidity.Cmp(s.Liquidity) != 0 {
			return false
		}
	}
	return true
}

// SyncSource finds the last Sync log of a pair. storage.LogStore satisfies it.
type SyncSource interface {
	LatestBefore(ctx context.Context, address, topic0 string, pos domain.Position, excludeTxHash string) (*domain.RawLog, error)
}

// StateSource finds the last v3 swap state of a pool. storage.SwapStore satisfies it.
type StateSource interface {
	LatestStateBefore(ctx context.Context, poolID int64, pos domain.Position, excludeTxHash string) (*domain.SwapLeg, error)
}

// Options configures the Reconstructor.
type Options struct {
	Logs   SyncSource
	States StateSource
	Policy retry.Policy
	Logger *zap.Logger
}

// Reconstructor answers "what were the reserves just before this swap".
type Reconstructor struct {
	logs   SyncSource
	states StateSource
	policy retry.Policy
	log    *zap.Logger
}

// New creates a Reconstructor. Either source may be nil, in which case pools of
// that version never have a snapshot.
func New(opts Options) *Reconstructor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Reconstructor{
		logs:   opts.Logs,
		states: opts.States,
		policy: opts.Policy,
		log:    opts.Logger.Named("reserves"),
	}
}

// Before returns pool's reserves immediately before ref, ignoring state changes
// made by ref's own transaction.
//
// For v3 pools the reserves are the virtual reserves of the active range. They
// are exact only for swaps that stay in that range; check with InRange.
//
// Returns ErrNoSnapshot when no prior state exists and an error matching
// storage.ErrUnavailable when the source could not be reached. Callers treat
// both as "not computable".
func (r *Reconstructor) Before(ctx context.Context, pool *domain.Pool, ref *domain.SwapLeg) (*Snapshot, error) {
	switch pool.Version {
	case domain.PoolVersionV3:
		return r.fromV3State(ctx, pool, ref)
	default:
		return r.fromSync(ctx, pool, ref)
	}
}

func (r *Reconstructor) fromSync(ctx context.Context, pool *domain.Pool, ref *domain.SwapLeg) (*Snapshot, error) {
	if r.logs == nil {
		return nil, ErrNoSnapshot
	}

	l, err := retry.Value(ctx, r.notify("latest_sync"), func(ctx context.Context) (*domain.RawLog, error) {
		return r.logs.LatestBefore(ctx, strings.ToLower(pool.Address), evm.TopicSync, ref.Position, ref.TxHash)
	})
	if err != nil {
		return nil, r.mapErr(err, pool, ref)
	}

	snap, err := DecodeSync(l)
	if err != nil {
		r.log.Warn("skip malformed sync log",
			zap.String("pool", pool.Address),
			zap.String("tx", l.TransactionHash),
			zap.Int("log_index", l.LogIndex),
			zap.Error(err))
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

func (r *Reconstructor) fromV3State(ctx context.Context, pool *domain.Pool, ref *domain.SwapLeg) (*Snapshot, error) {
	if r.states == nil {
		return nil, ErrNoSnapshot
	}

	leg, err := retry.Value(ctx, r.notify("latest_v3_state"), func(ctx context.Context) (*domain.SwapLeg, error) {
		return r.states.LatestStateBefore(ctx, pool.ID, ref.Position, ref.TxHash)
	})
	if err != nil {
		return nil, r.mapErr(err, pool, ref)
	}

	r0, r1 := amm.VirtualReserves(leg.SqrtPriceX96, leg.Liquidity)
	if r0.Sign() == 0 || r1.Sign() == 0 {
		return nil, ErrNoSnapshot
	}
	return &Snapshot{
		Reserve0:  r0,
		Reserve1:  r1,
		Liquidity: new(big.Int).Set(leg.Liquidity),
		Position:  leg.Position,
		Source:    SourceV3State,
	}, nil
}

func (r *Reconstructor) mapErr(err error, pool *domain.Pool, ref *domain.SwapLeg) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNoSnapshot
	case errors.Is(err, context.Canceled):
		return err
	default:
		r.log.Warn("reserve source unavailable",
			zap.Int64("pool_id", pool.ID),
			zap.Int64("block", ref.Position.BlockNumber),
			zap.Error(err))
		return fmt.Errorf("%w: reserves before swap %d: %v", storage.ErrUnavailable, ref.SwapID, err)
	}
}

func (r *Reconstructor) notify(op string) retry.Policy {
	return r.policy.WithNotify(func(err error, next time.Duration) {
		observability.RecordRetry("reserves", op)
		r.log.Debug("retrying reserve lookup", zap.String("op", op), zap.Duration("next", next), zap.Error(err))
	})
}

// DecodeSync turns a Sync log into a snapshot. Empty reserves are rejected.
func DecodeSync(l *domain.RawLog) (*Snapshot, error) {
	if l.Topic0() != evm.TopicSync {
		return nil, fmt.Errorf("decode sync: %w: topic %s", evm.ErrUnknownEvent, l.Topic0())
	}
	r0, r1, err := evm.DecodeSync(l.Data)
	if err != nil {
		return nil, fmt.Errorf("decode sync: %w", err)
	}
	if r0.Sign() <= 0 || r1.Sign() <= 0 {
		return nil, fmt.Errorf("decode sync: %w: empty reserves", evm.ErrMalformedLog)
	}
	return &Snapshot{Reserve0: r0, Reserve1: r1, Position: l.Position(), Source: SourceSync}, nil
}
