package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/storage"
)

// PoolDiscoverer registers pools announced by factory creation events.
type PoolDiscoverer struct {
	source    Source
	metadata  MetadataSource
	tokens    storage.TokenStore
	pools     storage.PoolStore
	factories []string
	policy    retry.Policy
	logger    *zap.Logger
}

// DiscoveryOptions contains configuration for creating a PoolDiscoverer.
type DiscoveryOptions struct {
	Source   Source
	Metadata MetadataSource // nil stores unknown tokens with default metadata
	Tokens   storage.TokenStore
	Pools    storage.PoolStore

	// Factories restricts creation events to these emitters. Empty means any.
	Factories []string
	Policy    retry.Policy
	Logger    *zap.Logger
}

// NewPoolDiscoverer creates a PoolDiscoverer.
func NewPoolDiscoverer(opts DiscoveryOptions) *PoolDiscoverer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PoolDiscoverer{
		source:    opts.Source,
		metadata:  opts.Metadata,
		tokens:    opts.Tokens,
		pools:     opts.Pools,
		factories: opts.Factories,
		policy:    sourcePolicy(opts.Policy),
		logger:    opts.Logger.Named("pool_discovery"),
	}
}

// DiscoveryResult contains statistics from a discovery pass.
type DiscoveryResult struct {
	Events      int
	PoolsAdded  int
	TokensAdded int
	Malformed   int
	Duration    time.Duration
	Errors      []string
}

// Discover registers every pool created in [fromBlock, toBlock] on chainID.
// Tokens missing from the store are resolved through MetadataSource.
func (d *PoolDiscoverer) Discover(ctx context.Context, chainID, fromBlock, toBlock int64) (*DiscoveryResult, error) {
	start := time.Now()
	result := &DiscoveryResult{}

	logs, err := retry.Value(ctx, d.policy.WithNotify(func(err error, next time.Duration) {
		observability.RecordRetry("ingestion", "creation_logs")
		d.logger.Warn("creation log query failed, retrying", zap.Duration("next", next), zap.Error(err))
	}), func(ctx context.Context) ([]*domain.RawLog, error) {
		return d.source.Logs(ctx, storage.LogFilter{
			Topics0:   []string{evm.TopicPairCreated, evm.TopicPoolCreated},
			Addresses: d.factories,
			FromBlock: fromBlock,
			ToBlock:   toBlock,
		})
	})
	if err != nil {
		return result, fmt.Errorf("fetch creation logs: %w", err)
	}
	SortLogs(logs)
	logs = DedupLogs(logs)
	result.Events = len(logs)

	for _, l := range logs {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		pc, err := evm.DecodePoolCreation(l)
		if err != nil {
			result.Malformed++
			observability.RecordDecodeError(eventName(l.Topic0()))
			d.logger.Warn("skipping malformed creation log",
				zap.String("tx", l.TransactionHash),
				zap.Int("log_index", l.LogIndex),
				zap.Error(err))
			continue
		}

		added, tokensAdded, err := d.register(ctx, chainID, pc)
		if err != nil {
			if ctx.Err() != nil {
				result.Duration = time.Since(start)
				return result, ctx.Err()
			}
			result.Errors = append(result.Errors, fmt.Sprintf("pool %s: %v", pc.Pool, err))
			d.logger.Warn("register pool failed", zap.String("pool", pc.Pool), zap.Error(err))
			continue
		}
		observability.RecordLogProcessed(eventName(l.Topic0()))
		result.TokensAdded += tokensAdded
		if added {
			result.PoolsAdded++
		}
	}

	observability.RecordPoolsDiscovered(result.PoolsAdded)
	result.Duration = time.Since(start)
	d.logger.Info("pool discovery complete",
		zap.Int("events", result.Events),
		zap.Int("pools_added", result.PoolsAdded),
		zap.Int("tokens_added", result.TokensAdded),
		zap.Int("malformed", result.Malformed),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (d *PoolDiscoverer) register(ctx context.Context, chainID int64, pc *evm.PoolCreation) (bool, int, error) {
	t0, new0, err := d.token(ctx, chainID, pc.Token0)
	if err != nil {
		return false, 0, err
	}
	t1, new1, err := d.token(ctx, chainID, pc.Token1)
	if err != nil {
		return false, 0, err
	}
	tokensAdded := 0
	if new0 {
		tokensAdded++
	}
	if new1 {
		tokensAdded++
	}

	pool := &domain.Pool{
		ChainID:            chainID,
		Address:            pc.Pool,
		Version:            pc.Version,
		Token0ID:           t0.ID,
		Token1ID:           t1.ID,
		FeePips:            pc.FeePips,
		CreatedBlockNumber: pc.BlockNumber,
		IsActive:           true,
	}
	n, err := d.pools.UpsertBulk(ctx, []*domain.Pool{pool})
	if err != nil {
		return false, tokensAdded, fmt.Errorf("upsert pool: %w", err)
	}
	return n > 0, tokensAdded, nil
}

// token returns the stored token at address, creating it when missing.
func (d *PoolDiscoverer) token(ctx context.Context, chainID int64, address string) (*domain.Token, bool, error) {
	address = strings.ToLower(address)
	t, err := d.tokens.GetByAddress(ctx, chainID, address)
	if err == nil {
		return t, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("get token %s: %w", address, err)
	}

	symbol, decimals := evm.DefaultUnknownSymbol, evm.DefaultTokenDecimals
	if d.metadata != nil {
		symbol, decimals, err = d.metadata.TokenMetadata(ctx, address)
		if err != nil {
			return nil, false, fmt.Errorf("token metadata %s: %w", address, err)
		}
	}

	t = &domain.Token{ChainID: chainID, Address: address, Symbol: symbol, Decimals: decimals}
	n, err := d.tokens.UpsertBulk(ctx, []*domain.Token{t})
	if err != nil {
		return nil, false, fmt.Errorf("upsert token %s: %w", address, err)
	}
	return t, n > 0, nil
}
