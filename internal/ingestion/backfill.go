// Package ingestion turns raw warehouse or node logs into the relational
// model: pools and tokens from factory events, swaps and their transactions
// from pool events.
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

// Defaults
const (
	DefaultChunkBlocks = 10_000
	DefaultBatchSize   = storage.DefaultChunkSize
)

// Backfiller loads swaps of registered pools over a block range.
type Backfiller struct {
	source      Source
	pools       storage.PoolStore
	txs         storage.TransactionStore
	swaps       storage.SwapStore
	chunkBlocks int64
	batchSize   int
	policy      retry.Policy
	logger      *zap.Logger
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Source      Source
	Pools       storage.PoolStore
	Txs         storage.TransactionStore
	Swaps       storage.SwapStore
	ChunkBlocks int64 // blocks per source query
	BatchSize   int   // rows per upsert
	Policy      retry.Policy
	Logger      *zap.Logger
}

// NewBackfiller creates a new historical swap backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	if opts.ChunkBlocks <= 0 {
		opts.ChunkBlocks = DefaultChunkBlocks
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Backfiller{
		source:      opts.Source,
		pools:       opts.Pools,
		txs:         opts.Txs,
		swaps:       opts.Swaps,
		chunkBlocks: opts.ChunkBlocks,
		batchSize:   opts.BatchSize,
		policy:      sourcePolicy(opts.Policy),
		logger:      opts.Logger.Named("backfill"),
	}
}

// sourcePolicy keeps the backfiller from retrying errors that a retrying
// source already gave up on.
func sourcePolicy(p retry.Policy) retry.Policy {
	if p.Classifier == nil {
		p.Classifier = func(err error) bool {
			return !errors.Is(err, retry.ErrExhausted) && retry.IsTransient(err)
		}
	}
	return p
}

// BackfillResult contains statistics from a backfill operation.
type BackfillResult struct {
	Logs           int
	SwapsStored    int
	TxsStored      int
	Malformed      int // logs that failed to decode
	MissingTx      int // swaps whose transaction the source did not return
	SkippedChunks  int
	LastBlockBound int64
	Duration       time.Duration
	Errors         []string
}

// BackfillRange ingests swaps of every pool of chainID with blocks in
// [fromBlock, toBlock]. A chunk whose source calls keep failing is skipped.
// Malformed rows are logged and skipped. Re-running a range is safe.
func (b *Backfiller) BackfillRange(ctx context.Context, chainID, fromBlock, toBlock int64) (*BackfillResult, error) {
	start := time.Now()
	result := &BackfillResult{}

	pools, err := b.pools.ListByChain(ctx, chainID)
	if err != nil {
		return result, fmt.Errorf("list pools: %w", err)
	}
	if len(pools) == 0 {
		b.logger.Info("no pools registered", zap.Int64("chain_id", chainID))
		return result, nil
	}

	byAddr := make(map[string]*domain.Pool, len(pools))
	addrs := make([]string, len(pools))
	for i, p := range pools {
		byAddr[strings.ToLower(p.Address)] = p
		addrs[i] = p.Address
	}

	b.logger.Info("starting backfill",
		zap.Int64("chain_id", chainID),
		zap.Int64("from", fromBlock),
		zap.Int64("to", toBlock),
		zap.Int("pools", len(pools)))

	for lo := fromBlock; lo <= toBlock; lo += b.chunkBlocks {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		hi := lo + b.chunkBlocks - 1
		if hi > toBlock {
			hi = toBlock
		}

		err := b.backfillChunk(ctx, chainID, byAddr, addrs, lo, hi, result)
		switch {
		case err == nil:
			result.LastBlockBound = hi
		case ctx.Err() != nil:
			result.Duration = time.Since(start)
			return result, ctx.Err()
		case errors.Is(err, retry.ErrExhausted):
			result.SkippedChunks++
			result.LastBlockBound = hi
			result.Errors = append(result.Errors, fmt.Sprintf("blocks %d-%d: %v", lo, hi, err))
			b.logger.Error("chunk skipped", zap.Int64("from", lo), zap.Int64("to", hi), zap.Error(err))
		default:
			result.Duration = time.Since(start)
			return result, fmt.Errorf("backfill blocks %d-%d: %w", lo, hi, err)
		}
	}

	result.Duration = time.Since(start)
	b.logger.Info("backfill complete",
		zap.Int("logs", result.Logs),
		zap.Int("swaps", result.SwapsStored),
		zap.Int("txs", result.TxsStored),
		zap.Int("malformed", result.Malformed),
		zap.Int("missing_tx", result.MissingTx),
		zap.Int("skipped_chunks", result.SkippedChunks),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (b *Backfiller) backfillChunk(ctx context.Context, chainID int64, byAddr map[string]*domain.Pool, addrs []string, lo, hi int64, result *BackfillResult) error {
	logs, err := retry.Value(ctx, b.notify("logs"), func(ctx context.Context) ([]*domain.RawLog, error) {
		return b.source.Logs(ctx, storage.LogFilter{Topics0: evm.SwapTopics, Addresses: addrs, FromBlock: lo, ToBlock: hi})
	})
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}
	SortLogs(logs)
	logs = DedupLogs(logs)
	result.Logs += len(logs)

	hashes := uniqueHashes(logs)
	raws, err := retry.Value(ctx, b.notify("transactions"), func(ctx context.Context) ([]*domain.RawTransaction, error) {
		return b.source.Transactions(ctx, hashes)
	})
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	txIDs, stored, err := b.storeTransactions(ctx, chainID, raws)
	if err != nil {
		return err
	}
	result.TxsStored += stored

	var swaps []*domain.Swap
	for _, l := range logs {
		pool := byAddr[strings.ToLower(l.Address)]
		if pool == nil {
			continue
		}
		event := eventName(l.Topic0())

		decoded, err := evm.DecodeSwap(l)
		if err == nil && decoded.Version != pool.Version {
			err = fmt.Errorf("%w: %s event on %s pool", evm.ErrMalformedLog, decoded.Version, pool.Version)
		}
		if err != nil {
			result.Malformed++
			observability.RecordDecodeError(event)
			b.logger.Warn("skipping malformed log",
				zap.String("tx", l.TransactionHash),
				zap.Int("log_index", l.LogIndex),
				zap.Error(err))
			continue
		}

		txID, ok := txIDs[strings.ToLower(l.TransactionHash)]
		if !ok {
			result.MissingTx++
			b.logger.Warn("swap transaction not found", zap.String("tx", l.TransactionHash), zap.Int("log_index", l.LogIndex))
			continue
		}
		observability.RecordLogProcessed(event)
		swaps = append(swaps, decoded.ToSwap(pool, txID, l.LogIndex))
	}

	for _, ch := range storage.Chunks(len(swaps), b.batchSize) {
		n, err := b.swaps.UpsertBulk(ctx, swaps[ch[0]:ch[1]])
		if err != nil {
			return fmt.Errorf("upsert swaps: %w", err)
		}
		result.SwapsStored += n
		observability.RecordStored(n, 0)
	}
	observability.RecordStored(0, stored)
	return nil
}

// storeTransactions upserts raws and returns their ids by lowercase hash.
func (b *Backfiller) storeTransactions(ctx context.Context, chainID int64, raws []*domain.RawTransaction) (map[string]int64, int, error) {
	txs := make([]*domain.Transaction, 0, len(raws))
	for _, r := range raws {
		txs = append(txs, toTransaction(chainID, r))
	}

	stored := 0
	for _, ch := range storage.Chunks(len(txs), b.batchSize) {
		n, err := b.txs.UpsertBulk(ctx, txs[ch[0]:ch[1]])
		if err != nil {
			return nil, stored, fmt.Errorf("upsert transactions: %w", err)
		}
		stored += n
	}

	ids := make(map[string]int64, len(txs))
	for _, t := range txs {
		ids[strings.ToLower(t.TxHash)] = t.ID
	}
	return ids, stored, nil
}

func toTransaction(chainID int64, r *domain.RawTransaction) *domain.Transaction {
	t := &domain.Transaction{
		ChainID:              chainID,
		TxHash:               strings.ToLower(r.Hash),
		BlockNumber:          r.BlockNumber,
		TxIndex:              r.TransactionIndex,
		BlockTimestamp:       r.BlockTimestamp,
		FromAddress:          strings.ToLower(r.FromAddress),
		GasUsed:              r.GasUsed,
		GasPriceWei:          r.GasPrice,
		EffectiveGasPriceWei: r.EffectiveGasPrice,
		Status:               r.Status,
	}
	if r.ToAddress != "" {
		to := strings.ToLower(r.ToAddress)
		t.ToAddress = &to
	}
	return t
}

func uniqueHashes(logs []*domain.RawLog) []string {
	seen := make(map[string]struct{}, len(logs))
	var out []string
	for _, l := range logs {
		h := strings.ToLower(l.TransactionHash)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

func eventName(topic0 string) string {
	switch topic0 {
	case evm.TopicV2Swap:
		return "v2_swap"
	case evm.TopicV3Swap:
		return "v3_swap"
	case evm.TopicPairCreated:
		return "pair_created"
	case evm.TopicPoolCreated:
		return "pool_created"
	default:
		return "unknown"
	}
}

func (b *Backfiller) notify(op string) retry.Policy {
	return b.policy.WithNotify(func(err error, next time.Duration) {
		observability.RecordRetry("ingestion", op)
		b.logger.Warn("source call failed, retrying", zap.String("op", op), zap.Duration("next", next), zap.Error(err))
	})
}
