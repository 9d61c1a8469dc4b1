// Package app wires the loaded configuration into stores and pipeline
// components. Every binary opens one App and builds what it needs from it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sandwich-scan/internal/activity"
	"sandwich-scan/internal/config"
	"sandwich-scan/internal/detection"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/ingestion"
	"sandwich-scan/internal/orchestrator"
	"sandwich-scan/internal/pricing"
	"sandwich-scan/internal/reserves"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/storage"
	"sandwich-scan/internal/storage/clickhouse"
	"sandwich-scan/internal/storage/memory"
	"sandwich-scan/internal/storage/migrations"
	"sandwich-scan/internal/storage/postgres"
	"sandwich-scan/internal/valuation"
	"sandwich-scan/internal/verification"
)

// Ingestion sources and detection engines.
const (
	SourceClickHouse = "clickhouse"
	SourceRPC        = "rpc"
	EngineSQL        = "sql"
	EngineMatcher    = "matcher"
)

// Stores groups every store the components read or write.
type Stores struct {
	Chains   storage.ChainStore
	Tokens   storage.TokenStore
	Wrapped  storage.WrappedNativeTokenStore
	Pools    storage.PoolStore
	Txs      storage.TransactionStore
	Swaps    storage.SwapStore
	Attacks  storage.SandwichAttackStore
	Progress storage.DetectionProgressStore
	Logs     storage.LogStore
	RawTxs   storage.RawTransactionStore
	Finder   storage.CandidateFinder // SQL engine; nil outside Postgres
}

// MemoryStores returns Stores backed by db.
func MemoryStores(db *memory.DB) Stores {
	return Stores{
		Chains:   memory.NewChainStore(db),
		Tokens:   memory.NewTokenStore(db),
		Wrapped:  memory.NewWrappedNativeTokenStore(db),
		Pools:    memory.NewPoolStore(db),
		Txs:      memory.NewTransactionStore(db),
		Swaps:    memory.NewSwapStore(db),
		Attacks:  memory.NewSandwichAttackStore(db),
		Progress: memory.NewDetectionProgressStore(db),
		Logs:     memory.NewLogStore(db),
		RawTxs:   memory.NewRawTransactionStore(db),
	}
}

// App holds the opened resources of one binary run.
type App struct {
	Config config.Config
	Log    *zap.Logger
	Stores Stores
	Chain  *domain.Chain
	Node   *evm.Client // nil when no node URL is configured for the chain
	Cache  pricing.Cache

	// DemoToBlock is the data horizon of the demo dataset, zero otherwise.
	DemoToBlock int64

	closers []func()
}

// Open connects to Postgres and ClickHouse, applies migrations, and resolves
// the configured chain. A chain missing from the database is seeded from the
// built-in catalog.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	pg, err := postgres.NewPoolWithConfig(ctx, cfg.Postgres.DSN, postgres.PoolConfig{
		MaxConns:        cfg.Postgres.MaxConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, pg.Close)

	if err := migrations.RunPostgresMigrations(ctx, pg, log); err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	ch, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := ch.Close(); err != nil {
			log.Warn("close clickhouse", zap.Error(err))
		}
	})

	a.Stores = Stores{
		Chains:   postgres.NewChainStore(pg),
		Tokens:   postgres.NewTokenStore(pg),
		Wrapped:  postgres.NewWrappedNativeTokenStore(pg),
		Pools:    postgres.NewPoolStore(pg),
		Txs:      postgres.NewTransactionStore(pg),
		Swaps:    postgres.NewSwapStore(pg),
		Attacks:  postgres.NewSandwichAttackStore(pg),
		Progress: postgres.NewDetectionProgressStore(pg),
		Logs:     clickhouse.NewLogStore(ch),
		RawTxs:   clickhouse.NewRawTransactionStore(ch),
		Finder:   postgres.NewCandidateFinder(pg),
	}

	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openNode(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.resolveChain(ctx); err != nil {
		a.Close()
		return nil, err
	}

	log.Info("app opened",
		zap.Int64("chain_id", a.Chain.ChainID),
		zap.String("chain", a.Chain.Name),
		zap.Bool("node", a.Node != nil),
		zap.Bool("redis", cfg.Redis.Addr != ""))
	return a, nil
}

// OpenDemo returns an App over in-memory stores loaded with the demo dataset:
// one attack in a USDC/TOK pair and a USDC/WETH price reference. The node,
// Redis and the SQL engine are never used.
func OpenDemo(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	db := memory.NewDB()
	a := &App{Config: cfg, Log: log, Stores: MemoryStores(db), Cache: pricing.NewMemoryCache(0)}
	a.Config.Detection.Engine = EngineMatcher
	a.Config.Ingestion.Source = SourceClickHouse

	b, err := fixtures.NewBuilder(ctx, fixtures.Memory(db), fixtures.Options{})
	if err != nil {
		return nil, fmt.Errorf("load demo chain: %w", err)
	}
	if _, err := b.LoadPriceReference(ctx); err != nil {
		return nil, fmt.Errorf("load demo price reference: %w", err)
	}
	if _, err := b.LoadDemo(ctx); err != nil {
		return nil, fmt.Errorf("load demo swaps: %w", err)
	}
	if err := a.Stores.Logs.InsertBulk(ctx, []*domain.RawLog{fixtures.SyncLog(b.Pool.Address, 99, 10_000, 10_000)}); err != nil {
		return nil, fmt.Errorf("load demo sync: %w", err)
	}

	a.Chain = b.Chain
	a.DemoToBlock = fixtures.DemoHorizon
	log.Info("demo app opened", zap.Int64("pool_id", b.Pool.ID))
	return a, nil
}

// Close releases every opened resource in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openCache(ctx context.Context) error {
	r := a.Config.Redis
	if r.Addr == "" {
		a.Cache = pricing.NewMemoryCache(0)
		return nil
	}
	client, err := pricing.DialRedis(ctx, r.Addr, r.Password, r.DB)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.Cache = pricing.NewRedisCache(client, r.PriceTTL)
	return nil
}

func (a *App) openNode(ctx context.Context) error {
	url := a.Config.RPC.URL(a.Config.ChainID)
	if url == "" {
		if a.Config.Ingestion.Source == SourceRPC {
			return fmt.Errorf("ingestion source rpc: no rpc url for chain %d: %w", a.Config.ChainID, storage.ErrInvalidInput)
		}
		a.Log.Warn("no rpc url configured, node fallbacks disabled", zap.Int64("chain_id", a.Config.ChainID))
		return nil
	}

	node, err := evm.Dial(ctx, url,
		evm.WithTimeout(a.Config.RPC.Timeout),
		evm.WithPolicy(a.Policy()),
		evm.WithLogger(a.Log))
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	a.closers = append(a.closers, node.Close)
	a.Node = node
	return nil
}

func (a *App) resolveChain(ctx context.Context) error {
	chain, err := a.Stores.Chains.GetByChainID(ctx, a.Config.ChainID)
	if err == nil {
		a.Chain = chain
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get chain %d: %w", a.Config.ChainID, err)
	}

	ref, ok := References[a.Config.ChainID]
	if !ok {
		return fmt.Errorf("chain %d is not registered and has no built-in reference data: %w",
			a.Config.ChainID, storage.ErrNotFound)
	}
	chain, err = Seed(ctx, a.seedStores(), ref)
	if err != nil {
		return fmt.Errorf("seed chain %d: %w", a.Config.ChainID, err)
	}
	a.Log.Info("seeded chain reference data", zap.Int64("chain_id", chain.ChainID), zap.Int64("id", chain.ID))
	a.Chain = chain
	return nil
}

func (a *App) seedStores() SeedStores {
	return SeedStores{
		Chains:  a.Stores.Chains,
		Tokens:  a.Stores.Tokens,
		Wrapped: a.Stores.Wrapped,
		Pools:   a.Stores.Pools,
	}
}

// Policy returns the configured retry policy.
func (a *App) Policy() retry.Policy {
	return a.Config.Retry.Policy()
}

// ToBlock resolves an explicit horizon. Zero means the head minus the
// configured confirmations, or the demo horizon in demo mode.
func (a *App) ToBlock(ctx context.Context, toBlock int64) (int64, error) {
	if toBlock > 0 {
		return toBlock, nil
	}
	if a.DemoToBlock > 0 {
		return a.DemoToBlock, nil
	}
	if a.Node == nil {
		return 0, fmt.Errorf("no --to-block and no node to read the head from: %w", storage.ErrInvalidInput)
	}
	head, err := a.Node.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get head block: %w", err)
	}
	return max(head-a.Config.Detection.Confirmations, 0), nil
}

// DetectToBlock is ToBlock for detection: a horizon read from the head is
// clamped to the highest ingested block so the detection cursor never passes
// swaps that are not stored yet.
func (a *App) DetectToBlock(ctx context.Context, toBlock int64) (int64, error) {
	to, err := a.ToBlock(ctx, toBlock)
	if err != nil || toBlock > 0 || a.DemoToBlock > 0 {
		return to, err
	}
	return a.clampIngested(ctx, to)
}

func (a *App) clampIngested(ctx context.Context, to int64) (int64, error) {
	top, err := a.Stores.Txs.MaxBlockNumber(ctx, a.Chain.ID)
	if err != nil {
		return 0, fmt.Errorf("get ingested block: %w", err)
	}
	return min(to, top), nil
}

// Detector builds the detector for the configured engine.
func (a *App) Detector() (*detection.Detector, error) {
	d := a.Config.Detection
	minVictim, err := d.MinVictim()
	if err != nil {
		return nil, err
	}

	var finder storage.CandidateFinder
	switch {
	case d.Engine == EngineSQL && a.Stores.Finder != nil:
		finder = a.Stores.Finder
	case d.Engine == EngineSQL:
		return nil, fmt.Errorf("detection engine sql needs postgres: %w", storage.ErrInvalidInput)
	default:
		finder = detection.NewMatcherFinder(a.Stores.Swaps)
	}

	return detection.New(detection.Options{
		Finder:           finder,
		Attacks:          a.Stores.Attacks,
		Progress:         a.Stores.Progress,
		Tokens:           a.Stores.Tokens,
		Wrapped:          a.Stores.Wrapped,
		WindowSize:       d.WindowSize,
		Overlap:          d.WindowOverlap,
		MaxBlockGap:      d.MaxBlockGap,
		MinVictimBaseRaw: minVictim,
		InsertChunkSize:  d.InsertChunkSize,
		Name:             d.DetectedBy,
		Policy:           a.Policy(),
		Logger:           a.Log,
	}), nil
}

// Verifier builds the detection verifier. The in-process matcher is the
// reference; with engines set the SQL finder is the subject.
func (a *App) Verifier(engines bool) (*verification.Verifier, error) {
	d := a.Config.Detection
	minVictim, err := d.MinVictim()
	if err != nil {
		return nil, err
	}

	opts := verification.Options{
		Reference:        detection.NewMatcherFinder(a.Stores.Swaps),
		Attacks:          a.Stores.Attacks,
		Tokens:           a.Stores.Tokens,
		Wrapped:          a.Stores.Wrapped,
		WindowSize:       d.WindowSize,
		Overlap:          d.WindowOverlap,
		MaxBlockGap:      d.MaxBlockGap,
		MinVictimBaseRaw: minVictim,
		Logger:           a.Log,
	}
	if engines {
		if a.Stores.Finder == nil {
			return nil, fmt.Errorf("engine comparison needs postgres: %w", storage.ErrInvalidInput)
		}
		opts.Subject = a.Stores.Finder
	}
	return verification.NewVerifier(opts), nil
}

// Oracle builds the native/USD price oracle.
func (a *App) Oracle() *pricing.Oracle {
	opts := pricing.Options{
		Wrapped: a.Stores.Wrapped,
		Pools:   a.Stores.Pools,
		Tokens:  a.Stores.Tokens,
		Swaps:   a.Stores.Swaps,
		Cache:   a.Cache,
		Logger:  a.Log,
	}
	if a.Node != nil {
		opts.Node = a.Node
	}
	return pricing.NewOracle(opts)
}

// Valuator builds the valuation pass. revalue recomputes valued rows.
func (a *App) Valuator(revalue bool) *valuation.Valuator {
	return valuation.New(valuation.Options{
		Attacks: a.Stores.Attacks,
		Reserves: reserves.New(reserves.Options{
			Logs:   a.Stores.Logs,
			States: a.Stores.Swaps,
			Policy: a.Policy(),
			Logger: a.Log,
		}),
		Prices:    a.Oracle(),
		BatchSize: a.Config.Valuation.BatchSize,
		Workers:   a.Config.Valuation.Workers,
		Revalue:   revalue,
		Logger:    a.Log,
	})
}

// Scorer builds the pool activity scorer.
func (a *App) Scorer() *activity.Scorer {
	return activity.NewScorer(activity.DefaultConfig(), a.Stores.Logs, a.Stores.Pools, a.Log)
}

// Orchestrator builds the full pipeline. A zero toBlock follows the chain head.
func (a *App) Orchestrator(toBlock int64) (*orchestrator.Orchestrator, error) {
	det, err := a.Detector()
	if err != nil {
		return nil, err
	}

	opts := orchestrator.Options{
		ChainID:          a.Chain.ID,
		Pools:            a.Stores.Pools,
		Scorer:           a.Scorer(),
		Detector:         det,
		Valuator:         a.Valuator(false),
		ToBlock:          toBlock,
		Confirmations:    a.Config.Detection.Confirmations,
		MinActivityScore: a.Config.Activity.MinScore,
		Workers:          a.Config.Detection.Workers,
		Logger:           a.Log,
	}
	if opts.ToBlock == 0 {
		opts.ToBlock = a.DemoToBlock
	}
	if a.Node != nil {
		opts.Head = a.Node
		opts.Ingested = a.Stores.Txs
	}
	return orchestrator.New(opts), nil
}

// Source returns the configured ingestion source.
func (a *App) Source() (ingestion.Source, error) {
	switch a.Config.Ingestion.Source {
	case SourceRPC:
		if a.Node == nil {
			return nil, fmt.Errorf("ingestion source rpc needs a node: %w", storage.ErrInvalidInput)
		}
		return ingestion.NewNodeSource(a.Node), nil
	default:
		return ingestion.NewWarehouseSource(a.Stores.Logs, a.Stores.RawTxs), nil
	}
}

// Backfiller builds the swap backfiller over the configured source.
func (a *App) Backfiller() (*ingestion.Backfiller, error) {
	src, err := a.Source()
	if err != nil {
		return nil, err
	}
	return ingestion.NewBackfiller(ingestion.BackfillOptions{
		Source:      src,
		Pools:       a.Stores.Pools,
		Txs:         a.Stores.Txs,
		Swaps:       a.Stores.Swaps,
		ChunkBlocks: a.Config.Ingestion.ChunkBlocks,
		BatchSize:   a.Config.Ingestion.BatchSize,
		Policy:      a.Policy(),
		Logger:      a.Log,
	}), nil
}

// PoolDiscoverer builds the factory event scanner. Token metadata comes from
// the node when one is configured.
func (a *App) PoolDiscoverer() (*ingestion.PoolDiscoverer, error) {
	src, err := a.Source()
	if err != nil {
		return nil, err
	}
	opts := ingestion.DiscoveryOptions{
		Source:    src,
		Tokens:    a.Stores.Tokens,
		Pools:     a.Stores.Pools,
		Factories: References[a.Chain.ChainID].Factories,
		Policy:    a.Policy(),
		Logger:    a.Log,
	}
	if a.Node != nil {
		opts.Metadata = a.Node
	}
	return ingestion.NewPoolDiscoverer(opts), nil
}
