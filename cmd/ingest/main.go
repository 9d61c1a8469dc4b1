// Package main backfills swaps and transactions of registered pools from the
// log warehouse or a node, or registers pools from factory events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"sandwich-scan/internal/app"
	"sandwich-scan/internal/config"
	"sandwich-scan/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	fromBlock := flag.Int64("from-block", 0, "First block to ingest")
	toBlock := flag.Int64("to-block", 0, "Last block to ingest (0 = head minus confirmations)")
	discoverPools := flag.Bool("discover-pools", false, "Register pools from factory events instead of backfilling swaps")
	source := flag.String("source", "", "Override ingestion.source: clickhouse or rpc")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *source != "" {
		cfg.Ingestion.Source = *source
	}

	log := logger.Must(cfg.Log).Named("ingest")
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, done := app.SignalContext(context.Background(), log)
	err = run(ctx, cfg, log, *fromBlock, *toBlock, *discoverPools)
	done()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("ingest failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, fromBlock, toBlock int64, discover bool) error {
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	to, err := a.ToBlock(ctx, toBlock)
	if err != nil {
		return err
	}
	if fromBlock > to {
		return fmt.Errorf("from block %d after to block %d", fromBlock, to)
	}

	if discover {
		d, err := a.PoolDiscoverer()
		if err != nil {
			return err
		}
		res, err := d.Discover(ctx, a.Chain.ID, fromBlock, to)
		if err != nil {
			return fmt.Errorf("discover pools: %w", err)
		}
		fmt.Printf("Pool discovery [%d, %d]:\n", fromBlock, to)
		fmt.Printf("  Events: %d\n", res.Events)
		fmt.Printf("  Pools added: %d\n", res.PoolsAdded)
		fmt.Printf("  Tokens added: %d\n", res.TokensAdded)
		fmt.Printf("  Malformed: %d\n", res.Malformed)
		printErrors(res.Errors)
		return nil
	}

	b, err := a.Backfiller()
	if err != nil {
		return err
	}
	res, err := b.BackfillRange(ctx, a.Chain.ID, fromBlock, to)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	fmt.Printf("Backfill [%d, %d] from %s:\n", fromBlock, to, a.Config.Ingestion.Source)
	fmt.Printf("  Logs: %d\n", res.Logs)
	fmt.Printf("  Swaps stored: %d\n", res.SwapsStored)
	fmt.Printf("  Transactions stored: %d\n", res.TxsStored)
	fmt.Printf("  Malformed: %d\n", res.Malformed)
	fmt.Printf("  Missing transactions: %d\n", res.MissingTx)
	fmt.Printf("  Skipped chunks: %d\n", res.SkippedChunks)
	fmt.Printf("  Duration: %s\n", res.Duration)
	printErrors(res.Errors)
	return nil
}

func printErrors(errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("  Errors: %d\n", len(errs))
	for _, e := range errs {
		fmt.Printf("    - %s\n", e)
	}
}
