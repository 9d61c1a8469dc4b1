// Package main provides the end-to-end pipeline entry point.
// Executes: activity scoring → detection → valuation
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
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/logger"
	"sandwich-scan/internal/reporting"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	toBlock := flag.Int64("to-block", 0, "Highest ingested block (0 = head minus confirmations)")
	demo := flag.Bool("demo", false, "Run on the in-memory demo dataset and print its report")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.Log).Named("pipeline")
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, done := app.SignalContext(context.Background(), log)
	err = run(ctx, cfg, log, *toBlock, *demo)
	done()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("pipeline failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, toBlock int64, demo bool) error {
	var (
		a   *app.App
		err error
	)
	if demo {
		a, err = app.OpenDemo(ctx, cfg, log)
	} else {
		a, err = app.Open(ctx, cfg, log)
	}
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.Orchestrator(toBlock)
	if err != nil {
		return err
	}

	fmt.Println("=== Sandwich Pipeline ===")
	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Pipeline completed through block %d in %s:\n", result.ToBlock, result.Duration)
	fmt.Printf("  Pools scored: %d\n", result.PoolsScored)
	fmt.Printf("  Active pools: %d\n", result.ActivePools)
	fmt.Printf("  Pools detected: %d (skipped: %d)\n", result.Detection.Pools, result.Detection.PoolsSkipped)
	fmt.Printf("  Attacks found: %d\n", result.Detection.Found)
	fmt.Printf("  Attacks inserted: %d\n", result.Detection.Inserted)
	fmt.Printf("  Valued: %d (fully priced: %d, partially: %d)\n", result.Valued, result.Priced, result.PartiallyPriced)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	if !demo {
		return nil
	}

	from, to := fixtures.DemoPeriod()
	r, err := reporting.NewGenerator(a.Stores.Chains, a.Stores.Attacks).Generate(ctx, a.Chain.ID, from, to)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Print(reporting.RenderMarkdown(r))
	return nil
}
