// Package main fills the economic fields of detected attacks.
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
	revalue := flag.Bool("revalue", false, "Recompute attacks that already carry a valuation")
	workers := flag.Int("workers", 0, "Override valuation.workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Valuation.Workers = *workers
	}

	log := logger.Must(cfg.Log).Named("valuate")
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, done := app.SignalContext(context.Background(), log)
	err = run(ctx, cfg, log, *revalue)
	done()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("valuation failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, revalue bool) error {
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Valuator(revalue).Run(ctx)
	if err != nil {
		return fmt.Errorf("valuation pass: %w", err)
	}

	fmt.Printf("Valuation completed:\n")
	fmt.Printf("  Processed: %d\n", res.Processed)
	fmt.Printf("  Fully priced: %d\n", res.Priced)
	fmt.Printf("  Partially priced: %d\n", res.PartiallyPriced)
	if len(res.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	return nil
}
