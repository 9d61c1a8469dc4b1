// Package main runs sandwich detection for one pool or every active pool.
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
	"sandwich-scan/internal/detection"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/logger"
	"sandwich-scan/internal/orchestrator"
	"sandwich-scan/internal/verification"
)

// errMismatch is returned when verification finds any difference.
var errMismatch = errors.New("verification found mismatches")

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	poolID := flag.Int64("pool-id", 0, "Detect a single pool (0 = every active pool)")
	toBlock := flag.Int64("to-block", 0, "Highest ingested block (0 = head minus confirmations)")
	engine := flag.String("engine", "", "Override detection.engine: sql or matcher")
	workers := flag.Int("workers", 0, "Override detection.workers")
	demo := flag.Bool("demo", false, "Run on the in-memory demo dataset")
	verify := flag.String("verify", "", "Verify instead of detecting: stored (re-derive stored attacks) or engines (sql vs matcher)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *engine != "" {
		cfg.Detection.Engine = *engine
	}
	if *workers > 0 {
		cfg.Detection.Workers = *workers
	}

	log := logger.Must(cfg.Log).Named("detect")
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, done := app.SignalContext(context.Background(), log)
	err = run(ctx, cfg, log, *poolID, *toBlock, *demo, *verify)
	done()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("detection failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, poolID, toBlock int64, demo bool, verify string) error {
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

	to, err := a.DetectToBlock(ctx, toBlock)
	if err != nil {
		return err
	}

	var pools []*domain.Pool
	if poolID > 0 {
		p, err := a.Stores.Pools.GetByID(ctx, poolID)
		if err != nil {
			return fmt.Errorf("get pool %d: %w", poolID, err)
		}
		pools = []*domain.Pool{p}
	} else {
		pools, err = a.Stores.Pools.ListActive(ctx, a.Chain.ID, a.Config.Activity.MinScore)
		if err != nil {
			return fmt.Errorf("list active pools: %w", err)
		}
	}

	if verify != "" {
		return runVerify(ctx, a, pools, to, verify)
	}

	det, err := a.Detector()
	if err != nil {
		return err
	}
	orch := orchestrator.New(orchestrator.Options{
		ChainID:  a.Chain.ID,
		Pools:    a.Stores.Pools,
		Detector: det,
		ToBlock:  to,
		Workers:  a.Config.Detection.Workers,
		Logger:   log,
	})

	summary, err := orch.DetectPools(ctx, pools, to)
	if err != nil {
		return err
	}

	fmt.Printf("Detection through block %d (%s):\n", to, det.DetectedBy())
	fmt.Printf("  Pools: %d (skipped without base token: %d)\n", summary.Pools, summary.PoolsSkipped)
	fmt.Printf("  Found: %d\n", summary.Found)
	fmt.Printf("  Inserted: %d\n", summary.Inserted)
	fmt.Printf("  Windows skipped: %d\n", summary.WindowsSkipped)
	if len(summary.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(summary.Errors))
		for _, e := range summary.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	return nil
}

func runVerify(ctx context.Context, a *app.App, pools []*domain.Pool, to int64, mode string) error {
	if mode != "stored" && mode != "engines" {
		return fmt.Errorf("unknown verify mode %q: want stored or engines", mode)
	}
	v, err := a.Verifier(mode == "engines")
	if err != nil {
		return err
	}

	fmt.Printf("Verification (%s) through block %d:\n", mode, to)
	mismatched := 0
	for _, p := range pools {
		if err := ctx.Err(); err != nil {
			return err
		}

		var r *verification.VerificationReport
		if mode == "engines" {
			r, err = v.VerifyEngines(ctx, p, p.CreatedBlockNumber, to)
		} else {
			r, err = v.VerifyStored(ctx, p, p.CreatedBlockNumber, to)
		}
		if errors.Is(err, detection.ErrNoBaseToken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("verify pool %d: %w", p.ID, err)
		}

		fmt.Printf("  Pool %d %s: matched %d, divergent %d, expected only %d, actual only %d\n",
			p.ID, p.Address, r.Matched, r.Divergent, r.ExpectedOnly, r.ActualOnly)
		for _, res := range r.Results {
			k := res.Key
			switch {
			case res.ExpectedOnly:
				fmt.Printf("    - %d/%d/%d missing\n", k.FrontSwapID, k.VictimSwapID, k.BackSwapID)
			case res.ActualOnly:
				fmt.Printf("    - %d/%d/%d unexpected\n", k.FrontSwapID, k.VictimSwapID, k.BackSwapID)
			default:
				for _, d := range res.Divergences {
					fmt.Printf("    - %d/%d/%d %s: %v != %v\n", k.FrontSwapID, k.VictimSwapID, k.BackSwapID, d.Field, d.Expected, d.Actual)
				}
			}
		}
		if !r.Match() {
			mismatched++
		}
	}

	if mismatched > 0 {
		return fmt.Errorf("%d pools: %w", mismatched, errMismatch)
	}
	return nil
}
