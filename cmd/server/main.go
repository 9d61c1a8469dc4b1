// Package main runs the detection pipeline on a schedule:
// - Pipeline (cron): activity scoring → detection → valuation
// - HTTP: /health, /status, /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sandwich-scan/internal/app"
	"sandwich-scan/internal/config"
	"sandwich-scan/internal/logger"
	"sandwich-scan/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	schedule := flag.String("schedule", "", "Override schedule.pipeline (cron with seconds)")
	metricsAddr := flag.String("metrics-addr", "", "Override metrics.addr")
	runOnStart := flag.Bool("run-on-start", true, "Run the pipeline once at startup")
	demo := flag.Bool("demo", false, "Serve the in-memory demo dataset")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *schedule != "" {
		cfg.Schedule.Pipeline = *schedule
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	log := logger.Must(cfg.Log).Named("server")
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, done := app.SignalContext(context.Background(), log)
	err = run(ctx, cfg, log, *runOnStart, *demo)
	done()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, runOnStart, demo bool) error {
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

	srv := NewServer(cfg.Schedule.Pipeline, func() (*orchestrator.Orchestrator, error) {
		return a.Orchestrator(0)
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Metrics.Addr) })
	g.Go(func() error { return srv.Run(gctx, runOnStart) })
	return g.Wait()
}
