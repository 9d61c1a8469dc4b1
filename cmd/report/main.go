package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"sandwich-scan/internal/app"
	"sandwich-scan/internal/config"
	"sandwich-scan/internal/fixtures"
	"sandwich-scan/internal/logger"
	"sandwich-scan/internal/reporting"
)

const monthLayout = "2006-01"

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	from := flag.String("from", "", "First month, YYYY-MM (default: 12 months before --to)")
	to := flag.String("to", "", "Month after the last one, YYYY-MM (default: next month)")
	format := flag.String("format", "", "Override report.format: csv, markdown or both")
	outputDir := flag.String("output-dir", "", "Override report.output_dir")
	useFixtures := flag.Bool("use-fixtures", false, "Run the pipeline on the demo dataset and report on it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *format != "" {
		cfg.Report.Format = *format
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}

	log := logger.Must(cfg.Log).Named("report")
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	fromT, toT, err := period(*from, *to, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *useFixtures && *from == "" && *to == "" {
		fromT, toT = fixtures.DemoPeriod()
	}
	formats, err := formatsFor(cfg.Report.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	paths, err := run(ctx, cfg, log, fromT, toT, formats, *useFixtures)
	if err != nil {
		log.Fatal("report failed", zap.Error(err))
	}

	fmt.Println("Report generated successfully:")
	for _, p := range paths {
		fmt.Printf("  - %s\n", p)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger, from, to time.Time, formats []string, demo bool) ([]string, error) {
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
		return nil, err
	}
	defer a.Close()

	if demo {
		orch, err := a.Orchestrator(0)
		if err != nil {
			return nil, err
		}
		if _, err := orch.Run(ctx); err != nil {
			return nil, fmt.Errorf("demo pipeline: %w", err)
		}
	}

	r, err := reporting.NewGenerator(a.Stores.Chains, a.Stores.Attacks).Generate(ctx, a.Chain.ID, from, to)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, f := range formats {
		p, err := reporting.WriteFile(r, a.Config.Report.OutputDir, f)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// period parses the month flags. to is exclusive.
func period(from, to string, now time.Time) (time.Time, time.Time, error) {
	toT := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if to != "" {
		t, err := time.Parse(monthLayout, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --to %q: %w", to, err)
		}
		toT = t
	}
	fromT := toT.AddDate(0, -12, 0)
	if from != "" {
		t, err := time.Parse(monthLayout, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --from %q: %w", from, err)
		}
		fromT = t
	}
	if !fromT.Before(toT) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s must be before --to %s", fromT.Format(monthLayout), toT.Format(monthLayout))
	}
	return fromT, toT, nil
}

func formatsFor(f string) ([]string, error) {
	switch f {
	case "both", "":
		return []string{reporting.FormatCSV, reporting.FormatMarkdown}, nil
	case reporting.FormatCSV, reporting.FormatMarkdown, "md":
		return []string{f}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q: want csv, markdown or both", f)
	}
}
