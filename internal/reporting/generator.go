package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/storage"
)

// Output formats
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Generator produces reports from stored attacks.
type Generator struct {
	chains  storage.ChainStore
	attacks storage.SandwichAttackStore
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(chains storage.ChainStore, attacks storage.SandwichAttackStore) *Generator {
	return &Generator{
		chains:  chains,
		attacks: attacks,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate summarizes the attacks of chainID (internal id) whose victim
// block time falls in [from, to).
func (g *Generator) Generate(ctx context.Context, chainID int64, from, to time.Time) (*Report, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("report period %s to %s: %w", from, to, storage.ErrInvalidInput)
	}

	chain, err := g.chains.GetByID(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("get chain: %w", err)
	}

	summaries, err := g.attacks.MonthlySummary(ctx, chainID, from, to)
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}

	r := &Report{
		GeneratedAt: g.now(),
		ChainID:     chain.ChainID,
		ChainName:   chain.Name,
		From:        from.UTC(),
		To:          to.UTC(),
		Totals:      zeroRow(time.Time{}),
		Months:      make([]SummaryRow, 0, len(summaries)),
	}

	for _, s := range summaries {
		row := toRow(s)
		r.Months = append(r.Months, row)
		addRow(&r.Totals, row)

		if pending := s.Attacks - s.Valued; pending > 0 {
			r.DataQuality.Unvalued += pending
			r.DataQuality.Warnings = append(r.DataQuality.Warnings,
				fmt.Sprintf("%s: %d of %d attacks not valued", s.Month.Format(monthLayout), pending, s.Attacks))
		}
	}

	observability.RecordReportGenerated()
	return r, nil
}

// Render returns the report in the given format.
func Render(r *Report, format string) (string, error) {
	switch format {
	case FormatCSV:
		return RenderCSV(r.Months), nil
	case FormatMarkdown, "md":
		return RenderMarkdown(r), nil
	default:
		return "", fmt.Errorf("unknown report format %q: %w", format, storage.ErrInvalidInput)
	}
}

// WriteFile renders r into dir and returns the written path.
func WriteFile(r *Report, dir, format string) (string, error) {
	body, err := Render(r, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	ext := ".md"
	if format == FormatCSV {
		ext = ".csv"
	}
	name := fmt.Sprintf("sandwich_monthly_%d_%s_%s%s",
		r.ChainID, r.From.Format(monthLayout), r.To.Format(monthLayout), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func toRow(s *domain.MonthlySummary) SummaryRow {
	return SummaryRow{
		Month:           s.Month,
		Attacks:         s.Attacks,
		Valued:          s.Valued,
		UniquePools:     s.UniquePools,
		UniqueAttackers: s.UniqueActors,
		RevenueUSD:      s.RevenueUSD,
		ProfitUSD:       s.ProfitUSD,
		HarmUSD:         s.HarmUSD,
		GasFeeUSD:       s.GasFeeUSD,
	}
}

func zeroRow(month time.Time) SummaryRow {
	return SummaryRow{
		Month:      month,
		RevenueUSD: decimal.Zero,
		ProfitUSD:  decimal.Zero,
		HarmUSD:    decimal.Zero,
		GasFeeUSD:  decimal.Zero,
	}
}

func addRow(dst *SummaryRow, r SummaryRow) {
	dst.Attacks += r.Attacks
	dst.Valued += r.Valued
	dst.RevenueUSD = dst.RevenueUSD.Add(r.RevenueUSD)
	dst.ProfitUSD = dst.ProfitUSD.Add(r.ProfitUSD)
	dst.HarmUSD = dst.HarmUSD.Add(r.HarmUSD)
	dst.GasFeeUSD = dst.GasFeeUSD.Add(r.GasFeeUSD)
}
