package reporting

import (
	"fmt"
	"strings"
	"time"
)

const monthLayout = "2006-01"

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Sandwich Attack Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Chain: %s (%d) | Period: %s to %s\n\n",
		r.ChainName, r.ChainID, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly)))

	// Totals
	t := r.Totals
	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Attacks | %d |\n", t.Attacks))
	sb.WriteString(fmt.Sprintf("| Valued | %d |\n", t.Valued))
	sb.WriteString(fmt.Sprintf("| Revenue (USD) | %s |\n", t.RevenueUSD.StringFixedBank(2)))
	sb.WriteString(fmt.Sprintf("| Profit (USD) | %s |\n", t.ProfitUSD.StringFixedBank(2)))
	sb.WriteString(fmt.Sprintf("| Victim Harm (USD) | %s |\n", t.HarmUSD.StringFixedBank(2)))
	sb.WriteString(fmt.Sprintf("| Attacker Gas (USD) | %s |\n", t.GasFeeUSD.StringFixedBank(2)))
	sb.WriteString("\n")

	// Monthly
	sb.WriteString("## By Month\n\n")
	if len(r.Months) > 0 {
		sb.WriteString("| Month | Attacks | Valued | Pools | Attackers | Revenue | Profit | Harm | Gas |\n")
		sb.WriteString("|-------|---------|--------|-------|-----------|---------|--------|------|-----|\n")
		for _, m := range r.Months {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %s | %s | %s | %s |\n",
				m.Month.Format(monthLayout), m.Attacks, m.Valued, m.UniquePools, m.UniqueAttackers,
				m.RevenueUSD.StringFixedBank(2), m.ProfitUSD.StringFixedBank(2),
				m.HarmUSD.StringFixedBank(2), m.GasFeeUSD.StringFixedBank(2)))
		}
	} else {
		sb.WriteString("No attacks detected in this period.\n")
	}
	sb.WriteString("\n")

	// Data Quality
	sb.WriteString("## Data Quality\n\n")
	if r.DataQuality.Unvalued == 0 {
		sb.WriteString("All attacks are valued.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("**%d attacks are not valued yet.** USD totals exclude them.\n\n", r.DataQuality.Unvalued))
		for _, w := range r.DataQuality.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("USD figures cover attacks whose base token is a stable coin or the wrapped native token.\n")

	return sb.String()
}
