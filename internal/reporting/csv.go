package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the monthly rows as CSV string. USD columns keep two places.
func RenderCSV(months []SummaryRow) string {
	var sb strings.Builder

	sb.WriteString("month,attacks,valued,unique_pools,unique_attackers,")
	sb.WriteString("revenue_usd,profit_usd,harm_usd,gas_fee_usd\n")

	for _, m := range months {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%s,%s,%s,%s\n",
			m.Month.Format(monthLayout),
			m.Attacks,
			m.Valued,
			m.UniquePools,
			m.UniqueAttackers,
			m.RevenueUSD.StringFixedBank(2),
			m.ProfitUSD.StringFixedBank(2),
			m.HarmUSD.StringFixedBank(2),
			m.GasFeeUSD.StringFixedBank(2),
		))
	}

	return sb.String()
}
