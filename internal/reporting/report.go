package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report is the monthly sandwich summary of one chain.
type Report struct {
	GeneratedAt time.Time
	ChainID     int64 // EIP-155
	ChainName   string
	From        time.Time // inclusive
	To          time.Time // exclusive

	Totals SummaryRow
	Months []SummaryRow // ordered by month ASC

	DataQuality DataQualitySection
}

// SummaryRow is one month (or the total) of attacks.
type SummaryRow struct {
	Month           time.Time // zero for totals
	Attacks         int64
	Valued          int64
	UniquePools     int64
	UniqueAttackers int64
	RevenueUSD      decimal.Decimal
	ProfitUSD       decimal.Decimal
	HarmUSD         decimal.Decimal
	GasFeeUSD       decimal.Decimal
}

// DataQualitySection lists coverage gaps of the USD figures.
type DataQualitySection struct {
	Unvalued int64    // attacks without a valuation pass
	Warnings []string // one line per month with unvalued attacks
}
