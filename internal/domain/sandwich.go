package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is a (front, victim, back) triplet produced by the matcher.
type Candidate struct {
	PoolID          int64
	BaseTokenID     int64
	Front           *SwapLeg
	Victim          *SwapLeg
	Back            *SwapLeg
	AttackerAddress string
	VictimAddress   string

	VictimBaseSizeRaw *big.Int
	RevenueBaseRaw    *big.Int
}

// Key returns the natural deduplication key of the triplet.
func (c *Candidate) Key() TripletKey {
	return TripletKey{FrontSwapID: c.Front.SwapID, VictimSwapID: c.Victim.SwapID, BackSwapID: c.Back.SwapID}
}

// TripletKey uniquely identifies a sandwich attack.
type TripletKey struct {
	FrontSwapID  int64
	VictimSwapID int64
	BackSwapID   int64
}

// SandwichAttack is a persisted detection. Identity fields are written once by
// the detector; economic fields are written by the valuation pass.
// Corresponds to sandwich_attacks table in PostgreSQL.
type SandwichAttack struct {
	ID              int64
	ChainID         int64
	PoolID          int64
	FrontSwapID     int64
	VictimSwapID    int64
	BackSwapID      int64
	AttackerAddress string
	VictimAddress   string
	BaseTokenID     int64
	BlockNumber     int64 // victim block
	BlockTimestamp  int64 // victim block time, Unix seconds

	VictimBaseSizeRaw *big.Int
	Valuation

	DetectedBy string
	Notes      *string
	CreatedAt  time.Time
}

// Key returns the triplet key of the attack.
func (a *SandwichAttack) Key() TripletKey {
	return TripletKey{FrontSwapID: a.FrontSwapID, VictimSwapID: a.VictimSwapID, BackSwapID: a.BackSwapID}
}

// Valuation holds the economic fields of an attack.
// A false *Priced flag means the matching fields are unknown, not zero.
type Valuation struct {
	RevenueBaseRaw    *big.Int
	GasFeeWeiAttacker *big.Int // valid when GasPriced
	GasFeeBaseRaw     *big.Int // valid when GasPriced
	ProfitBaseRaw     *big.Int // revenue only when !GasPriced
	HarmBaseRaw       *big.Int // valid when HarmPriced

	GasFeeUSD  decimal.Decimal
	RevenueUSD decimal.Decimal
	ProfitUSD  decimal.Decimal
	HarmUSD    decimal.Decimal

	GasPriced  bool
	HarmPriced bool
	USDPriced  bool

	ValuedAt *time.Time
}

// ValuationInput is everything the valuator needs for one attack,
// fetched as a single flat projection.
type ValuationInput struct {
	AttackID    int64
	ChainID     int64
	BaseTokenID int64

	Pool          Pool
	BaseDecimals  int
	OtherDecimals int

	Front  SwapLeg
	Victim SwapLeg
	Back   SwapLeg
}

// BaseIsToken0 reports whether the base token is the pool's token0.
func (in *ValuationInput) BaseIsToken0() bool {
	return in.Pool.Token0ID == in.BaseTokenID
}

// MonthlySummary aggregates attacks of one calendar month (UTC).
type MonthlySummary struct {
	Month        time.Time // first instant of the month
	Attacks      int64
	Valued       int64 // attacks with a valuation written
	RevenueUSD   decimal.Decimal
	ProfitUSD    decimal.Decimal
	HarmUSD      decimal.Decimal
	GasFeeUSD    decimal.Decimal
	UniquePools  int64
	UniqueActors int64 // distinct attacker addresses
}
