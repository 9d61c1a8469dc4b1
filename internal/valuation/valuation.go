// Package valuation computes the economics of a detected sandwich: attacker
// revenue, gas cost, profit and the harm done to the victim.
package valuation

import (
	"math/big"

	"sandwich-scan/internal/amm"
	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/reserves"
)

// GasPrice returns the price paid per gas by a leg's transaction. The
// effective price wins over the legacy one when it is positive.
func GasPrice(l *domain.SwapLeg) (*big.Int, bool) {
	if l.EffectiveGasPriceWei != nil && l.EffectiveGasPriceWei.Sign() > 0 {
		return l.EffectiveGasPriceWei, true
	}
	if l.GasPriceWei != nil && l.GasPriceWei.Sign() > 0 {
		return l.GasPriceWei, true
	}
	return nil, false
}

// legGas returns gas_used * gas_price of one leg.
func legGas(l *domain.SwapLeg) (*big.Int, bool) {
	if l.GasUsed == nil || *l.GasUsed < 0 {
		return nil, false
	}
	price, ok := GasPrice(l)
	if !ok {
		return nil, false
	}
	return new(big.Int).Mul(big.NewInt(*l.GasUsed), price), true
}

// GasFeeWei returns the attacker's total gas cost across both legs.
// It is unknown when either leg lacks gas data. Legs sent in the same
// transaction are charged once.
func GasFeeWei(front, back *domain.SwapLeg) (*big.Int, bool) {
	f, ok := legGas(front)
	if !ok {
		return nil, false
	}
	if front.TxHash != "" && front.TxHash == back.TxHash {
		return f, true
	}
	b, ok := legGas(back)
	if !ok {
		return nil, false
	}
	return f.Add(f, b), true
}

// Harm returns the victim's loss in raw base units: the output the victim
// would have received against the pre-attack reserves, minus what it actually
// received, converted to base at the snapshot's spot ratio. Never negative.
//
// The victim trades in the front-run's direction, so it sells base and buys
// the other token.
func Harm(victim *domain.SwapLeg, snap *reserves.Snapshot, baseIsToken0 bool, feePips int64) *big.Int {
	rBase, rOther := oriented(snap, baseIsToken0)

	in := victim.AmountIn(baseIsToken0)
	counterfactual := amm.SwapOutputFee(in, rBase, rOther, feePips, domain.FeeDenominatorPips)
	actual := victim.AmountOut(!baseIsToken0)

	delta := new(big.Int).Sub(counterfactual, actual)
	if delta.Sign() <= 0 {
		return new(big.Int)
	}
	return ToBaseUnits(delta, snap, baseIsToken0)
}

// ToBaseUnits converts a raw amount of the non-base token to raw base units at
// the snapshot's spot reserve ratio, floored.
func ToBaseUnits(amountOther *big.Int, snap *reserves.Snapshot, baseIsToken0 bool) *big.Int {
	if amountOther == nil || amountOther.Sign() <= 0 {
		return new(big.Int)
	}
	rBase, rOther := oriented(snap, baseIsToken0)
	if rOther.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amountOther, rBase)
	return out.Quo(out, rOther)
}

func oriented(snap *reserves.Snapshot, baseIsToken0 bool) (rBase, rOther *big.Int) {
	if baseIsToken0 {
		return snap.Reserve0, snap.Reserve1
	}
	return snap.Reserve1, snap.Reserve0
}

// Profit is revenue minus gas in base units, or revenue alone when gas could
// not be priced. It can be negative.
func Profit(revenue, gasBase *big.Int, gasPriced bool) *big.Int {
	out := new(big.Int).Set(revenue)
	if gasPriced && gasBase != nil {
		out.Sub(out, gasBase)
	}
	return out
}
