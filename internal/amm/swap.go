// Package amm implements Uniswap constant-product and concentrated-liquidity price math.
// Swap amounts use integer arithmetic only, so results match on-chain rounding.
package amm

import "math/big"

// BpsDenominator is the denominator of a fee expressed in basis points.
const BpsDenominator = 10_000

// SwapOutput returns the exact-in output of a constant-product swap with a fee in
// basis points (30 = 0.3%):
//
//	floor(amountIn*(1-fee)*reserveOut / (reserveIn + amountIn*(1-fee)))
//
// Returns 0 for any non-positive input.
func SwapOutput(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	return SwapOutputFee(amountIn, reserveIn, reserveOut, feeBps, BpsDenominator)
}

// SwapOutputFee is SwapOutput with an arbitrary fee fraction feeNum/feeDen,
// e.g. 3000/1_000_000 for pool fees stored in pips.
func SwapOutputFee(amountIn, reserveIn, reserveOut *big.Int, feeNum, feeDen int64) *big.Int {
	if !positive(amountIn) || !positive(reserveIn) || !positive(reserveOut) {
		return new(big.Int)
	}
	if feeDen <= 0 || feeNum < 0 || feeNum >= feeDen {
		return new(big.Int)
	}

	// x_eff = amountIn * (feeDen - feeNum)
	xEff := new(big.Int).Mul(amountIn, big.NewInt(feeDen-feeNum))

	num := new(big.Int).Mul(xEff, reserveOut)
	den := new(big.Int).Mul(reserveIn, big.NewInt(feeDen))
	den.Add(den, xEff)

	return num.Quo(num, den)
}

// VirtualReserves returns the constant-product reserves equivalent to a v3 pool's
// active range: x = L / sqrtP and y = L * sqrtP, with sqrtP = sqrtPriceX96 / 2^96.
// Both values are floored. Returns zeros for non-positive input.
func VirtualReserves(sqrtPriceX96, liquidity *big.Int) (reserve0, reserve1 *big.Int) {
	if !positive(sqrtPriceX96) || !positive(liquidity) {
		return new(big.Int), new(big.Int)
	}

	reserve0 = new(big.Int).Lsh(liquidity, 96)
	reserve0.Quo(reserve0, sqrtPriceX96)

	reserve1 = new(big.Int).Mul(liquidity, sqrtPriceX96)
	reserve1.Rsh(reserve1, 96)

	return reserve0, reserve1
}

func positive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}
