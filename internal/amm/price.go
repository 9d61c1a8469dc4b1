package amm

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// MinSignificantDigits is the minimum precision kept by price conversions.
const MinSignificantDigits = 60

// MaxTick is the largest tick supported by Uniswap v3.
const MaxTick = 887272

// tickPlaces is the working scale for 1.0001^tick. At MaxTick the smallest
// result is ~1e-39, which still leaves more than MinSignificantDigits digits.
const tickPlaces = 120

var (
	// ErrInvalidPrice is returned for zero or negative price inputs.
	ErrInvalidPrice = errors.New("invalid price input")

	// ErrTickOutOfRange is returned for ticks outside [-MaxTick, MaxTick].
	ErrTickOutOfRange = errors.New("tick out of range")

	q192     = new(big.Int).Lsh(big.NewInt(1), 192)
	tickBase = decimal.RequireFromString("1.0001")
)

// PriceFromSqrtPriceX96 returns the price of token0 in token1 units:
//
//	(sqrtPriceX96 / 2^96)^2 * 10^(decimals0 - decimals1)
func PriceFromSqrtPriceX96(sqrtPriceX96 *big.Int, decimals0, decimals1 int) (decimal.Decimal, error) {
	if !positive(sqrtPriceX96) {
		return decimal.Zero, ErrInvalidPrice
	}

	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Set(q192)

	shift := decimals0 - decimals1
	if shift > 0 {
		num.Mul(num, pow10(shift))
	} else if shift < 0 {
		den.Mul(den, pow10(-shift))
	}

	return divPrecise(num, den), nil
}

// PriceFromTick returns the price of token0 in token1 units:
//
//	1.0001^tick * 10^(decimals0 - decimals1)
func PriceFromTick(tick, decimals0, decimals1 int) (decimal.Decimal, error) {
	if tick < -MaxTick || tick > MaxTick {
		return decimal.Zero, ErrTickOutOfRange
	}

	n := tick
	if n < 0 {
		n = -n
	}
	p := powTruncated(tickBase, n, tickPlaces)
	if tick < 0 {
		p = decimal.NewFromInt(1).DivRound(p, tickPlaces)
	}

	return p.Mul(decimal.New(1, int32(decimals0-decimals1))), nil
}

// BasePrice orients a token1-per-token0 price so that it reads as the price of
// the base token in units of the other token. It inverts when base is token1.
func BasePrice(price1Per0 decimal.Decimal, baseIsToken0 bool) (decimal.Decimal, error) {
	if price1Per0.Sign() <= 0 {
		return decimal.Zero, ErrInvalidPrice
	}
	if baseIsToken0 {
		return price1Per0, nil
	}
	return decimal.NewFromInt(1).DivRound(price1Per0, scaleFor(price1Per0)), nil
}

// PriceFromReserves returns the token1-per-token0 spot price of a v2 pair.
func PriceFromReserves(reserve0, reserve1 *big.Int, decimals0, decimals1 int) (decimal.Decimal, error) {
	if !positive(reserve0) || !positive(reserve1) {
		return decimal.Zero, ErrInvalidPrice
	}

	num := new(big.Int).Set(reserve1)
	den := new(big.Int).Set(reserve0)

	shift := decimals0 - decimals1
	if shift > 0 {
		num.Mul(num, pow10(shift))
	} else if shift < 0 {
		den.Mul(den, pow10(-shift))
	}

	return divPrecise(num, den), nil
}

// divPrecise divides two positive integers keeping at least
// MinSignificantDigits significant digits.
func divPrecise(num, den *big.Int) decimal.Decimal {
	places := int32(MinSignificantDigits + 1)
	if gap := len(den.String()) - len(num.String()); gap > 0 {
		places += int32(gap)
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), places)
}

// scaleFor returns the number of decimal places needed for 1/d to keep
// MinSignificantDigits significant digits.
func scaleFor(d decimal.Decimal) int32 {
	intDigits := int32(len(d.Truncate(0).String()))
	if d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return MinSignificantDigits + 1 + intDigits
	}
	return MinSignificantDigits + 1
}

// powTruncated computes base^n by squaring, truncating every step to places.
func powTruncated(base decimal.Decimal, n int, places int32) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Truncate(places)
		}
		base = base.Mul(base).Truncate(places)
		n >>= 1
	}
	return result
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// DisplayPlaces is the scale of human-facing prices and USD amounts.
const DisplayPlaces = 18

// RoundBank rounds a human-facing value half-to-even at places.
func RoundBank(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundBank(places)
}

// FloorRaw truncates a non-negative decimal amount to whole raw units.
// Negative input returns 0.
func FloorRaw(d decimal.Decimal) *big.Int {
	if d.Sign() <= 0 {
		return new(big.Int)
	}
	return d.Floor().BigInt()
}
