package domain

import "math/big"

// SwapLeg is the flat projection of a swap joined with its transaction.
// Detection and valuation work on legs only and never navigate entities.
type SwapLeg struct {
	SwapID   int64
	PoolID   int64
	Position Position
	TxHash   string
	Actor    string // transaction from_address, lowercased
	// BlockTimestamp is the Unix timestamp in seconds of the leg's block.
	BlockTimestamp int64

	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int

	SellTokenID *int64
	BuyTokenID  *int64

	GasUsed              *int64
	GasPriceWei          *big.Int
	EffectiveGasPriceWei *big.Int

	// v3 state after the swap
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *int
}

// AmountIn returns the raw amount sent into the pool on the given side.
func (l *SwapLeg) AmountIn(token0 bool) *big.Int {
	if token0 {
		return orZero(l.Amount0In)
	}
	return orZero(l.Amount1In)
}

// AmountOut returns the raw amount received from the pool on the given side.
func (l *SwapLeg) AmountOut(token0 bool) *big.Int {
	if token0 {
		return orZero(l.Amount0Out)
	}
	return orZero(l.Amount1Out)
}

var zero = new(big.Int)

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return zero
	}
	return x
}
