package postgres

import (
	"fmt"
	"strings"

	"sandwich-scan/internal/domain"
)

// legColumns lists the flat leg projection of swap alias s joined with
// transaction alias t. Order matches legScan.dest.
func legColumns(s, t string) string {
	cols := []string{
		s + ".id", s + ".pool_id",
		t + ".block_number", t + ".tx_index", s + ".log_index",
		t + ".tx_hash", "lower(" + t + ".from_address)", t + ".block_timestamp",
		s + ".amount0_in::text", s + ".amount1_in::text", s + ".amount0_out::text", s + ".amount1_out::text",
		s + ".sell_token_id", s + ".buy_token_id",
		t + ".gas_used", t + ".gas_price_wei::text", t + ".effective_gas_price_wei::text",
		s + ".sqrt_price_x96::text", s + ".liquidity::text", s + ".tick",
	}
	return strings.Join(cols, ", ")
}

// legScan receives one legColumns projection.
type legScan struct {
	leg domain.SwapLeg

	a0in, a1in, a0out, a1out string
	gasPrice, effPrice       *string
	sqrtPrice, liquidity     *string
}

func (l *legScan) dest() []any {
	return []any{
		&l.leg.SwapID, &l.leg.PoolID,
		&l.leg.Position.BlockNumber, &l.leg.Position.TxIndex, &l.leg.Position.LogIndex,
		&l.leg.TxHash, &l.leg.Actor, &l.leg.BlockTimestamp,
		&l.a0in, &l.a1in, &l.a0out, &l.a1out,
		&l.leg.SellTokenID, &l.leg.BuyTokenID,
		&l.leg.GasUsed, &l.gasPrice, &l.effPrice,
		&l.sqrtPrice, &l.liquidity, &l.leg.Tick,
	}
}

// result parses the numeric text columns and returns the leg.
func (l *legScan) result() (*domain.SwapLeg, error) {
	var p numParser
	leg := l.leg
	leg.Amount0In = p.numZero(l.a0in)
	leg.Amount1In = p.numZero(l.a1in)
	leg.Amount0Out = p.numZero(l.a0out)
	leg.Amount1Out = p.numZero(l.a1out)
	leg.GasPriceWei = p.num(l.gasPrice)
	leg.EffectiveGasPriceWei = p.num(l.effPrice)
	leg.SqrtPriceX96 = p.num(l.sqrtPrice)
	leg.Liquidity = p.num(l.liquidity)
	if p.err != nil {
		return nil, fmt.Errorf("swap %d: %w", leg.SwapID, p.err)
	}
	return &leg, nil
}
