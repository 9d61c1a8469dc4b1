// Package sandwich finds front-run, victim and back-run triplets in the ordered
// swap stream of a single pool.
package sandwich

import "sandwich-scan/internal/domain"

// Direction is the exact-in flow of a swap.
type Direction int8

// Swap directions
const (
	Ambiguous  Direction = 0  // non exact-in shape or multi-token flow
	ZeroForOne Direction = 1  // sells token0 for token1
	OneForZero Direction = -1 // sells token1 for token0
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case ZeroForOne:
		return "token0->token1"
	case OneForZero:
		return "token1->token0"
	default:
		return "ambiguous"
	}
}

// Opposite returns the reverse direction. Ambiguous stays ambiguous.
func (d Direction) Opposite() Direction {
	return -d
}

// Classify returns the direction of a swap. Only the two exact-in shapes
// (one side in, the other side out, nothing else) are directional.
func Classify(l *domain.SwapLeg) Direction {
	a0in := l.AmountIn(true).Sign()
	a1in := l.AmountIn(false).Sign()
	a0out := l.AmountOut(true).Sign()
	a1out := l.AmountOut(false).Sign()

	switch {
	case a0in > 0 && a1out > 0 && a1in == 0 && a0out == 0:
		return ZeroForOne
	case a1in > 0 && a0out > 0 && a0in == 0 && a1out == 0:
		return OneForZero
	default:
		return Ambiguous
	}
}

// SellDirection returns the direction that sells the base token.
func SellDirection(baseIsToken0 bool) Direction {
	if baseIsToken0 {
		return ZeroForOne
	}
	return OneForZero
}
