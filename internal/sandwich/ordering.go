package sandwich

import (
	"errors"
	"sort"

	"sandwich-scan/internal/domain"
)

// ErrInvalidOrdering is returned when legs are not in strict total order.
var ErrInvalidOrdering = errors.New("swaps are not in strict (block, tx_index, log_index) order")

// SortLegs orders legs by (block_number ASC, tx_index ASC, log_index ASC).
func SortLegs(legs []*domain.SwapLeg) {
	sort.Slice(legs, func(i, j int) bool {
		return legs[i].Position.Compare(legs[j].Position) < 0
	})
}

// ValidateLegOrdering checks that legs are strictly increasing in total order.
// Two legs at the same position violate the ordering invariant.
// Returns ErrInvalidOrdering if not.
func ValidateLegOrdering(legs []*domain.SwapLeg) error {
	for i := 1; i < len(legs); i++ {
		if legs[i-1].Position.Compare(legs[i].Position) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}
