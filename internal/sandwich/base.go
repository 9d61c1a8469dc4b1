package sandwich

import "sandwich-scan/internal/domain"

// ResolveBase picks the value-denominating token of a pool: a stable coin
// first (lowest priority wins), then the chain's wrapped native token.
// Returns false when neither side qualifies.
func ResolveBase(pool *domain.Pool, stables []domain.StableCoin, wrapped *domain.WrappedNativeToken) (int64, bool) {
	best := int64(0)
	bestPriority := 0
	found := false

	for _, s := range stables {
		if !pool.HasToken(s.TokenID) {
			continue
		}
		if !found || s.Priority < bestPriority {
			best, bestPriority, found = s.TokenID, s.Priority, true
		}
	}
	if found {
		return best, true
	}

	if wrapped != nil && pool.HasToken(wrapped.TokenID) {
		return wrapped.TokenID, true
	}
	return 0, false
}
