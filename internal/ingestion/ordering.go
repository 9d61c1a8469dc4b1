package ingestion

import (
	"errors"
	"sort"

	"sandwich-scan/internal/domain"
)

// ErrInvalidOrdering is returned when logs are not properly ordered.
var ErrInvalidOrdering = errors.New("logs are not in deterministic order")

// SortLogs orders logs by (block_number ASC, log_index ASC).
// Log indexes are unique within a block, so this is the chain order.
func SortLogs(logs []*domain.RawLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return compareLogs(logs[i], logs[j]) < 0
	})
}

// ValidateLogOrdering checks that logs are strictly ordered.
// Returns ErrInvalidOrdering if not.
func ValidateLogOrdering(logs []*domain.RawLog) error {
	for i := 1; i < len(logs); i++ {
		if compareLogs(logs[i-1], logs[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// DedupLogs drops repeated (block_number, log_index) rows from sorted logs,
// keeping the first. Warehouse tables may hold a row twice until merged.
func DedupLogs(logs []*domain.RawLog) []*domain.RawLog {
	if len(logs) < 2 {
		return logs
	}
	out := logs[:1]
	for _, l := range logs[1:] {
		if compareLogs(out[len(out)-1], l) != 0 {
			out = append(out, l)
		}
	}
	return out
}

// compareLogs returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block_number ASC, log_index ASC)
func compareLogs(a, b *domain.RawLog) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if a.LogIndex != b.LogIndex {
		if a.LogIndex < b.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}
