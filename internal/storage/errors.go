package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable is returned when a data source cannot answer, for example
	// a pricing pool that does not exist yet at the queried block.
	ErrUnavailable = errors.New("unavailable")
)

// DefaultChunkSize bounds the rows written per statement. Each swap row binds
// about 16 parameters, so 1000 rows stay far below the 65535 bind limit of the
// Postgres wire protocol.
const DefaultChunkSize = 1000

// Chunks splits n items into [start, end) ranges of at most size items.
func Chunks(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][2]int
	for i := 0; i < n; i += size {
		end := i + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{i, end})
	}
	return out
}
