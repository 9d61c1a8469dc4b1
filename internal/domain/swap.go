package domain

import "math/big"

// Swap represents one decoded Uniswap Swap event.
// Amounts are raw integer token units. Corresponds to swaps table in PostgreSQL.
type Swap struct {
	ID            int64  // BIGSERIAL primary key
	ChainID       int64  // FK to chains.id
	PoolID        int64  // FK to pools.id
	TransactionID int64  // FK to transactions.id
	LogIndex      int    // log index within block
	Sender        string // event sender, usually a router
	Recipient     string // event recipient

	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int

	SellTokenID *int64 // resolved from directionality (nullable)
	BuyTokenID  *int64 // resolved from directionality (nullable)

	// v3 only
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *int
}

// Position is a point in the total swap order of a chain.
type Position struct {
	BlockNumber int64
	TxIndex     int
	LogIndex    int
}

// Compare returns:
//   - negative if p < o
//   - zero if p == o
//   - positive if p > o
//
// Order: (block_number ASC, tx_index ASC, log_index ASC)
func (p Position) Compare(o Position) int {
	if p.BlockNumber != o.BlockNumber {
		if p.BlockNumber < o.BlockNumber {
			return -1
		}
		return 1
	}
	if p.TxIndex != o.TxIndex {
		if p.TxIndex < o.TxIndex {
			return -1
		}
		return 1
	}
	if p.LogIndex != o.LogIndex {
		if p.LogIndex < o.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	return p.Compare(o) < 0
}
