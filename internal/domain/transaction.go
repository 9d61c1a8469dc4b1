package domain

import "math/big"

// Transaction represents an on-chain transaction that emitted at least one swap.
// Corresponds to transactions table in PostgreSQL.
type Transaction struct {
	ID                   int64    // BIGSERIAL primary key
	ChainID              int64    // FK to chains.id
	TxHash               string   // lowercase 0x-prefixed hash
	BlockNumber          int64    // block height
	TxIndex              int      // position in block
	BlockTimestamp       int64    // Unix timestamp in seconds
	FromAddress          string   // EOA that signed the transaction (the actor)
	ToAddress            *string  // nil for contract creation
	GasUsed              *int64   // from receipt (nullable)
	GasPriceWei          *big.Int // legacy gas price (nullable)
	EffectiveGasPriceWei *big.Int // EIP-1559 effective price (nullable)
	Status               *int     // 1 success, 0 reverted (nullable)
}
