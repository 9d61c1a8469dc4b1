package domain

import "math/big"

// RawLog is one warehouse log row. Topics and data are 0x-prefixed hex.
// Corresponds to logs table in ClickHouse.
type RawLog struct {
	Address          string
	Topics           []string
	Data             string
	BlockNumber      int64
	TransactionIndex int
	LogIndex         int
	TransactionHash  string
	BlockTimestamp   int64 // Unix seconds
}

// Position returns the log's place in the chain order.
func (l *RawLog) Position() Position {
	return Position{BlockNumber: l.BlockNumber, TxIndex: l.TransactionIndex, LogIndex: l.LogIndex}
}

// Topic0 returns the event signature hash or "" when the log is anonymous.
func (l *RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return l.Topics[0]
}

// RawTransaction is one warehouse transaction row with receipt fields.
// Corresponds to transactions table in ClickHouse.
type RawTransaction struct {
	Hash              string
	BlockNumber       int64
	TransactionIndex  int
	BlockTimestamp    int64
	FromAddress       string
	ToAddress         string // "" for contract creation
	GasUsed           *int64
	GasPrice          *big.Int
	EffectiveGasPrice *big.Int
	Status            *int
}

// PoolActivity is a per-pool swap aggregate computed from warehouse logs.
type PoolActivity struct {
	Address       string
	Swaps24h      int64
	Swaps7d       int64
	LastSwapBlock *int64
	LastSwapAt    *int64 // Unix seconds
}
