package domain

import "time"

// PoolVersion identifies the AMM family of a pool.
type PoolVersion string

// Pool versions
const (
	PoolVersionV2 PoolVersion = "v2"
	PoolVersionV3 PoolVersion = "v3"
)

// DefaultFeePips is the Uniswap v2 fee expressed in millionths (0.3%).
const DefaultFeePips = 3000

// FeeDenominatorPips is the denominator of FeePips.
const FeeDenominatorPips = 1_000_000

// Pool represents a Uniswap v2 pair or v3 pool.
// token0 and token1 follow the factory's canonical ordering and are never swapped.
// Corresponds to pools table in PostgreSQL.
type Pool struct {
	ID                 int64       // BIGSERIAL primary key
	ChainID            int64       // FK to chains.id
	Address            string      // lowercase pool address
	Version            PoolVersion // v2 | v3
	Token0ID           int64       // FK to tokens.id
	Token1ID           int64       // FK to tokens.id
	FeePips            int64       // swap fee in millionths (3000 = 0.3%)
	CreatedBlockNumber int64       // creation block, lower bound for any lookup
	IsActive           bool

	// Activity, maintained by the activity scorer
	ActivityScore int64
	Swaps24h      int64
	Swaps7d       int64
	LastSwapBlock *int64
	LastSwapAt    *time.Time
}

// HasToken reports whether tokenID is one side of the pool.
func (p *Pool) HasToken(tokenID int64) bool {
	return p.Token0ID == tokenID || p.Token1ID == tokenID
}

// Other returns the token on the opposite side of tokenID.
func (p *Pool) Other(tokenID int64) int64 {
	if p.Token0ID == tokenID {
		return p.Token1ID
	}
	return p.Token0ID
}
