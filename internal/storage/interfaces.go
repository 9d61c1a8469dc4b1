package storage

import (
	"context"
	"time"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/sandwich"
)

// ChainStore provides access to chains storage.
type ChainStore interface {
	// Upsert inserts or updates a chain by chain_id and sets c.ID.
	Upsert(ctx context.Context, c *domain.Chain) error

	// GetByID retrieves a chain by primary key. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Chain, error)

	// GetByChainID retrieves a chain by EIP-155 id. Returns ErrNotFound if not exists.
	GetByChainID(ctx context.Context, chainID int64) (*domain.Chain, error)
}

// TokenStore provides access to tokens and usd_stable_coins storage.
type TokenStore interface {
	// UpsertBulk inserts tokens, ignoring existing (chain_id, address) pairs,
	// and sets ID on every token. Returns the number of new rows.
	UpsertBulk(ctx context.Context, tokens []*domain.Token) (int, error)

	// GetByID retrieves a token. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Token, error)

	// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, chainID int64, address string) (*domain.Token, error)

	// AddStableCoin marks a token as USD-pegged. Existing entries are updated.
	AddStableCoin(ctx context.Context, sc domain.StableCoin) error

	// ListStableCoins returns the stable coins of a chain ordered by priority ASC.
	ListStableCoins(ctx context.Context, chainID int64) ([]domain.StableCoin, error)
}

// WrappedNativeTokenStore provides access to wrapped_native_tokens storage.
type WrappedNativeTokenStore interface {
	// Upsert sets the wrapped native token of a chain.
	Upsert(ctx context.Context, w *domain.WrappedNativeToken) error

	// GetByChain returns the wrapped native token of a chain. Returns ErrNotFound if not configured.
	GetByChain(ctx context.Context, chainID int64) (*domain.WrappedNativeToken, error)
}

// PoolStore provides access to pools storage.
type PoolStore interface {
	// UpsertBulk inserts pools, ignoring existing (chain_id, address) pairs,
	// and sets ID on every pool. Returns the number of new rows.
	UpsertBulk(ctx context.Context, pools []*domain.Pool) (int, error)

	// GetByID retrieves a pool. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Pool, error)

	// GetByAddress retrieves a pool by address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, chainID int64, address string) (*domain.Pool, error)

	// ListByChain returns every pool of a chain ordered by id ASC.
	ListByChain(ctx context.Context, chainID int64) ([]*domain.Pool, error)

	// ListActive returns active pools with activity_score >= minScore,
	// ordered by activity_score DESC, id ASC.
	ListActive(ctx context.Context, chainID int64, minScore int64) ([]*domain.Pool, error)

	// UpdateActivity writes the activity counters and score of a pool.
	UpdateActivity(ctx context.Context, poolID int64, a domain.PoolActivity, score int64) error
}

// TransactionStore provides access to transactions storage.
type TransactionStore interface {
	// UpsertBulk inserts transactions, ignoring existing (chain_id, tx_hash) pairs,
	// and sets ID on every transaction. Returns the number of new rows.
	UpsertBulk(ctx context.Context, txs []*domain.Transaction) (int, error)

	// GetByHash retrieves a transaction. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, chainID int64, hash string) (*domain.Transaction, error)

	// MaxBlockNumber returns the highest block with a stored transaction of
	// the chain, or 0 when there is none.
	MaxBlockNumber(ctx context.Context, chainID int64) (int64, error)
}

// SwapStore provides access to swaps storage.
type SwapStore interface {
	// UpsertBulk inserts swaps, ignoring existing (pool_id, transaction_id, log_index)
	// keys. Returns the number of new rows.
	UpsertBulk(ctx context.Context, swaps []*domain.Swap) (int, error)

	// ListLegs returns the swaps of a pool with block in [fromBlock, toBlock]
	// (inclusive) joined with their transactions, in total order.
	ListLegs(ctx context.Context, poolID, fromBlock, toBlock int64) ([]*domain.SwapLeg, error)

	// LatestStateBefore returns the last swap of a pool strictly before pos that
	// carries v3 state (sqrt price and liquidity), skipping swaps of excludeTxHash.
	// Returns ErrNotFound if none.
	LatestStateBefore(ctx context.Context, poolID int64, pos domain.Position, excludeTxHash string) (*domain.SwapLeg, error)

	// LatestPricedAtOrBefore returns the last swap of a pool at or before block
	// carrying a sqrt price or a tick. Returns ErrNotFound if none.
	LatestPricedAtOrBefore(ctx context.Context, poolID int64, block int64) (*domain.SwapLeg, error)
}

// CandidateFinder finds sandwich triplets for one pool window. Legs are read
// for blocks in [p.FrontFrom, toBlock]; fronts are restricted to the core window.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, p sandwich.Params, toBlock int64) ([]*domain.Candidate, error)
}

// SandwichAttackStore provides access to sandwich_attacks storage.
type SandwichAttackStore interface {
	// InsertIgnore inserts attacks, skipping rows whose (front, victim, back)
	// key already exists. Returns the number of new rows. The given attacks
	// are not modified; read ids back with GetByKey.
	InsertIgnore(ctx context.Context, attacks []*domain.SandwichAttack) (int, error)

	// GetByKey retrieves an attack by triplet key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, key domain.TripletKey) (*domain.SandwichAttack, error)

	// ListByPool returns the attacks of a pool ordered by id ASC.
	ListByPool(ctx context.Context, poolID int64) ([]*domain.SandwichAttack, error)

	// ListForValuation returns up to limit attacks with id > afterID, ordered by
	// id ASC, as flat valuation inputs. Already valued rows are included only
	// when includeValued is set.
	ListForValuation(ctx context.Context, afterID int64, limit int, includeValued bool) ([]*domain.ValuationInput, error)

	// UpdateValuation writes the economic fields of one attack.
	UpdateValuation(ctx context.Context, id int64, v *domain.Valuation) error

	// MonthlySummary aggregates attacks by calendar month (UTC) of the victim block
	// for blocks timestamped in [from, to).
	MonthlySummary(ctx context.Context, chainID int64, from, to time.Time) ([]*domain.MonthlySummary, error)
}

// LogFilter selects warehouse logs.
type LogFilter struct {
	Topics0   []string // event signatures, any of
	Addresses []string // emitting contracts, any of; empty means all
	FromBlock int64    // inclusive
	ToBlock   int64    // inclusive
}

// LogStore provides access to the raw log warehouse.
type LogStore interface {
	// InsertBulk appends logs.
	InsertBulk(ctx context.Context, logs []*domain.RawLog) error

	// ListLogs returns logs matching f ordered by (block, log_index) ASC.
	ListLogs(ctx context.Context, f LogFilter) ([]*domain.RawLog, error)

	// LatestBefore returns the last log of address with topic0 strictly before
	// pos, excluding logs of excludeTxHash. Returns ErrNotFound if none.
	LatestBefore(ctx context.Context, address, topic0 string, pos domain.Position, excludeTxHash string) (*domain.RawLog, error)

	// SwapActivity counts logs with any of topics per address since the two
	// Unix-second cut-offs, and reports the last block and time seen.
	SwapActivity(ctx context.Context, topics, addresses []string, since24h, since7d int64) ([]domain.PoolActivity, error)
}

// RawTransactionStore provides access to the raw transaction warehouse.
type RawTransactionStore interface {
	// InsertBulk appends transactions.
	InsertBulk(ctx context.Context, txs []*domain.RawTransaction) error

	// GetByHashes returns the transactions with the given hashes in any order.
	GetByHashes(ctx context.Context, hashes []string) ([]*domain.RawTransaction, error)
}
