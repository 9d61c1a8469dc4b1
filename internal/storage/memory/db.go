package memory

import (
	"sync"

	"sandwich-scan/internal/domain"
)

// DB is the shared in-memory backing of every store in this package.
// Stores that join entities (legs, valuation inputs) read across its maps
// under one lock, the way the SQL stores join tables.
type DB struct {
	mu sync.RWMutex

	nextID int64

	chains   map[int64]*domain.Chain // by id
	tokens   map[int64]*domain.Token // by id
	stables  map[int64]int           // token id -> priority
	wrapped  map[int64]*domain.WrappedNativeToken
	pools    map[int64]*domain.Pool
	txs      map[int64]*domain.Transaction
	swaps    map[int64]*domain.Swap
	attacks  map[int64]*domain.SandwichAttack
	progress map[int64]int64 // pool id -> last block

	logs   []*domain.RawLog
	rawTxs map[string]*domain.RawTransaction // by lowercase hash
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{
		chains:   make(map[int64]*domain.Chain),
		tokens:   make(map[int64]*domain.Token),
		stables:  make(map[int64]int),
		wrapped:  make(map[int64]*domain.WrappedNativeToken),
		pools:    make(map[int64]*domain.Pool),
		txs:      make(map[int64]*domain.Transaction),
		swaps:    make(map[int64]*domain.Swap),
		attacks:  make(map[int64]*domain.SandwichAttack),
		progress: make(map[int64]int64),
		rawTxs:   make(map[string]*domain.RawTransaction),
	}
}

// id allocates the next primary key. Caller holds mu.
func (db *DB) id() int64 {
	db.nextID++
	return db.nextID
}

// leg joins a swap with its transaction. Caller holds mu.
func (db *DB) leg(sw *domain.Swap) *domain.SwapLeg {
	tx := db.txs[sw.TransactionID]
	l := &domain.SwapLeg{
		SwapID:       sw.ID,
		PoolID:       sw.PoolID,
		Amount0In:    sw.Amount0In,
		Amount1In:    sw.Amount1In,
		Amount0Out:   sw.Amount0Out,
		Amount1Out:   sw.Amount1Out,
		SellTokenID:  sw.SellTokenID,
		BuyTokenID:   sw.BuyTokenID,
		SqrtPriceX96: sw.SqrtPriceX96,
		Liquidity:    sw.Liquidity,
		Tick:         sw.Tick,
	}
	l.Position.LogIndex = sw.LogIndex
	if tx != nil {
		l.Position.BlockNumber = tx.BlockNumber
		l.Position.TxIndex = tx.TxIndex
		l.TxHash = tx.TxHash
		l.Actor = tx.FromAddress
		l.BlockTimestamp = tx.BlockTimestamp
		l.GasUsed = tx.GasUsed
		l.GasPriceWei = tx.GasPriceWei
		l.EffectiveGasPriceWei = tx.EffectiveGasPriceWei
	}
	return l
}
