package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// ChainStore implements storage.ChainStore using PostgreSQL.
type ChainStore struct {
	pool *Pool
}

// NewChainStore creates a new ChainStore.
func NewChainStore(pool *Pool) *ChainStore {
	return &ChainStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ChainStore = (*ChainStore)(nil)

// Upsert inserts or updates a chain by chain_id.
func (s *ChainStore) Upsert(ctx context.Context, c *domain.Chain) error {
	if c == nil || c.ChainID <= 0 {
		return storage.ErrInvalidInput
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO chains (chain_id, name, native_symbol, native_decimals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id) DO UPDATE
		SET name = EXCLUDED.name,
		    native_symbol = EXCLUDED.native_symbol,
		    native_decimals = EXCLUDED.native_decimals
		RETURNING id
	`, c.ChainID, c.Name, c.NativeSymbol, c.NativeDecimals).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upsert chain: %w", err)
	}
	return nil
}

// GetByID retrieves a chain by primary key.
func (s *ChainStore) GetByID(ctx context.Context, id int64) (*domain.Chain, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

// GetByChainID retrieves a chain by EIP-155 id.
func (s *ChainStore) GetByChainID(ctx context.Context, chainID int64) (*domain.Chain, error) {
	return s.get(ctx, `WHERE chain_id = $1`, chainID)
}

func (s *ChainStore) get(ctx context.Context, where string, arg int64) (*domain.Chain, error) {
	var c domain.Chain
	err := s.pool.QueryRow(ctx,
		`SELECT id, chain_id, name, native_symbol, native_decimals FROM chains `+where, arg,
	).Scan(&c.ID, &c.ChainID, &c.Name, &c.NativeSymbol, &c.NativeDecimals)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get chain: %w", err)
	}
	return &c, nil
}

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// The CTE returns the new id on insert and the existing id on conflict.
// Both branches read the same snapshot, so exactly one of them yields a row.
const upsertTokenQuery = `
	WITH ins AS (
		INSERT INTO tokens (chain_id, address, symbol, decimals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id, address) DO NOTHING
		RETURNING id
	)
	SELECT id, TRUE FROM ins
	UNION ALL
	SELECT id, FALSE FROM tokens WHERE chain_id = $1 AND address = $2
	LIMIT 1
`

// UpsertBulk inserts tokens in chunks and sets their ids.
func (s *TokenStore) UpsertBulk(ctx context.Context, tokens []*domain.Token) (int, error) {
	inserted := 0
	for _, c := range storage.Chunks(len(tokens), storage.DefaultChunkSize) {
		chunk := tokens[c[0]:c[1]]

		batch := &pgx.Batch{}
		for _, t := range chunk {
			t.Address = strings.ToLower(t.Address)
			batch.Queue(upsertTokenQuery, t.ChainID, t.Address, t.Symbol, t.Decimals)
		}

		n, err := sendUpsertBatch(ctx, s.pool, batch, len(chunk), func(i int, id int64) { chunk[i].ID = id })
		if err != nil {
			return inserted, fmt.Errorf("upsert tokens: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// GetByID retrieves a token.
func (s *TokenStore) GetByID(ctx context.Context, id int64) (*domain.Token, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

// GetByAddress retrieves a token by address.
func (s *TokenStore) GetByAddress(ctx context.Context, chainID int64, address string) (*domain.Token, error) {
	return s.get(ctx, `WHERE chain_id = $1 AND address = $2`, chainID, strings.ToLower(address))
}

func (s *TokenStore) get(ctx context.Context, where string, args ...any) (*domain.Token, error) {
	var t domain.Token
	err := s.pool.QueryRow(ctx,
		`SELECT id, chain_id, address, symbol, decimals FROM tokens `+where, args...,
	).Scan(&t.ID, &t.ChainID, &t.Address, &t.Symbol, &t.Decimals)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// AddStableCoin marks a token as USD-pegged.
func (s *TokenStore) AddStableCoin(ctx context.Context, sc domain.StableCoin) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usd_stable_coins (token_id, priority)
		VALUES ($1, $2)
		ON CONFLICT (token_id) DO UPDATE SET priority = EXCLUDED.priority
	`, sc.TokenID, sc.Priority)
	if err != nil {
		return fmt.Errorf("add stable coin: %w", err)
	}
	return nil
}

// ListStableCoins returns the stable coins of a chain ordered by priority ASC.
func (s *TokenStore) ListStableCoins(ctx context.Context, chainID int64) ([]domain.StableCoin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sc.token_id, sc.priority
		FROM usd_stable_coins sc
		JOIN tokens t ON t.id = sc.token_id
		WHERE t.chain_id = $1
		ORDER BY sc.priority ASC, sc.token_id ASC
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("list stable coins: %w", err)
	}
	defer rows.Close()

	var out []domain.StableCoin
	for rows.Next() {
		var sc domain.StableCoin
		if err := rows.Scan(&sc.TokenID, &sc.Priority); err != nil {
			return nil, fmt.Errorf("scan stable coin row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// WrappedNativeTokenStore implements storage.WrappedNativeTokenStore using PostgreSQL.
type WrappedNativeTokenStore struct {
	pool *Pool
}

// NewWrappedNativeTokenStore creates a new WrappedNativeTokenStore.
func NewWrappedNativeTokenStore(pool *Pool) *WrappedNativeTokenStore {
	return &WrappedNativeTokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WrappedNativeTokenStore = (*WrappedNativeTokenStore)(nil)

// Upsert sets the wrapped native token of a chain.
func (s *WrappedNativeTokenStore) Upsert(ctx context.Context, w *domain.WrappedNativeToken) error {
	if w == nil {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wrapped_native_tokens (chain_id, token_id, usd_v3_pool_id, usd_v2_pool_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain_id) DO UPDATE
		SET token_id = EXCLUDED.token_id,
		    usd_v3_pool_id = EXCLUDED.usd_v3_pool_id,
		    usd_v2_pool_id = EXCLUDED.usd_v2_pool_id
	`, w.ChainID, w.TokenID, w.USDV3PoolID, w.USDV2PoolID)
	if err != nil {
		return fmt.Errorf("upsert wrapped native token: %w", constraintError(err))
	}
	return nil
}

// GetByChain returns the wrapped native token of a chain.
func (s *WrappedNativeTokenStore) GetByChain(ctx context.Context, chainID int64) (*domain.WrappedNativeToken, error) {
	var w domain.WrappedNativeToken
	err := s.pool.QueryRow(ctx, `
		SELECT chain_id, token_id, usd_v3_pool_id, usd_v2_pool_id
		FROM wrapped_native_tokens
		WHERE chain_id = $1
	`, chainID).Scan(&w.ChainID, &w.TokenID, &w.USDV3PoolID, &w.USDV2PoolID)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wrapped native token: %w", err)
	}
	return &w, nil
}

// sendUpsertBatch runs a batch of "SELECT id, inserted" upserts and reports
// each returned id through setID. Returns the number of new rows.
func sendUpsertBatch(ctx context.Context, pool *Pool, batch *pgx.Batch, n int, setID func(i int, id int64)) (int, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := 0; i < n; i++ {
		var (
			id  int64
			ins bool
		)
		if err := br.QueryRow().Scan(&id, &ins); err != nil {
			br.Close()
			return 0, fmt.Errorf("row %d: %w", i, constraintError(err))
		}
		setID(i, id)
		if ins {
			inserted++
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}
