package memory

import (
	"context"
	"sort"
	"strings"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/storage"
)

// ChainStore is an in-memory implementation of storage.ChainStore.
type ChainStore struct {
	db *DB
}

// NewChainStore creates a new in-memory chain store.
func NewChainStore(db *DB) *ChainStore {
	return &ChainStore{db: db}
}

var _ storage.ChainStore = (*ChainStore)(nil)

// Upsert inserts or updates a chain by chain_id.
func (s *ChainStore) Upsert(_ context.Context, c *domain.Chain) error {
	if c == nil || c.ChainID <= 0 {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, existing := range s.db.chains {
		if existing.ChainID == c.ChainID {
			c.ID = id
			cp := *c
			s.db.chains[id] = &cp
			return nil
		}
	}
	c.ID = s.db.id()
	cp := *c
	s.db.chains[c.ID] = &cp
	return nil
}

// GetByID retrieves a chain by primary key.
func (s *ChainStore) GetByID(_ context.Context, id int64) (*domain.Chain, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	c, ok := s.db.chains[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetByChainID retrieves a chain by EIP-155 id.
func (s *ChainStore) GetByChainID(_ context.Context, chainID int64) (*domain.Chain, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, c := range s.db.chains {
		if c.ChainID == chainID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	db *DB
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

var _ storage.TokenStore = (*TokenStore)(nil)

// UpsertBulk inserts tokens, ignoring existing (chain_id, address) pairs.
func (s *TokenStore) UpsertBulk(_ context.Context, tokens []*domain.Token) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	inserted := 0
	for _, t := range tokens {
		t.Address = strings.ToLower(t.Address)
		if existing := s.findLocked(t.ChainID, t.Address); existing != nil {
			t.ID = existing.ID
			continue
		}
		t.ID = s.db.id()
		cp := *t
		s.db.tokens[t.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (s *TokenStore) findLocked(chainID int64, address string) *domain.Token {
	for _, t := range s.db.tokens {
		if t.ChainID == chainID && t.Address == address {
			return t
		}
	}
	return nil
}

// GetByID retrieves a token.
func (s *TokenStore) GetByID(_ context.Context, id int64) (*domain.Token, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	t, ok := s.db.tokens[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// GetByAddress retrieves a token by address.
func (s *TokenStore) GetByAddress(_ context.Context, chainID int64, address string) (*domain.Token, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	t := s.findLocked(chainID, strings.ToLower(address))
	if t == nil {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// AddStableCoin marks a token as USD-pegged.
func (s *TokenStore) AddStableCoin(_ context.Context, sc domain.StableCoin) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.tokens[sc.TokenID]; !ok {
		return storage.ErrNotFound
	}
	s.db.stables[sc.TokenID] = sc.Priority
	return nil
}

// ListStableCoins returns the stable coins of a chain ordered by priority ASC.
func (s *TokenStore) ListStableCoins(_ context.Context, chainID int64) ([]domain.StableCoin, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []domain.StableCoin
	for tokenID, prio := range s.db.stables {
		if t := s.db.tokens[tokenID]; t != nil && t.ChainID == chainID {
			out = append(out, domain.StableCoin{TokenID: tokenID, Priority: prio})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].TokenID < out[j].TokenID
	})
	return out, nil
}

// WrappedNativeTokenStore is an in-memory implementation of storage.WrappedNativeTokenStore.
type WrappedNativeTokenStore struct {
	db *DB
}

// NewWrappedNativeTokenStore creates a new in-memory wrapped native token store.
func NewWrappedNativeTokenStore(db *DB) *WrappedNativeTokenStore {
	return &WrappedNativeTokenStore{db: db}
}

var _ storage.WrappedNativeTokenStore = (*WrappedNativeTokenStore)(nil)

// Upsert sets the wrapped native token of a chain.
func (s *WrappedNativeTokenStore) Upsert(_ context.Context, w *domain.WrappedNativeToken) error {
	if w == nil {
		return storage.ErrInvalidInput
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	cp := *w
	s.db.wrapped[w.ChainID] = &cp
	return nil
}

// GetByChain returns the wrapped native token of a chain.
func (s *WrappedNativeTokenStore) GetByChain(_ context.Context, chainID int64) (*domain.WrappedNativeToken, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	w, ok := s.db.wrapped[chainID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}
