package domain

// Chain represents an EVM network.
// Corresponds to chains table in PostgreSQL.
type Chain struct {
	ID             int64  // BIGSERIAL primary key
	ChainID        int64  // EIP-155 chain id (1 = mainnet)
	Name           string // display name
	NativeSymbol   string // e.g. "ETH"
	NativeDecimals int    // decimals of the native coin (18 on every EVM chain seen so far)
}

// Token represents an ERC-20 token on a chain.
// Corresponds to tokens table in PostgreSQL.
type Token struct {
	ID       int64  // BIGSERIAL primary key
	ChainID  int64  // FK to chains.id
	Address  string // lowercase 0x-prefixed address
	Symbol   string // may be empty when the contract does not expose one
	Decimals int    // ERC-20 decimals
}

// StableCoin marks a token as USD-pegged.
// Lower Priority wins when a pool holds two stable coins.
type StableCoin struct {
	TokenID  int64
	Priority int
}

// WrappedNativeToken binds a chain to its wrapped native token (WETH on mainnet)
// and to the pools used as the native/USD price reference.
// Corresponds to wrapped_native_tokens table in PostgreSQL.
type WrappedNativeToken struct {
	ChainID     int64  // FK to chains.id
	TokenID     int64  // FK to tokens.id
	USDV3PoolID *int64 // preferred reference pool (nullable)
	USDV2PoolID *int64 // fallback reference pool (nullable)
}
