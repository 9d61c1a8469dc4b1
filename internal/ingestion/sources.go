package ingestion

import (
	"context"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/evm"
	"sandwich-scan/internal/storage"
)

// Source provides raw logs and their transactions. The warehouse and a node
// both satisfy it.
type Source interface {
	// Logs returns logs matching f. Order is not guaranteed; the backfiller sorts.
	Logs(ctx context.Context, f storage.LogFilter) ([]*domain.RawLog, error)

	// Transactions returns the transactions with the given hashes in any order.
	// Unknown hashes are omitted.
	Transactions(ctx context.Context, hashes []string) ([]*domain.RawTransaction, error)
}

// MetadataSource resolves ERC-20 symbol and decimals. *evm.Client satisfies it.
type MetadataSource interface {
	TokenMetadata(ctx context.Context, token string) (symbol string, decimals int, err error)
}

var _ MetadataSource = (*evm.Client)(nil)

// WarehouseSource reads the ClickHouse log warehouse.
type WarehouseSource struct {
	logs storage.LogStore
	txs  storage.RawTransactionStore
}

// NewWarehouseSource creates a Source over warehouse stores.
func NewWarehouseSource(logs storage.LogStore, txs storage.RawTransactionStore) *WarehouseSource {
	return &WarehouseSource{logs: logs, txs: txs}
}

var _ Source = (*WarehouseSource)(nil)

// Logs implements Source.
func (s *WarehouseSource) Logs(ctx context.Context, f storage.LogFilter) ([]*domain.RawLog, error) {
	return s.logs.ListLogs(ctx, f)
}

// Transactions implements Source.
func (s *WarehouseSource) Transactions(ctx context.Context, hashes []string) ([]*domain.RawTransaction, error) {
	return s.txs.GetByHashes(ctx, hashes)
}

// NodeSource reads logs and receipts from a JSON-RPC node with eth_getLogs.
type NodeSource struct {
	client *evm.Client
}

// NewNodeSource creates a Source over a node client.
func NewNodeSource(client *evm.Client) *NodeSource {
	return &NodeSource{client: client}
}

var _ Source = (*NodeSource)(nil)

// Logs implements Source.
func (s *NodeSource) Logs(ctx context.Context, f storage.LogFilter) ([]*domain.RawLog, error) {
	return s.client.FilterLogs(ctx, f)
}

// Transactions implements Source.
func (s *NodeSource) Transactions(ctx context.Context, hashes []string) ([]*domain.RawTransaction, error) {
	return s.client.Transactions(ctx, hashes)
}
