package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"sandwich-scan/internal/domain"
	"sandwich-scan/internal/observability"
	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/storage"
)

// Default configuration values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultTokenDecimals = 18
	DefaultUnknownSymbol = "UNK"
	metricsSource        = "rpc"
)

// Backend is the subset of ethclient.Client used here.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Client reads historical contract state and logs with retries.
type Client struct {
	backend Backend
	timeout time.Duration
	policy  retry.Policy
	log     *zap.Logger

	mu         sync.Mutex
	timestamps map[uint64]int64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the per-attempt call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithPolicy sets the retry policy.
func WithPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient wraps a backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend:    backend,
		timeout:    DefaultTimeout,
		policy:     retry.DefaultPolicy(),
		log:        zap.NewNop(),
		timestamps: make(map[uint64]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewClient(ec, opts...), nil
}

// Close releases the underlying connection when the backend holds one.
func (c *Client) Close() {
	if ec, ok := c.backend.(*ethclient.Client); ok {
		ec.Close()
	}
}

// call runs op with a per-attempt timeout under the retry policy.
func call[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		observability.RecordExternalCall(metricsSource, op, time.Since(start).Seconds())
	}()

	policy := c.policy.WithNotify(func(err error, next time.Duration) {
		observability.RecordRetry(metricsSource, op)
		c.log.Warn("rpc call failed, retrying",
			zap.String("op", op), zap.Duration("next", next), zap.Error(err))
	})

	return retry.Value(ctx, policy, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(ctx)
	})
}

func (c *Client) callContract(ctx context.Context, op string, to string, data []byte, block *big.Int) ([]byte, error) {
	addr := common.HexToAddress(to)
	return call(ctx, c, op, func(ctx context.Context) ([]byte, error) {
		return c.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, block)
	})
}

func blockArg(block int64) *big.Int {
	if block < 0 {
		return nil
	}
	return big.NewInt(block)
}

// BlockNumber returns the chain head.
func (c *Client) BlockNumber(ctx context.Context) (int64, error) {
	n, err := call(ctx, c, "block_number", c.backend.BlockNumber)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return int64(n), nil
}

type slot0Result struct {
	SqrtPriceX96               *big.Int
	Tick                       *big.Int
	ObservationIndex           uint16
	ObservationCardinality     uint16
	ObservationCardinalityNext uint16
	FeeProtocol                uint8
	Unlocked                   bool
}

// Slot0 returns a v3 pool's sqrt price and tick at block. A negative block
// reads the latest state.
func (c *Client) Slot0(ctx context.Context, pool string, block int64) (*big.Int, int, error) {
	data, err := v3PoolABI.Pack("slot0")
	if err != nil {
		return nil, 0, fmt.Errorf("pack slot0: %w", err)
	}
	raw, err := c.callContract(ctx, "slot0", pool, data, blockArg(block))
	if err != nil {
		return nil, 0, fmt.Errorf("call slot0: %w", err)
	}

	var out slot0Result
	if err := v3PoolABI.UnpackIntoInterface(&out, "slot0", raw); err != nil {
		return nil, 0, fmt.Errorf("unpack slot0: %w", err)
	}
	if out.SqrtPriceX96 == nil || out.Tick == nil {
		return nil, 0, fmt.Errorf("unpack slot0: empty result")
	}
	return out.SqrtPriceX96, int(out.Tick.Int64()), nil
}

type reservesResult struct {
	Reserve0           *big.Int `abi:"_reserve0"`
	Reserve1           *big.Int `abi:"_reserve1"`
	BlockTimestampLast uint32   `abi:"_blockTimestampLast"`
}

// GetReserves returns a v2 pair's reserves at block.
func (c *Client) GetReserves(ctx context.Context, pair string, block int64) (*big.Int, *big.Int, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}
	raw, err := c.callContract(ctx, "get_reserves", pair, data, blockArg(block))
	if err != nil {
		return nil, nil, fmt.Errorf("call getReserves: %w", err)
	}

	var out reservesResult
	if err := pairABI.UnpackIntoInterface(&out, "getReserves", raw); err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves: %w", err)
	}
	if out.Reserve0 == nil || out.Reserve1 == nil {
		return nil, nil, fmt.Errorf("unpack getReserves: empty result")
	}
	return out.Reserve0, out.Reserve1, nil
}

// TokenMetadata reads an ERC-20's symbol and decimals. Contracts that do not
// answer get 18 decimals and the symbol "UNK"; a bytes32 symbol is accepted.
// Only context errors are returned.
func (c *Client) TokenMetadata(ctx context.Context, token string) (symbol string, decimals int, err error) {
	decimals = DefaultTokenDecimals
	symbol = DefaultUnknownSymbol

	if d, derr := c.decimals(ctx, token); derr == nil {
		decimals = d
	} else if ctx.Err() != nil {
		return "", 0, ctx.Err()
	} else {
		c.log.Debug("decimals unavailable", zap.String("token", token), zap.Error(derr))
	}

	if s, serr := c.symbol(ctx, token); serr == nil && s != "" {
		symbol = s
	} else if ctx.Err() != nil {
		return "", 0, ctx.Err()
	}
	return symbol, decimals, nil
}

func (c *Client) decimals(ctx context.Context, token string) (int, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}
	raw, err := c.callContract(ctx, "decimals", token, data, nil)
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	vals, err := erc20ABI.Unpack("decimals", raw)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("unpack decimals: %v", err)
	}
	d, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: got %T", vals[0])
	}
	return int(d), nil
}

func (c *Client) symbol(ctx context.Context, token string) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("pack symbol: %w", err)
	}
	raw, err := c.callContract(ctx, "symbol", token, data, nil)
	if err != nil {
		return "", fmt.Errorf("call symbol: %w", err)
	}
	return unpackSymbol(raw)
}

// unpackSymbol decodes a string symbol, falling back to bytes32.
func unpackSymbol(raw []byte) (string, error) {
	if vals, err := erc20ABI.Unpack("symbol", raw); err == nil && len(vals) == 1 {
		if s, ok := vals[0].(string); ok {
			return strings.TrimSpace(s), nil
		}
	}
	vals, err := erc20Bytes32ABI.Unpack("symbol", raw)
	if err != nil || len(vals) != 1 {
		return "", fmt.Errorf("unpack symbol: %v", err)
	}
	b, ok := vals[0].([32]byte)
	if !ok {
		return "", fmt.Errorf("unpack symbol: got %T", vals[0])
	}
	return strings.TrimSpace(strings.TrimRight(string(b[:]), "\x00")), nil
}

// FilterLogs returns logs matching f as warehouse rows, with block timestamps
// filled in from headers.
func (c *Client) FilterLogs(ctx context.Context, f storage.LogFilter) ([]*domain.RawLog, error) {
	q := ethereum.FilterQuery{
		FromBlock: big.NewInt(f.FromBlock),
		ToBlock:   big.NewInt(f.ToBlock),
	}
	for _, a := range f.Addresses {
		q.Addresses = append(q.Addresses, common.HexToAddress(a))
	}
	if len(f.Topics0) > 0 {
		t0 := make([]common.Hash, len(f.Topics0))
		for i, t := range f.Topics0 {
			t0[i] = common.HexToHash(t)
		}
		q.Topics = [][]common.Hash{t0}
	}

	logs, err := call(ctx, c, "filter_logs", func(ctx context.Context) ([]types.Log, error) {
		return c.backend.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d, %d]: %w", f.FromBlock, f.ToBlock, err)
	}

	out := make([]*domain.RawLog, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		if l.Removed {
			continue
		}
		ts, err := c.blockTimestamp(ctx, l.BlockNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, toRawLog(l, ts))
	}
	return out, nil
}

func toRawLog(l *types.Log, ts int64) *domain.RawLog {
	topics := make([]string, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = strings.ToLower(t.Hex())
	}
	return &domain.RawLog{
		Address:          lowerHex(l.Address),
		Topics:           topics,
		Data:             "0x" + common.Bytes2Hex(l.Data),
		BlockNumber:      int64(l.BlockNumber),
		TransactionIndex: int(l.TxIndex),
		LogIndex:         int(l.Index),
		TransactionHash:  strings.ToLower(l.TxHash.Hex()),
		BlockTimestamp:   ts,
	}
}

func (c *Client) blockTimestamp(ctx context.Context, number uint64) (int64, error) {
	c.mu.Lock()
	ts, ok := c.timestamps[number]
	c.mu.Unlock()
	if ok {
		return ts, nil
	}

	h, err := call(ctx, c, "header_by_number", func(ctx context.Context) (*types.Header, error) {
		return c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
	if err != nil {
		return 0, fmt.Errorf("get header %d: %w", number, err)
	}

	ts = int64(h.Time)
	c.mu.Lock()
	c.timestamps[number] = ts
	c.mu.Unlock()
	return ts, nil
}

// ErrPendingTransaction is returned for transactions not yet mined.
var ErrPendingTransaction = errors.New("transaction pending")

// Transactions loads transactions with their receipts. Order follows hashes.
func (c *Client) Transactions(ctx context.Context, hashes []string) ([]*domain.RawTransaction, error) {
	out := make([]*domain.RawTransaction, 0, len(hashes))
	for _, h := range hashes {
		tx, err := c.transaction(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

type txResult struct {
	tx      *types.Transaction
	pending bool
}

func (c *Client) transaction(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	h := common.HexToHash(hash)

	res, err := call(ctx, c, "transaction_by_hash", func(ctx context.Context) (txResult, error) {
		tx, pending, err := c.backend.TransactionByHash(ctx, h)
		return txResult{tx: tx, pending: pending}, err
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	}
	if res.pending {
		return nil, fmt.Errorf("get transaction %s: %w", hash, ErrPendingTransaction)
	}

	rcpt, err := call(ctx, c, "transaction_receipt", func(ctx context.Context) (*types.Receipt, error) {
		return c.backend.TransactionReceipt(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", hash, err)
	}

	from, err := types.Sender(signerFor(res.tx), res.tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender %s: %w", hash, err)
	}

	block := rcpt.BlockNumber.Uint64()
	ts, err := c.blockTimestamp(ctx, block)
	if err != nil {
		return nil, err
	}

	gasUsed := int64(rcpt.GasUsed)
	status := int(rcpt.Status)
	raw := &domain.RawTransaction{
		Hash:              strings.ToLower(h.Hex()),
		BlockNumber:       int64(block),
		TransactionIndex:  int(rcpt.TransactionIndex),
		BlockTimestamp:    ts,
		FromAddress:       lowerHex(from),
		GasUsed:           &gasUsed,
		GasPrice:          res.tx.GasPrice(),
		EffectiveGasPrice: rcpt.EffectiveGasPrice,
		Status:            &status,
	}
	if to := res.tx.To(); to != nil {
		raw.ToAddress = lowerHex(*to)
	}
	return raw, nil
}

func signerFor(tx *types.Transaction) types.Signer {
	if !tx.Protected() {
		return types.HomesteadSigner{}
	}
	return types.LatestSignerForChainID(tx.ChainId())
}
