package evm

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-scan/internal/retry"
	"sandwich-scan/internal/storage"
)

// fakeBackend answers contract calls by method selector.
type fakeBackend struct {
	calls     map[string][]byte // selector hex -> return data
	callErrs  map[string][]error
	callCount int

	logs    []types.Log
	headers map[uint64]*types.Header
	txs     map[common.Hash]*types.Transaction
	rcpts   map[common.Hash]*types.Receipt
	head    uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:    make(map[string][]byte),
		callErrs: make(map[string][]error),
		headers:  make(map[uint64]*types.Header),
		txs:      make(map[common.Hash]*types.Transaction),
		rcpts:    make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.callCount++
	sel := common.Bytes2Hex(msg.Data[:4])
	if errs := f.callErrs[sel]; len(errs) > 0 {
		f.callErrs[sel] = errs[1:]
		return nil, errs[0]
	}
	out, ok := f.calls[sel]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return f.logs, nil
}

func (f *fakeBackend) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	h, ok := f.headers[n.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return h, nil
}

func (f *fakeBackend) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[h]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := f.rcpts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func selector(sig string) string {
	return common.Bytes2Hex(crypto.Keccak256([]byte(sig))[:4])
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestClient_Slot0(t *testing.T) {
	fb := newFakeBackend()
	sqrt := new(big.Int).Lsh(big.NewInt(1), 96)
	out, err := v3PoolABI.Methods["slot0"].Outputs.Pack(
		sqrt, big.NewInt(-5), uint16(1), uint16(2), uint16(3), uint8(0), true,
	)
	require.NoError(t, err)
	fb.calls[selector("slot0()")] = out

	c := NewClient(fb, WithPolicy(fastPolicy()))
	gotSqrt, tick, err := c.Slot0(context.Background(), "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640", 100)
	require.NoError(t, err)
	assert.Equal(t, 0, gotSqrt.Cmp(sqrt))
	assert.Equal(t, -5, tick)
}

func TestClient_GetReserves_RetriesTransient(t *testing.T) {
	fb := newFakeBackend()
	out, err := pairABI.Methods["getReserves"].Outputs.Pack(big.NewInt(10), big.NewInt(20), uint32(7))
	require.NoError(t, err)
	sel := selector("getReserves()")
	fb.calls[sel] = out
	fb.callErrs[sel] = []error{errors.New("429 Too Many Requests")}

	c := NewClient(fb, WithPolicy(fastPolicy()))
	r0, r1, err := c.GetReserves(context.Background(), "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r0.Int64())
	assert.Equal(t, int64(20), r1.Int64())
	assert.Equal(t, 2, fb.callCount)
}

func TestClient_TokenMetadata(t *testing.T) {
	t.Run("string symbol", func(t *testing.T) {
		fb := newFakeBackend()
		dec, _ := erc20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
		sym, _ := erc20ABI.Methods["symbol"].Outputs.Pack("USDC")
		fb.calls[selector("decimals()")] = dec
		fb.calls[selector("symbol()")] = sym

		symbol, decimals, err := NewClient(fb).TokenMetadata(context.Background(), "0xa0b8")
		require.NoError(t, err)
		assert.Equal(t, "USDC", symbol)
		assert.Equal(t, 6, decimals)
	})

	t.Run("bytes32 symbol", func(t *testing.T) {
		fb := newFakeBackend()
		var b [32]byte
		copy(b[:], "MKR")
		sym, _ := erc20Bytes32ABI.Methods["symbol"].Outputs.Pack(b)
		fb.calls[selector("symbol()")] = sym

		symbol, decimals, err := NewClient(fb).TokenMetadata(context.Background(), "0x9f8f")
		require.NoError(t, err)
		assert.Equal(t, "MKR", symbol)
		assert.Equal(t, DefaultTokenDecimals, decimals)
	})

	t.Run("no answers", func(t *testing.T) {
		symbol, decimals, err := NewClient(newFakeBackend()).TokenMetadata(context.Background(), "0xdead")
		require.NoError(t, err)
		assert.Equal(t, DefaultUnknownSymbol, symbol)
		assert.Equal(t, DefaultTokenDecimals, decimals)
	})
}

func TestClient_FilterLogs(t *testing.T) {
	fb := newFakeBackend()
	pool := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	fb.logs = []types.Log{
		{
			Address:     pool,
			Topics:      []common.Hash{common.HexToHash(TopicSync)},
			Data:        []byte{0x01},
			BlockNumber: 100,
			TxHash:      common.HexToHash("0xAB"),
			TxIndex:     3,
			Index:       7,
		},
		{Address: pool, BlockNumber: 100, Removed: true},
	}
	fb.headers[100] = &types.Header{Number: big.NewInt(100), Time: 1_700_000_000}

	logs, err := NewClient(fb).FilterLogs(context.Background(), storage.LogFilter{
		Topics0: []string{TopicSync}, FromBlock: 100, ToBlock: 100,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	l := logs[0]
	assert.Equal(t, "0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc", l.Address)
	assert.Equal(t, TopicSync, l.Topic0())
	assert.Equal(t, "0x01", l.Data)
	assert.Equal(t, 3, l.TransactionIndex)
	assert.Equal(t, 7, l.LogIndex)
	assert.Equal(t, int64(1_700_000_000), l.BlockTimestamp)
}

func TestClient_Transactions(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	to := common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	signer := types.LatestSignerForChainID(big.NewInt(1))
	tx, err := types.SignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     1,
		GasTipCap: big.NewInt(1e9),
		GasFeeCap: big.NewInt(50e9),
		Gas:       200_000,
		To:        &to,
	})
	require.NoError(t, err)

	fb := newFakeBackend()
	fb.txs[tx.Hash()] = tx
	fb.rcpts[tx.Hash()] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           150_000,
		EffectiveGasPrice: big.NewInt(21e9),
		BlockNumber:       big.NewInt(200),
		TransactionIndex:  4,
	}
	fb.headers[200] = &types.Header{Number: big.NewInt(200), Time: 1_700_000_024}

	got, err := NewClient(fb).Transactions(context.Background(), []string{tx.Hash().Hex()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	rt := got[0]
	assert.True(t, bytes.EqualFold([]byte(want.Hex()), []byte(rt.FromAddress)))
	assert.Equal(t, "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", rt.ToAddress)
	assert.Equal(t, int64(200), rt.BlockNumber)
	assert.Equal(t, 4, rt.TransactionIndex)
	assert.Equal(t, int64(150_000), *rt.GasUsed)
	assert.Equal(t, int64(21e9), rt.EffectiveGasPrice.Int64())
	assert.Equal(t, 1, *rt.Status)
	assert.Equal(t, int64(1_700_000_024), rt.BlockTimestamp)
}
