package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-scan/internal/domain"
)

// ErrMalformedLog is returned for logs that do not match their event ABI.
var ErrMalformedLog = errors.New("malformed log")

// ErrUnknownEvent is returned for logs whose topic0 has no decoder.
var ErrUnknownEvent = errors.New("unknown event")

// DecodedSwap is a Swap event in the v2 in/out shape. v3 signed amounts are
// split by sign: positive flows into the pool, negative flows out.
type DecodedSwap struct {
	Version   domain.PoolVersion
	Sender    string
	Recipient string

	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int

	// v3 only
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *int
}

// DecodeSwap decodes a v2 or v3 Swap log.
func DecodeSwap(l *domain.RawLog) (*DecodedSwap, error) {
	switch l.Topic0() {
	case TopicV2Swap:
		return DecodeV2Swap(l.Topics, l.Data)
	case TopicV3Swap:
		return DecodeV3Swap(l.Topics, l.Data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topic0())
	}
}

// DecodeV2Swap decodes Swap(address indexed sender, uint256 amount0In,
// uint256 amount1In, uint256 amount0Out, uint256 amount1Out, address indexed to).
func DecodeV2Swap(topics []string, data string) (*DecodedSwap, error) {
	if len(topics) < 3 {
		return nil, fmt.Errorf("%w: v2 swap has %d topics", ErrMalformedLog, len(topics))
	}
	vals, err := pairABI.Unpack("Swap", common.FromHex(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unpack v2 swap: %v", ErrMalformedLog, err)
	}
	if len(vals) != 4 {
		return nil, fmt.Errorf("%w: v2 swap has %d values", ErrMalformedLog, len(vals))
	}

	amounts := make([]*big.Int, 4)
	for i, v := range vals {
		x, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: v2 swap value %d is %T", ErrMalformedLog, i, v)
		}
		amounts[i] = x
	}

	return &DecodedSwap{
		Version:    domain.PoolVersionV2,
		Sender:     TopicAddress(topics[1]),
		Recipient:  TopicAddress(topics[2]),
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
	}, nil
}

type v3SwapData struct {
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *big.Int
}

// DecodeV3Swap decodes Swap(address indexed sender, address indexed recipient,
// int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick).
func DecodeV3Swap(topics []string, data string) (*DecodedSwap, error) {
	if len(topics) < 3 {
		return nil, fmt.Errorf("%w: v3 swap has %d topics", ErrMalformedLog, len(topics))
	}
	var out v3SwapData
	if err := v3PoolABI.UnpackIntoInterface(&out, "Swap", common.FromHex(data)); err != nil {
		return nil, fmt.Errorf("%w: unpack v3 swap: %v", ErrMalformedLog, err)
	}
	if out.Amount0 == nil || out.Amount1 == nil || out.Tick == nil {
		return nil, fmt.Errorf("%w: v3 swap missing values", ErrMalformedLog)
	}

	a0in, a0out := splitSigned(out.Amount0)
	a1in, a1out := splitSigned(out.Amount1)
	tick := int(out.Tick.Int64())

	return &DecodedSwap{
		Version:      domain.PoolVersionV3,
		Sender:       TopicAddress(topics[1]),
		Recipient:    TopicAddress(topics[2]),
		Amount0In:    a0in,
		Amount1In:    a1in,
		Amount0Out:   a0out,
		Amount1Out:   a1out,
		SqrtPriceX96: out.SqrtPriceX96,
		Liquidity:    out.Liquidity,
		Tick:         &tick,
	}, nil
}

func splitSigned(x *big.Int) (in, out *big.Int) {
	switch x.Sign() {
	case 1:
		return new(big.Int).Set(x), new(big.Int)
	case -1:
		return new(big.Int), new(big.Int).Neg(x)
	default:
		return new(big.Int), new(big.Int)
	}
}

// DecodeSync decodes Sync(uint112 reserve0, uint112 reserve1).
func DecodeSync(data string) (reserve0, reserve1 *big.Int, err error) {
	vals, err := pairABI.Unpack("Sync", common.FromHex(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unpack sync: %v", ErrMalformedLog, err)
	}
	if len(vals) != 2 {
		return nil, nil, fmt.Errorf("%w: sync has %d values", ErrMalformedLog, len(vals))
	}
	r0, ok0 := vals[0].(*big.Int)
	r1, ok1 := vals[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("%w: sync values are %T, %T", ErrMalformedLog, vals[0], vals[1])
	}
	return r0, r1, nil
}

// PoolCreation is a pool announced by a factory.
type PoolCreation struct {
	Version     domain.PoolVersion
	Factory     string
	Pool        string
	Token0      string
	Token1      string
	FeePips     int64
	BlockNumber int64
}

// DecodePoolCreation decodes a v2 PairCreated or v3 PoolCreated log.
func DecodePoolCreation(l *domain.RawLog) (*PoolCreation, error) {
	if len(l.Topics) < 3 {
		return nil, fmt.Errorf("%w: creation has %d topics", ErrMalformedLog, len(l.Topics))
	}
	pc := &PoolCreation{
		Factory:     strings.ToLower(l.Address),
		Token0:      TopicAddress(l.Topics[1]),
		Token1:      TopicAddress(l.Topics[2]),
		BlockNumber: l.BlockNumber,
	}

	switch l.Topic0() {
	case TopicPairCreated:
		vals, err := factoryABI.Unpack("PairCreated", common.FromHex(l.Data))
		if err != nil || len(vals) != 2 {
			return nil, fmt.Errorf("%w: unpack pair created: %v", ErrMalformedLog, err)
		}
		pair, ok := vals[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("%w: pair is %T", ErrMalformedLog, vals[0])
		}
		pc.Version = domain.PoolVersionV2
		pc.Pool = lowerHex(pair)
		pc.FeePips = domain.DefaultFeePips

	case TopicPoolCreated:
		if len(l.Topics) < 4 {
			return nil, fmt.Errorf("%w: pool created has %d topics", ErrMalformedLog, len(l.Topics))
		}
		vals, err := factoryABI.Unpack("PoolCreated", common.FromHex(l.Data))
		if err != nil || len(vals) != 2 {
			return nil, fmt.Errorf("%w: unpack pool created: %v", ErrMalformedLog, err)
		}
		pool, ok := vals[1].(common.Address)
		if !ok {
			return nil, fmt.Errorf("%w: pool is %T", ErrMalformedLog, vals[1])
		}
		pc.Version = domain.PoolVersionV3
		pc.Pool = lowerHex(pool)
		pc.FeePips = common.HexToHash(l.Topics[3]).Big().Int64()

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topic0())
	}

	if pc.Token0 == pc.Token1 {
		return nil, fmt.Errorf("%w: token0 equals token1", ErrMalformedLog)
	}
	return pc, nil
}

// TopicAddress extracts the address packed in the low 20 bytes of a topic.
func TopicAddress(t string) string {
	return lowerHex(common.BytesToAddress(common.FromHex(t)))
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// ResolveSellBuy returns the tokens sold to and bought from the pool.
// When both sides flow in (or out), token1 wins. Either result is nil when
// no amount flows that way.
func ResolveSellBuy(token0ID, token1ID int64, s *DecodedSwap) (sell, buy *int64) {
	if positive(s.Amount0In) {
		sell = &token0ID
	}
	if positive(s.Amount1In) {
		sell = &token1ID
	}
	if positive(s.Amount0Out) {
		buy = &token0ID
	}
	if positive(s.Amount1Out) {
		buy = &token1ID
	}
	return sell, buy
}

func positive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// ToSwap converts a decoded event into a swap row of pool.
func (s *DecodedSwap) ToSwap(pool *domain.Pool, txID int64, logIndex int) *domain.Swap {
	sell, buy := ResolveSellBuy(pool.Token0ID, pool.Token1ID, s)
	return &domain.Swap{
		ChainID:       pool.ChainID,
		PoolID:        pool.ID,
		TransactionID: txID,
		LogIndex:      logIndex,
		Sender:        s.Sender,
		Recipient:     s.Recipient,
		Amount0In:     s.Amount0In,
		Amount1In:     s.Amount1In,
		Amount0Out:    s.Amount0Out,
		Amount1Out:    s.Amount1Out,
		SellTokenID:   sell,
		BuyTokenID:    buy,
		SqrtPriceX96:  s.SqrtPriceX96,
		Liquidity:     s.Liquidity,
		Tick:          s.Tick,
	}
}
