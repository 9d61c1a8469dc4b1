// Package evm decodes Uniswap v2/v3 events and reads historical contract
// state from an Ethereum JSON-RPC node.
package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures, lowercase 0x-prefixed as stored in the warehouse.
var (
	TopicV2Swap      = topic("Swap(address,uint256,uint256,uint256,uint256,address)")
	TopicV3Swap      = topic("Swap(address,address,int256,int256,uint160,uint128,int24)")
	TopicSync        = topic("Sync(uint112,uint112)")
	TopicPairCreated = topic("PairCreated(address,address,address,uint256)")
	TopicPoolCreated = topic("PoolCreated(address,address,uint24,int24,address)")
)

// SwapTopics are the swap events of both pool versions.
var SwapTopics = []string{TopicV2Swap, TopicV3Swap}

func topic(sig string) string {
	return strings.ToLower(crypto.Keccak256Hash([]byte(sig)).Hex())
}

const pairABIJSON = `[
	{"anonymous": false, "name": "Swap", "type": "event", "inputs": [
		{"indexed": true, "name": "sender", "type": "address"},
		{"indexed": false, "name": "amount0In", "type": "uint256"},
		{"indexed": false, "name": "amount1In", "type": "uint256"},
		{"indexed": false, "name": "amount0Out", "type": "uint256"},
		{"indexed": false, "name": "amount1Out", "type": "uint256"},
		{"indexed": true, "name": "to", "type": "address"}
	]},
	{"anonymous": false, "name": "Sync", "type": "event", "inputs": [
		{"indexed": false, "name": "reserve0", "type": "uint112"},
		{"indexed": false, "name": "reserve1", "type": "uint112"}
	]},
	{"constant": true, "name": "getReserves", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [
		{"name": "_reserve0", "type": "uint112"},
		{"name": "_reserve1", "type": "uint112"},
		{"name": "_blockTimestampLast", "type": "uint32"}
	]}
]`

const v3PoolABIJSON = `[
	{"anonymous": false, "name": "Swap", "type": "event", "inputs": [
		{"indexed": true, "name": "sender", "type": "address"},
		{"indexed": true, "name": "recipient", "type": "address"},
		{"indexed": false, "name": "amount0", "type": "int256"},
		{"indexed": false, "name": "amount1", "type": "int256"},
		{"indexed": false, "name": "sqrtPriceX96", "type": "uint160"},
		{"indexed": false, "name": "liquidity", "type": "uint128"},
		{"indexed": false, "name": "tick", "type": "int24"}
	]},
	{"name": "slot0", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [
		{"name": "sqrtPriceX96", "type": "uint160"},
		{"name": "tick", "type": "int24"},
		{"name": "observationIndex", "type": "uint16"},
		{"name": "observationCardinality", "type": "uint16"},
		{"name": "observationCardinalityNext", "type": "uint16"},
		{"name": "feeProtocol", "type": "uint8"},
		{"name": "unlocked", "type": "bool"}
	]}
]`

const factoryABIJSON = `[
	{"anonymous": false, "name": "PairCreated", "type": "event", "inputs": [
		{"indexed": true, "name": "token0", "type": "address"},
		{"indexed": true, "name": "token1", "type": "address"},
		{"indexed": false, "name": "pair", "type": "address"},
		{"indexed": false, "name": "", "type": "uint256"}
	]},
	{"anonymous": false, "name": "PoolCreated", "type": "event", "inputs": [
		{"indexed": true, "name": "token0", "type": "address"},
		{"indexed": true, "name": "token1", "type": "address"},
		{"indexed": true, "name": "fee", "type": "uint24"},
		{"indexed": false, "name": "tickSpacing", "type": "int24"},
		{"indexed": false, "name": "pool", "type": "address"}
	]}
]`

const erc20ABIJSON = `[
	{"constant": true, "name": "decimals", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint8"}]},
	{"constant": true, "name": "symbol", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "string"}]}
]`

// Some early tokens (MKR, SAI) return symbol as bytes32.
const erc20Bytes32ABIJSON = `[
	{"constant": true, "name": "symbol", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes32"}]}
]`

var (
	pairABI         abi.ABI
	v3PoolABI       abi.ABI
	factoryABI      abi.ABI
	erc20ABI        abi.ABI
	erc20Bytes32ABI abi.ABI
)

func init() {
	pairABI = mustParse(pairABIJSON)
	v3PoolABI = mustParse(v3PoolABIJSON)
	factoryABI = mustParse(factoryABIJSON)
	erc20ABI = mustParse(erc20ABIJSON)
	erc20Bytes32ABI = mustParse(erc20Bytes32ABIJSON)
}

func mustParse(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic("evm: parse abi: " + err.Error())
	}
	return parsed
}
