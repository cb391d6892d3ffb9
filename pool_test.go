package clpagent

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolABIJSON = `[
	{"type":"function","name":"slot0","inputs":[],"outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}]},
	{"type":"function","name":"liquidity","inputs":[],"outputs":[{"name":"","type":"uint128"}]},
	{"type":"function","name":"observe","inputs":[{"name":"secondsAgos","type":"uint32[]"}],"outputs":[
		{"name":"tickCumulatives","type":"int56[]"},{"name":"secondsPerLiquidityCumulativeX128s","type":"uint160[]"}]}
]`

func mustParsePoolABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	require.NoError(t, err)
	return parsed
}

func TestPoolSnapshotReadsSlot0AndLiquidity(t *testing.T) {
	client := &fakeContractClient{
		address:   common.HexToAddress("0x10"),
		parsedABI: mustParsePoolABI(t),
		callResults: map[string][]any{
			"slot0":     {new(big.Int).Lsh(big.NewInt(1), 96), int32(100), uint16(0), uint16(0), uint16(0), uint8(0), true},
			"liquidity": {big.NewInt(123456)},
		},
	}
	weth := TokenRef{Decimals: 18, Symbol: "WETH"}
	usdc := TokenRef{Decimals: 6, Symbol: "USDC"}

	pool := NewPool(client, 60, weth, usdc)
	snapshot, err := pool.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, int32(100), snapshot.Tick)
	assert.Equal(t, "123456", snapshot.Liquidity.String())
	assert.Equal(t, int32(60), snapshot.TickSpacing)
}

func TestPoolObserveConvertsCumulatives(t *testing.T) {
	client := &fakeContractClient{
		address:   common.HexToAddress("0x10"),
		parsedABI: mustParsePoolABI(t),
		callResults: map[string][]any{
			"observe": {[]*big.Int{big.NewInt(0), big.NewInt(30000)}, []*big.Int{big.NewInt(0), big.NewInt(0)}},
		},
	}
	pool := NewPool(client, 60, TokenRef{}, TokenRef{})

	cumulatives, err := pool.Observe([]uint32{300, 0})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 30000}, cumulatives)
}
