package clpagent

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clpagent/internal/contractclient"
)

func TestManualExitClosesPositionAndClearsState(t *testing.T) {
	parsedABI := mustParsePMABI(t)
	pm := &fakeContractClient{
		address:   common.HexToAddress("0x01"),
		parsedABI: parsedABI,
		callResults: map[string][]any{
			"positions": {
				uint64(0), common.Address{}, common.Address{}, common.Address{}, uint32(500), int32(-100), int32(100),
				big.NewInt(5000), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0),
			},
		},
		sendTxHash:   common.HexToHash("0xabc"),
		parseReceipt: `[{"EventName":"Collect","Parameter":{"amount0":"10","amount1":"20"}}]`,
	}
	weth := &fakeContractClient{
		address: common.HexToAddress("0x02"), parsedABI: parsedABI,
		callResults: map[string][]any{"balanceOf": {big.NewInt(1)}}, // below dust, sweep no-ops
	}
	usdc := &fakeContractClient{address: common.HexToAddress("0x03"), parsedABI: parsedABI}
	router := &fakeContractClient{address: common.HexToAddress("0x04"), parsedABI: parsedABI}
	quoter := &fakeContractClient{address: common.HexToAddress("0x05"), parsedABI: parsedABI}
	tw := &fakeTxWaiter{receipt: &contractclient.TxReceipt{}}

	agent := testAgent(t, pm, weth, usdc, router, quoter, tw)
	store := &fakeStateStore{state: PersistedState{TokenID: "99"}}
	audit := &fakeAuditLogger{}

	exit := NewManualExit(agent, store, audit)
	require.NoError(t, exit.Run())

	assert.Equal(t, "0", store.state.TokenID)
	assert.Contains(t, audit.entries, "INFO")
}

func TestManualExitNoOpsWithNoPersistedPosition(t *testing.T) {
	parsedABI := mustParsePMABI(t)
	pm := &fakeContractClient{address: common.HexToAddress("0x01"), parsedABI: parsedABI}
	weth := &fakeContractClient{
		address: common.HexToAddress("0x02"), parsedABI: parsedABI,
		callResults: map[string][]any{"balanceOf": {big.NewInt(0)}},
	}
	usdc := &fakeContractClient{address: common.HexToAddress("0x03"), parsedABI: parsedABI}
	router := &fakeContractClient{address: common.HexToAddress("0x04"), parsedABI: parsedABI}
	quoter := &fakeContractClient{address: common.HexToAddress("0x05"), parsedABI: parsedABI}
	tw := &fakeTxWaiter{}

	agent := testAgent(t, pm, weth, usdc, router, quoter, tw)
	store := &fakeStateStore{state: NoPosition}
	exit := NewManualExit(agent, store, nil)

	require.NoError(t, exit.Run())
	assert.Equal(t, "0", store.state.TokenID)
}
