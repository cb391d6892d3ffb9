package txlistener

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestNewTxListenerDefaults(t *testing.T) {
	l := NewTxListener(nil)
	assert.Equal(t, 3*time.Second, l.pollInterval)
	assert.Equal(t, 60*time.Second, l.timeout)
}

func TestWithOptionsOverrideDefaults(t *testing.T) {
	l := NewTxListener(nil, WithPollInterval(time.Second), WithTimeout(5*time.Minute))
	assert.Equal(t, time.Second, l.pollInterval)
	assert.Equal(t, 5*time.Minute, l.timeout)
}

func TestToTxReceipt(t *testing.T) {
	r := &types.Receipt{
		TxHash:            common.HexToHash("0xabc"),
		Status:            1,
		BlockNumber:       big.NewInt(42),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}
	out := toTxReceipt(r)
	assert.Equal(t, "21000", out.GasUsed)
	assert.Equal(t, "1000000000", out.EffectiveGasPrice)
	assert.EqualValues(t, 42, out.BlockNumber)
}
