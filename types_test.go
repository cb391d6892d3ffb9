package clpagent

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPersistedStateHasPosition(t *testing.T) {
	assert.False(t, NoPosition.HasPosition())
	assert.False(t, PersistedState{TokenID: ""}.HasPosition())
	assert.True(t, PersistedState{TokenID: "42"}.HasPosition())
}

func TestPositionWidthAndCenter(t *testing.T) {
	p := &Position{TickLower: -200, TickUpper: 200}
	assert.EqualValues(t, 400, p.Width())
	assert.EqualValues(t, 0, p.Center())
}

func TestPoolSnapshotPrice0In1(t *testing.T) {
	// sqrtPriceX96 for tick 0 is exactly 2^96, i.e. price ratio 1.0 raw.
	sqrtPriceX96 := new(big.Int).Lsh(big.NewInt(1), 96)
	p := &PoolSnapshot{
		SqrtPriceX96: sqrtPriceX96,
		Token0:       TokenRef{Decimals: 18, Symbol: "WETH"},
		Token1:       TokenRef{Decimals: 6, Symbol: "USDC"},
	}
	price, _ := p.Price0In1().Float64()
	// raw ratio 1.0 scaled by 10^(18-6) = 10^12
	assert.InDelta(t, 1e12, price, 1e6)
}
