package ammmath

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// sqrtPriceAtTick is a test-only fixture builder: the inverse of
// tickFromSqrtPrice, used to construct realistic sqrtPriceX96 inputs
// for a given tick. Production code never needs to go from tick to
// sqrtPrice (on-chain reads always hand back sqrtPriceX96 directly),
// so this stays local to the test file rather than living on the
// package's exported facade.
func sqrtPriceAtTick(tick int) *big.Int {
	sqrtRatio := math.Pow(tickBig, float64(tick)/2)
	f := new(big.Float).SetFloat64(sqrtRatio)
	f.Mul(f, q96Flt)
	out, _ := f.Int(nil)
	return out
}

func TestSqrtPriceRoundTrip(t *testing.T) {
	for _, tick := range []int{-249428, -1000, 0, 1000, 249428} {
		sqrtPriceX96 := sqrtPriceAtTick(tick)
		assert.True(t, sqrtPriceX96.Sign() > 0)
		gotTick := tickFromSqrtPrice(sqrtPriceX96)
		assert.InDelta(t, tick, gotTick, 1)
	}
}

func TestComputeAmountsInRange(t *testing.T) {
	sqrtPriceX96 := sqrtPriceAtTick(-251400)
	tick := -251400
	tickLower := -252000
	tickUpper := -250800
	amount0Max, _ := big.NewInt(0).SetString("99999309985252461722", 10)
	amount1Max, _ := big.NewInt(0).SetString("1208870000", 10)

	amount0, amount1, liquidity := ComputeAmounts(sqrtPriceX96, tick, tickLower, tickUpper, amount0Max, amount1Max)

	assert.True(t, liquidity.Sign() > 0, "liquidity should be positive")
	assert.True(t, amount0.Sign() >= 0 && amount0.Cmp(amount0Max) <= 0)
	assert.True(t, amount1.Sign() >= 0 && amount1.Cmp(amount1Max) <= 0)
}

func TestComputeAmountsSingleSided(t *testing.T) {
	tickLower := -252000
	tickUpper := -250800
	amount0Max := big.NewInt(1_000_000_000_000_000_000)
	amount1Max := big.NewInt(1_000_000_000)

	t.Run("below_range_is_all_token0", func(t *testing.T) {
		sqrtPriceX96 := sqrtPriceAtTick(tickLower - 2000)
		amount0, amount1, _ := ComputeAmounts(sqrtPriceX96, tickLower-2000, tickLower, tickUpper, amount0Max, amount1Max)
		assert.Equal(t, amount0Max, amount0)
		assert.Equal(t, int64(0), amount1.Int64())
	})

	t.Run("above_range_is_all_token1", func(t *testing.T) {
		sqrtPriceX96 := sqrtPriceAtTick(tickUpper + 2000)
		amount0, amount1, _ := ComputeAmounts(sqrtPriceX96, tickUpper+2000, tickLower, tickUpper, amount0Max, amount1Max)
		assert.Equal(t, int64(0), amount0.Int64())
		assert.Equal(t, amount1Max, amount1)
	})
}

func TestCalculateTokenAmountsFromLiquidity(t *testing.T) {
	liquidity := big.NewInt(845179049218237)
	sqrtPriceX96 := sqrtPriceAtTick(-246400)
	amount0, amount1, err := CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96, -252000, -240800)
	assert.NoError(t, err)
	assert.True(t, amount0.Sign() >= 0)
	assert.True(t, amount1.Sign() >= 0)
}

func TestSqrtPriceToPrice(t *testing.T) {
	sqrtPriceX96 := sqrtPriceAtTick(0)
	price := SqrtPriceToPrice(sqrtPriceX96)
	got, _ := price.Float64()
	assert.InDelta(t, 1.0, got, 0.01)
}

func TestAlignToSpacing(t *testing.T) {
	assert.Equal(t, int64(200), AlignToSpacing(249, 200))
	assert.Equal(t, int64(-400), AlignToSpacing(-249, 200))
	assert.Equal(t, int64(0), AlignToSpacing(0, 200))
	assert.Equal(t, int64(200), AlignToSpacing(200, 200))
}
