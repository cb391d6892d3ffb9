// Package ammmath implements the concentrated-liquidity position math
// that the strategy treats elsewhere as a black-box facade: converting
// between ticks, sqrtPriceX96 values, and token amounts for a
// Uniswap-v3-style pool. No published Go module exposes this math for
// arbitrary tick spacings, so it is hand-rolled the way the teacher
// repo's pkg/util/amm.go does it.
package ammmath

import (
	"math"
	"math/big"
)

var (
	q96     = new(big.Int).Lsh(big.NewInt(1), 96)
	q96Flt  = new(big.Float).SetInt(q96)
	tickBig = 1.0001
)

// MinTick and MaxTick bound every tick index a Uniswap-v3-style pool
// can represent, regardless of tick spacing.
const (
	MinTick int64 = -887272
	MaxTick int64 = 887272
)

// SqrtPriceToPrice returns the raw (decimal-unadjusted) price
// token1-per-token0 implied by a Q96 sqrt price.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96Flt)
	return new(big.Float).Mul(ratio, ratio)
}

// AlignToSpacing rounds tick down to the nearest multiple of spacing,
// the tick-range alignment every range-computing call site in this
// module needs (the rebalance pipeline's skewed range placement
// included) so there is exactly one floor-division rule for it.
func AlignToSpacing(tick, spacing int64) int64 {
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// ComputeAmounts computes the token amounts (and resulting liquidity)
// that result from depositing up to amount0Max/amount1Max into the
// range [tickLower, tickUpper] at the pool's current sqrtPriceX96/tick.
func ComputeAmounts(sqrtPriceX96 *big.Int, tick, tickLower, tickUpper int, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, *big.Int) {
	sqrtP := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96Flt)
	sqrtPa := sqrtPriceRatio(tickLower)
	sqrtPb := sqrtPriceRatio(tickUpper)

	switch {
	case tick < tickLower:
		// Entirely token0.
		return new(big.Int).Set(amount0Max), big.NewInt(0), liquidityFromAmount0(sqrtPa, sqrtPb, amount0Max)
	case tick >= tickUpper:
		// Entirely token1.
		return big.NewInt(0), new(big.Int).Set(amount1Max), liquidityFromAmount1(sqrtPa, sqrtPb, amount1Max)
	default:
		l0 := liquidityFromAmount0(sqrtP, sqrtPb, amount0Max)
		l1 := liquidityFromAmount1(sqrtPa, sqrtP, amount1Max)
		l := l0
		if l1.Cmp(l0) < 0 {
			l = l1
		}
		lf := new(big.Float).SetInt(l)
		amount0 := amount0FromLiquidity(sqrtP, sqrtPb, lf)
		amount1 := amount1FromLiquidity(sqrtPa, sqrtP, lf)
		return amount0, amount1, l
	}
}

// CalculateTokenAmountsFromLiquidity returns the token amounts backing
// an existing liquidity position at the pool's current sqrtPriceX96.
func CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	tick := tickFromSqrtPrice(sqrtPriceX96)
	sqrtP := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96Flt)
	sqrtPa := sqrtPriceRatio(int(tickLower))
	sqrtPb := sqrtPriceRatio(int(tickUpper))
	lf := new(big.Float).SetInt(liquidity)

	switch {
	case tick < int(tickLower):
		return amount0FromLiquidity(sqrtPa, sqrtPb, lf), big.NewInt(0), nil
	case tick >= int(tickUpper):
		return big.NewInt(0), amount1FromLiquidity(sqrtPa, sqrtPb, lf), nil
	default:
		return amount0FromLiquidity(sqrtP, sqrtPb, lf), amount1FromLiquidity(sqrtPa, sqrtP, lf), nil
	}
}

func sqrtPriceRatio(tick int) *big.Float {
	sqrtRatio := math.Pow(tickBig, float64(tick)/2)
	return new(big.Float).SetFloat64(sqrtRatio)
}

func tickFromSqrtPrice(sqrtPriceX96 *big.Int) int {
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96Flt)
	f, _ := ratio.Float64()
	if f <= 0 {
		return math.MinInt32
	}
	return int(math.Floor(2 * math.Log(f) / math.Log(tickBig)))
}

func liquidityFromAmount0(sqrtPLow, sqrtPHigh *big.Float, amount0 *big.Int) *big.Int {
	diff := new(big.Float).Sub(sqrtPHigh, sqrtPLow)
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Float).Mul(new(big.Float).SetInt(amount0), sqrtPLow)
	num.Mul(num, sqrtPHigh)
	l := new(big.Float).Quo(num, diff)
	out, _ := l.Int(nil)
	return out
}

func liquidityFromAmount1(sqrtPLow, sqrtPHigh *big.Float, amount1 *big.Int) *big.Int {
	diff := new(big.Float).Sub(sqrtPHigh, sqrtPLow)
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	l := new(big.Float).Quo(new(big.Float).SetInt(amount1), diff)
	out, _ := l.Int(nil)
	return out
}

func amount0FromLiquidity(sqrtPLow, sqrtPHigh *big.Float, liquidity *big.Float) *big.Int {
	diff := new(big.Float).Sub(sqrtPHigh, sqrtPLow)
	denom := new(big.Float).Mul(sqrtPLow, sqrtPHigh)
	if denom.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Float).Mul(liquidity, diff)
	out, _ := new(big.Float).Quo(num, denom).Int(nil)
	return out
}

func amount1FromLiquidity(sqrtPLow, sqrtPHigh *big.Float, liquidity *big.Float) *big.Int {
	diff := new(big.Float).Sub(sqrtPHigh, sqrtPLow)
	num := new(big.Float).Mul(liquidity, diff)
	out, _ := num.Int(nil)
	return out
}
