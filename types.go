// Package clpagent implements an autonomous concentrated-liquidity
// position manager for a USDC/WETH AMM pool on an EVM chain.
package clpagent

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"clpagent/internal/ammmath"
)

// TokenRef identifies one leg of the pool.
type TokenRef struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// PoolSnapshot is an immutable sample of on-chain pool state.
type PoolSnapshot struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	TickSpacing  int32
	Token0       TokenRef
	Token1       TokenRef
	SampledAt    time.Time
}

// Price0In1 returns the spot price of token0 denominated in token1,
// adjusted for both tokens' decimals.
func (p *PoolSnapshot) Price0In1() *big.Float {
	if p == nil || p.SqrtPriceX96 == nil {
		return big.NewFloat(0)
	}
	raw := ammmath.SqrtPriceToPrice(p.SqrtPriceX96)
	shift := new(big.Float).SetFloat64(pow10(int(p.Token0.Decimals) - int(p.Token1.Decimals)))
	return new(big.Float).Mul(raw, shift)
}

func pow10(n int) float64 {
	v := 1.0
	if n >= 0 {
		for i := 0; i < n; i++ {
			v *= 10
		}
		return v
	}
	for i := 0; i < -n; i++ {
		v *= 10
	}
	return 1 / v
}

// Position is the on-chain liquidity position identified by TokenID.
type Position struct {
	TokenID     *big.Int
	TickLower   int32
	TickUpper   int32
	Liquidity   *big.Int
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int
}

// Width returns the tick width of the position.
func (p *Position) Width() int32 {
	return p.TickUpper - p.TickLower
}

// Center returns the center tick of the position.
func (p *Position) Center() int32 {
	return (p.TickLower + p.TickUpper) / 2
}

// PersistedState is the crash-recoverable record of which position
// (if any) the agent currently owns.
type PersistedState struct {
	TokenID   string `json:"tokenId"`
	LastCheck int64  `json:"lastCheck"`
}

// HasPosition reports whether the persisted state records an open position.
func (s PersistedState) HasPosition() bool {
	return s.TokenID != "" && s.TokenID != "0"
}

// NoPosition is the zero-value persisted state: no position on record.
var NoPosition = PersistedState{TokenID: "0", LastCheck: 0}

// Skew biases a new range around the current tick.
type Skew float64

// Skew values allowed by the deterministic skew rule (spec §4.6 step 5,
// §8 "Deterministic skew"). Named constants are used instead of raw
// float literals everywhere else in this module.
const (
	SkewBelowSpot Skew = 0.3 // RSI > 75: expect downside room, range skews below spot
	SkewNeutral   Skew = 0.5
	SkewAboveSpot Skew = 0.7 // RSI < 25
)

// RangePlan is the transient output of the rebalance pipeline's range
// computation (spec §4.6 step 5).
type RangePlan struct {
	TickLower  int32
	TickUpper  int32
	Skew       Skew
	WidthTicks int32
}

// EquitySnapshot is the block-time valuation of all agent-controlled
// assets: wallet balances, position principal at the current tick, and
// pending (uncollected) fees from a static collect call.
type EquitySnapshot struct {
	WalletWeth      *big.Int
	WalletUsdc      *big.Int
	PositionWeth    *big.Int
	PositionUsdc    *big.Int
	PendingFees0    *big.Int
	PendingFees1    *big.Int
	PriceUsdPerWeth *big.Float
	TotalUsd        *big.Float
}

// OperatingMode is the agent's latched run mode.
type OperatingMode int

const (
	// ModeNormal is the default operating mode: the control loop may
	// submit transactions.
	ModeNormal OperatingMode = iota
	// ModeSafe is a latched, terminal (within one process lifetime)
	// observation-only mode. Exiting it requires an operator restart.
	ModeSafe
)

func (m OperatingMode) String() string {
	if m == ModeSafe {
		return "SAFE"
	}
	return "NORMAL"
}
