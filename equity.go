package clpagent

import (
	"fmt"
	"math/big"

	"clpagent/internal/ammmath"
)

// EquityEngine computes an EquitySnapshot (spec §4.5) by summing wallet
// balances, the principal amounts implied by the managed position at
// the pool's current tick, and pending fees read through a static
// (non-mutating) collect call — never the stale tokensOwed fields from
// positions(). It is the concrete type bound to Strategy's
// EquityComputer field.
type EquityEngine struct {
	agent *Agent
	pool  PoolReader
	store StateStore
}

// NewEquityEngine wires an EquityEngine against agent's wallet and
// contract surface, pool for the current price, and store for which
// position (if any) to value.
func NewEquityEngine(agent *Agent, pool PoolReader, store StateStore) *EquityEngine {
	return &EquityEngine{agent: agent, pool: pool, store: store}
}

// Equity computes a fresh EquitySnapshot for the currently persisted
// position, if any.
func (e *EquityEngine) Equity() (EquitySnapshot, error) {
	snapshot, err := e.pool.Snapshot()
	if err != nil {
		return EquitySnapshot{}, fmt.Errorf("equity: pool snapshot: %w", err)
	}

	walletWeth, err := e.agent.balanceOf(e.agent.weth.Address)
	if err != nil {
		return EquitySnapshot{}, fmt.Errorf("equity: wallet weth balance: %w", err)
	}
	walletUsdc, err := e.agent.balanceOf(e.agent.usdc.Address)
	if err != nil {
		return EquitySnapshot{}, fmt.Errorf("equity: wallet usdc balance: %w", err)
	}

	positionWeth := big.NewInt(0)
	positionUsdc := big.NewInt(0)
	pendingFees0 := big.NewInt(0)
	pendingFees1 := big.NewInt(0)

	state := e.store.Load()
	if state.HasPosition() {
		positionWeth, positionUsdc, pendingFees0, pendingFees1, err = e.readPosition(state.TokenID, snapshot)
		if err != nil {
			return EquitySnapshot{}, err
		}
	}

	price := snapshot.Price0In1()

	totalWeth := new(big.Int).Add(walletWeth, positionWeth)
	totalWeth.Add(totalWeth, pendingFees0)
	totalUsdc := new(big.Int).Add(walletUsdc, positionUsdc)
	totalUsdc.Add(totalUsdc, pendingFees1)

	wethValue := new(big.Float).Mul(big.NewFloat(scaledFloat(totalWeth, e.agent.weth.Decimals)), price)
	usdcValue := big.NewFloat(scaledFloat(totalUsdc, e.agent.usdc.Decimals))
	totalUsd := new(big.Float).Add(wethValue, usdcValue)

	return EquitySnapshot{
		WalletWeth:      walletWeth,
		WalletUsdc:      walletUsdc,
		PositionWeth:    positionWeth,
		PositionUsdc:    positionUsdc,
		PendingFees0:    pendingFees0,
		PendingFees1:    pendingFees1,
		PriceUsdPerWeth: price,
		TotalUsd:        totalUsd,
	}, nil
}

// readPosition reads tokenID's principal amounts at the pool's current
// tick and its pending fees via a static collect(max128, max128) call.
// The collect call is never sent as a transaction: eth_call only.
func (e *EquityEngine) readPosition(tokenIDStr string, snapshot *PoolSnapshot) (positionWeth, positionUsdc, pendingFees0, pendingFees1 *big.Int, err error) {
	zero := big.NewInt(0)

	tokenID, ok := new(big.Int).SetString(tokenIDStr, 10)
	if !ok {
		return zero, zero, zero, zero, fmt.Errorf("equity: malformed tokenId %q", tokenIDStr)
	}

	pm, err := e.agent.client(e.agent.positionManager)
	if err != nil {
		return zero, zero, zero, zero, fmt.Errorf("equity: position manager client: %w", err)
	}

	positionResult, err := pm.Call(&e.agent.myAddr, "positions", tokenID)
	if err != nil {
		return zero, zero, zero, zero, fmt.Errorf("equity: read position %s: %w", tokenID, err)
	}
	liquidity, _ := positionResult[7].(*big.Int)
	tickLower, _ := positionResult[5].(int32)
	tickUpper, _ := positionResult[6].(int32)

	positionWeth, positionUsdc = zero, zero
	if liquidity != nil && liquidity.Sign() > 0 {
		positionWeth, positionUsdc, err = ammmath.CalculateTokenAmountsFromLiquidity(liquidity, snapshot.SqrtPriceX96, tickLower, tickUpper)
		if err != nil {
			return zero, zero, zero, zero, fmt.Errorf("equity: position amounts: %w", err)
		}
	}

	collectResult, err := pm.Call(&e.agent.myAddr, "collect", collectParams{
		TokenId:    tokenID,
		Recipient:  e.agent.myAddr,
		Amount0Max: maxUint128Big,
		Amount1Max: maxUint128Big,
	})
	if err != nil {
		return zero, zero, zero, zero, fmt.Errorf("equity: static collect: %w", err)
	}
	pendingFees0, pendingFees1 = zero, zero
	if len(collectResult) >= 2 {
		if amt0, ok := collectResult[0].(*big.Int); ok {
			pendingFees0 = amt0
		}
		if amt1, ok := collectResult[1].(*big.Int); ok {
			pendingFees1 = amt1
		}
	}

	return positionWeth, positionUsdc, pendingFees0, pendingFees1, nil
}
