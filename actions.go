package clpagent

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"clpagent/internal/ammmath"
	"clpagent/internal/contractclient"
)

// decreaseLiquidityParams mirrors INonfungiblePositionManager.DecreaseLiquidityParams.
type decreaseLiquidityParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

// collectParams mirrors INonfungiblePositionManager.CollectParams.
type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// mintParams mirrors INonfungiblePositionManager.MintParams.
type mintParams struct {
	Token0         common.Address
	Token1         common.Address
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// exactInputSingleParams mirrors ISwapRouter.ExactInputSingleParams.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

const maxUint128 = "340282366920938463463374607431768211455"

var maxUint128Big, _ = new(big.Int).SetString(maxUint128, 10)

func mintDeadline() *big.Int { return big.NewInt(time.Now().Add(120 * time.Second).Unix()) }

// AtomicExit closes tokenID in a single multicall: decreaseLiquidity
// (only if liquidity>0), collect(max128, max128), burn. Returns the
// amounts collected, parsed from the Collect event in the receipt
// (spec §4.5).
func (a *Agent) AtomicExit(tokenID *big.Int) (amount0Collected, amount1Collected *big.Int, err error) {
	pm, err := a.client(a.positionManager)
	if err != nil {
		return nil, nil, err
	}

	positionResult, err := pm.Call(&a.myAddr, "positions", tokenID)
	if err != nil {
		return nil, nil, fmt.Errorf("read position %s: %w", tokenID, err)
	}
	liquidity, ok := positionResult[7].(*big.Int) // positions() returns liquidity as the 8th field
	if !ok {
		return nil, nil, fmt.Errorf("unexpected positions() liquidity type")
	}

	deadline := mintDeadline()
	var calls [][]byte

	if liquidity.Sign() > 0 {
		decreaseData, err := pm.Abi().Pack("decreaseLiquidity", decreaseLiquidityParams{
			TokenId:    tokenID,
			Liquidity:  liquidity,
			Amount0Min: big.NewInt(0),
			Amount1Min: big.NewInt(0),
			Deadline:   deadline,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("pack decreaseLiquidity: %w", err)
		}
		calls = append(calls, decreaseData)
	}

	collectData, err := pm.Abi().Pack("collect", collectParams{
		TokenId:    tokenID,
		Recipient:  a.myAddr,
		Amount0Max: maxUint128Big,
		Amount1Max: maxUint128Big,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pack collect: %w", err)
	}
	calls = append(calls, collectData)

	burnData, err := pm.Abi().Pack("burn", tokenID)
	if err != nil {
		return nil, nil, fmt.Errorf("pack burn: %w", err)
	}
	calls = append(calls, burnData)

	txHash, err := pm.Send(contractclient.Standard, nil, &a.myAddr, a.privateKey, "multicall", calls)
	if err != nil {
		return nil, nil, fmt.Errorf("submit exit multicall: %w", err)
	}

	receipt, err := a.tl.WaitForTransaction(txHash)
	if err != nil {
		return nil, nil, fmt.Errorf("exit multicall confirmation: %w", err)
	}

	amount0Collected, amount1Collected, err = parseCollectEvent(pm, receipt)
	if err != nil {
		return nil, nil, fmt.Errorf("parse collect event: %w", err)
	}
	return amount0Collected, amount1Collected, nil
}

// parseCollectEvent extracts amount0/amount1 from the Collect event in
// receipt, the same JSON-decode-of-ParseReceipt idiom the teacher uses
// in MintNftTokenId for the Transfer event.
func parseCollectEvent(pm contractclient.ContractClient, receipt *contractclient.TxReceipt) (*big.Int, *big.Int, error) {
	eventsJSON, err := pm.ParseReceipt(receipt)
	if err != nil {
		return nil, nil, err
	}

	var events []struct {
		EventName string         `json:"EventName"`
		Parameter map[string]any `json:"Parameter"`
	}
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		return nil, nil, fmt.Errorf("unmarshal events: %w", err)
	}

	for _, ev := range events {
		if ev.EventName != "Collect" {
			continue
		}
		amount0 := toBigInt(ev.Parameter["amount0"])
		amount1 := toBigInt(ev.Parameter["amount1"])
		return amount0, amount1, nil
	}
	return big.NewInt(0), big.NewInt(0), nil
}

func toBigInt(v any) *big.Int {
	switch val := v.(type) {
	case *big.Int:
		return val
	case string:
		if b, ok := new(big.Int).SetString(val, 10); ok {
			return b
		}
	case float64:
		return big.NewInt(int64(val))
	}
	return big.NewInt(0)
}

// mintNftTokenID extracts the new position's tokenId from the Transfer
// event minted from the zero address, mirroring the teacher's
// MintNftTokenId.
func mintNftTokenID(pm contractclient.ContractClient, receipt *contractclient.TxReceipt) *big.Int {
	eventsJSON, err := pm.ParseReceipt(receipt)
	if err != nil {
		return big.NewInt(0)
	}

	var events []struct {
		EventName string         `json:"EventName"`
		Parameter map[string]any `json:"Parameter"`
	}
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		return big.NewInt(0)
	}

	zero := common.Address{}
	for _, ev := range events {
		if ev.EventName != "Transfer" {
			continue
		}
		from, _ := ev.Parameter["from"].(string)
		if from != zero.Hex() && from != "0x0000000000000000000000000000000000000000" {
			continue
		}
		return toBigInt(ev.Parameter["tokenId"])
	}
	return big.NewInt(0)
}

// SmartSwap rebalances the wallet's WETH/USDC split toward the ideal
// ratio for [tickLower, tickUpper] at the current pool price, per spec
// §4.5. Swaps below the configured dust threshold are skipped.
func (a *Agent) SmartSwap(pool *PoolSnapshot, tickLower, tickUpper int32) error {
	balWeth, err := a.balanceOf(a.weth.Address)
	if err != nil {
		return fmt.Errorf("read weth balance: %w", err)
	}
	balUsdc, err := a.balanceOf(a.usdc.Address)
	if err != nil {
		return fmt.Errorf("read usdc balance: %w", err)
	}

	maxAmount, _ := new(big.Int).SetString(maxUint128, 10)
	idealWeth, idealUsdc, _ := ammmath.ComputeAmounts(pool.SqrtPriceX96, int(pool.Tick), int(tickLower), int(tickUpper), maxAmount, maxAmount)

	price0 := pool.Price0In1() // USDC per WETH, decimal adjusted
	price0Float, _ := price0.Float64()

	balWethF := scaledFloat(balWeth, a.weth.Decimals)
	balUsdcF := scaledFloat(balUsdc, a.usdc.Decimals)
	idealWethF := scaledFloat(idealWeth, a.weth.Decimals)
	idealUsdcF := scaledFloat(idealUsdc, a.usdc.Decimals)

	totalValueUsdc := balUsdcF + balWethF*price0Float

	var targetWeth float64
	if idealWethF == 0 {
		targetWeth = 0
	} else {
		ratio := idealUsdcF / idealWethF
		targetWeth = totalValueUsdc / (price0Float + ratio)
	}

	deltaWeth := balWethF - targetWeth

	switch {
	case idealWethF == 0 && balWethF > 0:
		// Single-sided range entirely in token1: sell all WETH.
		if balWethF < dustThreshold(a.rebalanceDustWeth, a.weth.Decimals) {
			return nil // dust, skip
		}
		return a.executeSwap(a.weth, a.usdc, balWeth)
	case idealUsdcF == 0 && balUsdcF > 0:
		// Single-sided range entirely in token0: sell all USDC.
		if balUsdcF < dustThreshold(a.rebalanceDustUsdc, a.usdc.Decimals) {
			return nil // dust, skip
		}
		return a.executeSwap(a.usdc, a.weth, balUsdc)
	case deltaWeth > 0:
		sellWeth := floatToScaled(deltaWeth, a.weth.Decimals)
		if scaledFloat(sellWeth, a.weth.Decimals) < dustThreshold(a.rebalanceDustWeth, a.weth.Decimals) {
			return nil // dust, skip
		}
		return a.executeSwap(a.weth, a.usdc, sellWeth)
	default:
		sellUsdc := floatToScaled(-deltaWeth*price0Float, a.usdc.Decimals)
		if scaledFloat(sellUsdc, a.usdc.Decimals) < dustThreshold(a.rebalanceDustUsdc, a.usdc.Decimals) {
			return nil // dust, skip
		}
		return a.executeSwap(a.usdc, a.weth, sellUsdc)
	}
}

func dustThreshold(threshold *big.Int, decimals uint8) float64 {
	return scaledFloat(threshold, decimals)
}

func scaledFloat(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	scale := new(big.Float).SetFloat64(pow10(int(decimals)))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

func floatToScaled(v float64, decimals uint8) *big.Int {
	if v <= 0 {
		return big.NewInt(0)
	}
	f := new(big.Float).SetFloat64(v)
	scale := new(big.Float).SetFloat64(pow10(int(decimals)))
	out, _ := new(big.Float).Mul(f, scale).Int(nil)
	return out
}

// executeSwap sells amountIn of tokenIn for tokenOut via exactInputSingle,
// deriving amountOutMinimum from a Quoter static call and a 0.5% slippage
// tolerance.
func (a *Agent) executeSwap(tokenIn, tokenOut TokenRef, amountIn *big.Int) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil
	}

	tokenClient, err := a.client(tokenIn.Address)
	if err != nil {
		return err
	}
	if err := a.ensureApproval(tokenClient, a.router, amountIn); err != nil {
		return fmt.Errorf("approve router for %s: %w", tokenIn.Symbol, err)
	}

	quoterClient, err := a.client(a.quoter)
	if err != nil {
		return err
	}
	quoteResult, err := quoterClient.Call(&a.myAddr, "quoteExactInputSingle", tokenIn.Address, tokenOut.Address, amountIn, big.NewInt(0))
	if err != nil {
		return fmt.Errorf("quote swap: %w", err)
	}
	amountOutQuoted, ok := quoteResult[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected quote result type")
	}
	amountOutMinimum := applyBps(amountOutQuoted, a.slippageBps)

	routerClient, err := a.client(a.router)
	if err != nil {
		return err
	}
	txHash, err := routerClient.Send(contractclient.Standard, nil, &a.myAddr, a.privateKey, "exactInputSingle", exactInputSingleParams{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		Fee:               big.NewInt(500),
		Recipient:         a.myAddr,
		Deadline:          mintDeadline(),
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMinimum,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return fmt.Errorf("submit swap: %w", err)
	}
	if _, err := a.tl.WaitForTransaction(txHash); err != nil {
		return fmt.Errorf("swap confirmation: %w", err)
	}
	return nil
}

// applyBps reduces amount by bps/10000, flooring.
func applyBps(amount *big.Int, bps int) *big.Int {
	num := new(big.Int).Mul(amount, big.NewInt(int64(10_000-bps)))
	return num.Div(num, big.NewInt(10_000))
}

// MintMaxLiquidity mints a new position over [tickLower, tickUpper]
// using up to 99% of both token balances (safety buffer for precision
// and RPC balance lag, spec §4.5). Returns "0" if both scaled desired
// amounts are zero.
func (a *Agent) MintMaxLiquidity(pool *PoolSnapshot, tickLower, tickUpper int32) (string, error) {
	balWeth, err := a.balanceOf(a.weth.Address)
	if err != nil {
		return "0", fmt.Errorf("read weth balance: %w", err)
	}
	balUsdc, err := a.balanceOf(a.usdc.Address)
	if err != nil {
		return "0", fmt.Errorf("read usdc balance: %w", err)
	}

	maxWeth := applyBps(balWeth, 100) // 99% of balance
	maxUsdc := applyBps(balUsdc, 100)

	amount0Desired, amount1Desired, _ := ammmath.ComputeAmounts(pool.SqrtPriceX96, int(pool.Tick), int(tickLower), int(tickUpper), maxWeth, maxUsdc)
	if amount0Desired.Sign() == 0 && amount1Desired.Sign() == 0 {
		return "0", nil
	}

	amount0Min := applyBps(amount0Desired, a.slippageBps)
	amount1Min := applyBps(amount1Desired, a.slippageBps)

	wethClient, err := a.client(a.weth.Address)
	if err != nil {
		return "0", err
	}
	usdcClient, err := a.client(a.usdc.Address)
	if err != nil {
		return "0", err
	}
	if err := a.ensureApproval(wethClient, a.positionManager, amount0Desired); err != nil {
		return "0", fmt.Errorf("approve weth for mint: %w", err)
	}
	if err := a.ensureApproval(usdcClient, a.positionManager, amount1Desired); err != nil {
		return "0", fmt.Errorf("approve usdc for mint: %w", err)
	}

	pm, err := a.client(a.positionManager)
	if err != nil {
		return "0", err
	}

	txHash, err := pm.Send(contractclient.Standard, nil, &a.myAddr, a.privateKey, "mint", mintParams{
		Token0:         a.weth.Address,
		Token1:         a.usdc.Address,
		TickLower:      big.NewInt(int64(tickLower)),
		TickUpper:      big.NewInt(int64(tickUpper)),
		Amount0Desired: amount0Desired,
		Amount1Desired: amount1Desired,
		Amount0Min:     amount0Min,
		Amount1Min:     amount1Min,
		Recipient:      a.myAddr,
		Deadline:       mintDeadline(),
	})
	if err != nil {
		return "0", fmt.Errorf("submit mint: %w", err)
	}

	receipt, err := a.tl.WaitForTransaction(txHash)
	if err != nil {
		return "0", fmt.Errorf("mint confirmation: %w", err)
	}

	tokenID := mintNftTokenID(pm, receipt)
	return tokenID.String(), nil
}

// SweepToStable converts the entire WETH balance to USDC, skipped
// below the WETH dust threshold.
func (a *Agent) SweepToStable() error {
	balWeth, err := a.balanceOf(a.weth.Address)
	if err != nil {
		return fmt.Errorf("read weth balance: %w", err)
	}
	if scaledFloat(balWeth, a.weth.Decimals) < dustThreshold(a.rebalanceDustWeth, a.weth.Decimals) {
		return nil
	}
	return a.executeSwap(a.weth, a.usdc, balWeth)
}
