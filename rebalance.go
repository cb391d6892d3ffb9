package clpagent

import (
	"fmt"
	"log"
	"math"
	"math/big"
	"time"

	"clpagent/internal/ammmath"
	"clpagent/internal/marketdata"
)

// PipelineState names a step of the rebalance pipeline's state
// machine (spec §4.6): IDLE → CHECKING_TWAP → FETCHING_DATA → EXITING
// → SWAPPING → WAIT_SYNC → MINTING → IDLE, with any non-IDLE state
// able to transition to ABORTED.
type PipelineState string

const (
	StateIdle         PipelineState = "IDLE"
	StateCheckingTWAP PipelineState = "CHECKING_TWAP"
	StateFetchingData PipelineState = "FETCHING_DATA"
	StateExiting      PipelineState = "EXITING"
	StateSwapping     PipelineState = "SWAPPING"
	StateWaitSync     PipelineState = "WAIT_SYNC"
	StateMinting      PipelineState = "MINTING"
	StateAborted      PipelineState = "ABORTED"
)

const (
	twapWindowSeconds  = 300
	twapMaxDeviation   = 200 // ticks, ≈2%
	rebalanceSyncSleep = 2 * time.Second
	minWidthTicks      = 200
	maxWidthTicks      = 4000
	rsiPeriod          = 14
	atrPeriod          = 14
	marketGranularity  = "15m"
	candleLimit        = 100
)

// PoolReader is the subset of AMM pool access the rebalance pipeline
// needs: a fresh state sample and the tick-cumulative observations
// TWAP is computed from.
type PoolReader interface {
	Snapshot() (*PoolSnapshot, error)
	Observe(secondsAgo []uint32) (tickCumulatives []int64, err error)
}

// RebalancePipeline executes the ordered steps of spec §4.6 against one
// Agent and one pool connection.
type RebalancePipeline struct {
	agent           *Agent
	pool            PoolReader
	market          *marketdata.Client
	atrSafetyFactor float64
}

// NewRebalancePipeline wires a pipeline. atrSafetyFactor scales ATR
// into the dynamic range width (spec §4.6 step 5).
func NewRebalancePipeline(agent *Agent, pool PoolReader, market *marketdata.Client, atrSafetyFactor float64) *RebalancePipeline {
	return &RebalancePipeline{agent: agent, pool: pool, market: market, atrSafetyFactor: atrSafetyFactor}
}

// RebalanceOutcome summarizes a successful rebalance for reporting.
type RebalanceOutcome struct {
	Exited0, Exited1 *big.Int
	NewTokenID       string
	NewRange         RangePlan
	PriceUsdPerWeth  *big.Float
}

// Run executes the pipeline for oldTokenID ("0" if there is no current
// position). Any step failure returns a wrapped sentinel error and
// StateAborted; the caller (Strategy Control Loop) decides whether the
// abort is fatal.
func (p *RebalancePipeline) Run(oldTokenID string) (*RebalanceOutcome, PipelineState, error) {
	state := StateCheckingTWAP
	log.Printf("rebalance: %s", state)

	snapshot, err := p.pool.Snapshot()
	if err != nil {
		return nil, StateAborted, fmt.Errorf("fetch pool snapshot: %w", err)
	}

	if err := p.checkTWAP(snapshot); err != nil {
		return nil, StateAborted, err
	}

	state = StateFetchingData
	log.Printf("rebalance: %s", state)
	rsi, atr, err := p.fetchAnalytics()
	if err != nil {
		return nil, StateAborted, err
	}

	var exited0, exited1 *big.Int
	if (PersistedState{TokenID: oldTokenID}).HasPosition() {
		state = StateExiting
		log.Printf("rebalance: %s tokenId=%s", state, oldTokenID)
		tokenID, ok := new(big.Int).SetString(oldTokenID, 10)
		if !ok {
			return nil, StateAborted, fmt.Errorf("%w: malformed tokenId %q", ErrStateCorrupt, oldTokenID)
		}
		exited0, exited1, err = p.agent.AtomicExit(tokenID)
		if err != nil {
			return nil, StateAborted, fmt.Errorf("exit old position: %w", err)
		}
	}

	snapshot, err = p.pool.Snapshot()
	if err != nil {
		return nil, StateAborted, fmt.Errorf("refresh pool snapshot after exit: %w", err)
	}

	plan := computeRangePlan(snapshot, atr, rsi, p.atrSafetyFactor)

	state = StateSwapping
	log.Printf("rebalance: %s tickLower=%d tickUpper=%d", state, plan.TickLower, plan.TickUpper)
	if err := p.agent.SmartSwap(snapshot, plan.TickLower, plan.TickUpper); err != nil {
		return nil, StateAborted, fmt.Errorf("%w: %v", ErrSwapRevert, err)
	}

	state = StateWaitSync
	log.Printf("rebalance: %s", state)
	time.Sleep(rebalanceSyncSleep)

	snapshot, err = p.pool.Snapshot()
	if err != nil {
		return nil, StateAborted, fmt.Errorf("refresh pool snapshot after swap: %w", err)
	}

	state = StateMinting
	log.Printf("rebalance: %s", state)
	newTokenID, err := p.agent.MintMaxLiquidity(snapshot, plan.TickLower, plan.TickUpper)
	if err != nil {
		return nil, StateAborted, fmt.Errorf("%w: %v", ErrMintRevert, err)
	}

	log.Printf("rebalance: %s newTokenId=%s", StateIdle, newTokenID)
	return &RebalanceOutcome{
		Exited0:         zeroIfNil(exited0),
		Exited1:         zeroIfNil(exited1),
		NewTokenID:      newTokenID,
		NewRange:        plan,
		PriceUsdPerWeth: snapshot.Price0In1(),
	}, StateIdle, nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// checkTWAP computes the 300s time-weighted average tick and aborts
// with ErrTwapViolation if the current tick has drifted more than
// twapMaxDeviation from it.
func (p *RebalancePipeline) checkTWAP(snapshot *PoolSnapshot) error {
	cumulatives, err := p.pool.Observe([]uint32{twapWindowSeconds, 0})
	if err != nil {
		return fmt.Errorf("%w: observe failed: %v", ErrNetworkTransient, err)
	}
	if len(cumulatives) != 2 {
		return fmt.Errorf("observe returned %d values, want 2", len(cumulatives))
	}

	// cumulatives[0] is secondsAgo=300 (older), cumulatives[1] is
	// secondsAgo=0 (now): twapTick = floor((c1 - c0) / window). Go's
	// built-in integer division truncates toward zero, which is wrong for
	// negative cumulative deltas, so this uses an explicit floor division.
	twapTick := floorDiv(cumulatives[1]-cumulatives[0], twapWindowSeconds)

	deviation := int64(snapshot.Tick) - twapTick
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > twapMaxDeviation {
		return fmt.Errorf("%w: current tick %d vs twap %d (deviation %d)", ErrTwapViolation, snapshot.Tick, twapTick, deviation)
	}
	return nil
}

// floorDiv computes floor(a/b) for b > 0, unlike Go's built-in integer
// division which truncates toward zero.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// fetchAnalytics concurrently fetches RSI and ATR at the fixed "15m"
// granularity (spec §4.4/§4.6 step 2). Either failure aborts with
// ErrMarketDataUnavailable; the old position is preserved since this
// runs before the exit step.
func (p *RebalancePipeline) fetchAnalytics() (rsi, atr float64, err error) {
	type result struct {
		value float64
		err   error
	}
	rsiCh := make(chan result, 1)
	atrCh := make(chan result, 1)

	go func() {
		candles, err := p.market.Candles(marketGranularity, candleLimit)
		if err != nil {
			rsiCh <- result{err: err}
			return
		}
		v, err := marketdata.RSI(candles, rsiPeriod)
		rsiCh <- result{value: v, err: err}
	}()

	go func() {
		candles, err := p.market.Candles(marketGranularity, candleLimit)
		if err != nil {
			atrCh <- result{err: err}
			return
		}
		v, err := marketdata.ATR(candles, atrPeriod)
		atrCh <- result{value: v, err: err}
	}()

	rsiResult := <-rsiCh
	atrResult := <-atrCh

	if rsiResult.err != nil {
		return 0, 0, fmt.Errorf("%w: rsi: %v", ErrMarketDataUnavailable, rsiResult.err)
	}
	if atrResult.err != nil {
		return 0, 0, fmt.Errorf("%w: atr: %v", ErrMarketDataUnavailable, atrResult.err)
	}
	return rsiResult.value, atrResult.value, nil
}

// computeRangePlan derives the new position's tick range from current
// volatility (ATR) and momentum (RSI), per spec §4.6 step 5.
func computeRangePlan(snapshot *PoolSnapshot, atr, rsi, atrSafetyFactor float64) RangePlan {
	price, _ := snapshot.Price0In1().Float64()
	if price == 0 {
		price = 1
	}

	volPercent := atr / price * 100
	dynamicWidth := math.Floor(volPercent * 100 * atrSafetyFactor)
	widthTicks := clampFloat(dynamicWidth, minWidthTicks, maxWidthTicks)

	skew := SkewNeutral
	switch {
	case rsi > 75:
		skew = SkewBelowSpot
	case rsi < 25:
		skew = SkewAboveSpot
	}

	totalSpan := widthTicks * 2
	upperDiff := math.Floor(totalSpan * float64(skew))
	lowerDiff := math.Floor(totalSpan * (1 - float64(skew)))

	tickSpacing := int64(snapshot.TickSpacing)
	if tickSpacing == 0 {
		tickSpacing = 1
	}

	lower := ammmath.AlignToSpacing(int64(snapshot.Tick)-int64(lowerDiff), tickSpacing)
	upper := ammmath.AlignToSpacing(int64(snapshot.Tick)+int64(upperDiff), tickSpacing)

	lower = clampInt64(lower, ammmath.MinTick, ammmath.MaxTick)
	upper = clampInt64(upper, ammmath.MinTick, ammmath.MaxTick)
	if lower >= upper {
		upper = lower + tickSpacing
	}

	return RangePlan{
		TickLower:  int32(lower),
		TickUpper:  int32(upper),
		Skew:       skew,
		WidthTicks: int32(widthTicks),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
