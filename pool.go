package clpagent

import (
	"fmt"
	"math/big"
	"time"

	"clpagent/internal/contractclient"
)

// Pool wraps the AMM pool contract client, implementing PoolReader
// against a live chain connection (spec §4.1/§4.6).
type Pool struct {
	client      contractclient.ContractClient
	tickSpacing int32
	token0      TokenRef
	token1      TokenRef
}

// NewPool binds a Pool to client. tickSpacing, token0 and token1 are
// fixed contract-surface values (spec §6) supplied at wiring time
// rather than read from chain on every call.
func NewPool(client contractclient.ContractClient, tickSpacing int32, token0, token1 TokenRef) *Pool {
	return &Pool{client: client, tickSpacing: tickSpacing, token0: token0, token1: token1}
}

// Rebind swaps the pool's contract client, used by the Connection
// Supervisor's OnSwitch callback (spec §7) after endpoint rotation.
func (p *Pool) Rebind(client contractclient.ContractClient) {
	p.client = client
}

// Snapshot reads slot0 and the pool's current in-range liquidity,
// concurrently (spec §5 names pool slot0+liquidity as one of the two
// reads that must fan out rather than run sequentially).
func (p *Pool) Snapshot() (*PoolSnapshot, error) {
	type slot0Result struct {
		sqrtPriceX96 *big.Int
		tick         int32
		err          error
	}
	type liquidityResult struct {
		liquidity *big.Int
		err       error
	}
	slot0Ch := make(chan slot0Result, 1)
	liquidityCh := make(chan liquidityResult, 1)

	go func() {
		slot0, err := p.client.Call(nil, "slot0")
		if err != nil {
			slot0Ch <- slot0Result{err: fmt.Errorf("pool: slot0: %w", err)}
			return
		}
		sqrtPriceX96, ok := slot0[0].(*big.Int)
		if !ok {
			slot0Ch <- slot0Result{err: fmt.Errorf("pool: unexpected slot0 sqrtPriceX96 type")}
			return
		}
		tick, ok := slot0[1].(int32)
		if !ok {
			slot0Ch <- slot0Result{err: fmt.Errorf("pool: unexpected slot0 tick type")}
			return
		}
		slot0Ch <- slot0Result{sqrtPriceX96: sqrtPriceX96, tick: tick}
	}()

	go func() {
		result, err := p.client.Call(nil, "liquidity")
		if err != nil {
			liquidityCh <- liquidityResult{err: fmt.Errorf("pool: liquidity: %w", err)}
			return
		}
		liquidity, ok := result[0].(*big.Int)
		if !ok {
			liquidityCh <- liquidityResult{err: fmt.Errorf("pool: unexpected liquidity type")}
			return
		}
		liquidityCh <- liquidityResult{liquidity: liquidity}
	}()

	slot0Res := <-slot0Ch
	liqRes := <-liquidityCh
	if slot0Res.err != nil {
		return nil, slot0Res.err
	}
	if liqRes.err != nil {
		return nil, liqRes.err
	}

	return &PoolSnapshot{
		SqrtPriceX96: slot0Res.sqrtPriceX96,
		Tick:         slot0Res.tick,
		Liquidity:    liqRes.liquidity,
		TickSpacing:  p.tickSpacing,
		Token0:       p.token0,
		Token1:       p.token1,
		SampledAt:    time.Now(),
	}, nil
}

// Observe returns the pool's raw tickCumulative observations for the
// given lookback offsets, the input to the TWAP check (spec §4.6 step 1).
func (p *Pool) Observe(secondsAgo []uint32) ([]int64, error) {
	result, err := p.client.Call(nil, "observe", secondsAgo)
	if err != nil {
		return nil, fmt.Errorf("pool: observe: %w", err)
	}
	raw, ok := result[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("pool: unexpected observe tickCumulatives type")
	}
	cumulatives := make([]int64, len(raw))
	for i, v := range raw {
		cumulatives[i] = v.Int64()
	}
	return cumulatives, nil
}
