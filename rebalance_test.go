package clpagent

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clpagent/internal/marketdata"
)

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(-2), floorDiv(-5, 3))  // Go's -5/3 truncates to -1; floor is -2
	assert.Equal(t, int64(1), floorDiv(5, 3))
	assert.Equal(t, int64(-1), floorDiv(-3, 3))
	assert.Equal(t, int64(0), floorDiv(0, 3))
}

func TestComputeRangePlanClampsWidth(t *testing.T) {
	snapshot := &PoolSnapshot{
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Tick:         0,
		TickSpacing:  60,
	}
	// Huge ATR relative to price drives dynamicWidth far past the ceiling.
	plan := computeRangePlan(snapshot, 1000, 50, 1.0)
	assert.LessOrEqual(t, plan.WidthTicks, int32(maxWidthTicks))
	assert.GreaterOrEqual(t, plan.WidthTicks, int32(minWidthTicks))
	assert.Less(t, plan.TickLower, plan.TickUpper)
}

func TestComputeRangePlanSkewFromRSI(t *testing.T) {
	snapshot := &PoolSnapshot{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Tick: 0, TickSpacing: 60}

	overbought := computeRangePlan(snapshot, 1, 80, 1.0)
	assert.Equal(t, SkewBelowSpot, overbought.Skew)

	oversold := computeRangePlan(snapshot, 1, 10, 1.0)
	assert.Equal(t, SkewAboveSpot, oversold.Skew)

	neutral := computeRangePlan(snapshot, 1, 50, 1.0)
	assert.Equal(t, SkewNeutral, neutral.Skew)
}

type fakePoolReader struct {
	snapshot    *PoolSnapshot
	cumulatives []int64
	snapshotErr error
	observeErr  error
}

func (f *fakePoolReader) Snapshot() (*PoolSnapshot, error) { return f.snapshot, f.snapshotErr }
func (f *fakePoolReader) Observe(secondsAgo []uint32) ([]int64, error) {
	return f.cumulatives, f.observeErr
}

func TestCheckTWAPPassesWithinDeviation(t *testing.T) {
	pool := &fakePoolReader{
		snapshot:    &PoolSnapshot{Tick: 100},
		cumulatives: []int64{0, 100 * 300}, // flat twap at tick 100
	}
	p := &RebalancePipeline{pool: pool}
	err := p.checkTWAP(pool.snapshot)
	assert.NoError(t, err)
}

func TestCheckTWAPViolatesOnLargeDeviation(t *testing.T) {
	pool := &fakePoolReader{
		snapshot:    &PoolSnapshot{Tick: 1000},
		cumulatives: []int64{0, 0}, // twap tick 0, current tick 1000
	}
	p := &RebalancePipeline{pool: pool}
	err := p.checkTWAP(pool.snapshot)
	assert.ErrorIs(t, err, ErrTwapViolation)
}

type fakeMarketProvider struct {
	candles []marketdata.Candle
	err     error
}

func (f *fakeMarketProvider) Name() string { return "fake" }
func (f *fakeMarketProvider) Candles(ctx context.Context, interval string, limit int) ([]marketdata.Candle, error) {
	return f.candles, f.err
}

func TestFetchAnalyticsPropagatesMarketDataError(t *testing.T) {
	market := marketdata.New(&fakeMarketProvider{err: errors.New("provider down")})
	p := &RebalancePipeline{market: market}

	_, _, err := p.fetchAnalytics()
	assert.ErrorIs(t, err, ErrMarketDataUnavailable)
}

func TestFetchAnalyticsSucceeds(t *testing.T) {
	candles := make([]marketdata.Candle, 20)
	price := 100.0
	for i := range candles {
		candles[i] = marketdata.Candle{Open: price, High: price + 1, Low: price - 1, Close: price}
		price++
	}
	market := marketdata.New(&fakeMarketProvider{candles: candles})
	p := &RebalancePipeline{market: market}

	rsi, atr, err := p.fetchAnalytics()
	require.NoError(t, err)
	assert.Greater(t, rsi, 0.0)
	assert.Greater(t, atr, 0.0)
}
