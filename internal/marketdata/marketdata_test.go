package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	candles []Candle
	err     error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	return f.candles, f.err
}

func TestClientFallsThroughToNextProvider(t *testing.T) {
	failing := &fakeProvider{name: "coinbase", err: ErrGeoBlocked}
	working := &fakeProvider{name: "kraken", candles: []Candle{{Close: 100}}}

	c := New(failing, working)
	candles, err := c.Candles("15m", 1)
	require.NoError(t, err)
	assert.Equal(t, []Candle{{Close: 100}}, candles)
}

func TestClientExhaustsAllProviders(t *testing.T) {
	a := &fakeProvider{name: "coinbase", err: errors.New("down")}
	b := &fakeProvider{name: "kraken", err: errors.New("down")}

	c := New(a, b)
	_, err := c.Candles("15m", 1)
	assert.Error(t, err)
}

func risingCandles(n int) []Candle {
	candles := make([]Candle, n)
	price := 100.0
	for i := range candles {
		candles[i] = Candle{Open: price, High: price + 1, Low: price - 1, Close: price}
		price += 1
	}
	return candles
}

func TestRSIAllGainsApproaches100(t *testing.T) {
	rsi, err := RSI(risingCandles(20), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi)
}

func TestRSINotEnoughCandles(t *testing.T) {
	_, err := RSI(risingCandles(5), 14)
	assert.Error(t, err)
}

func TestATRPositiveForVolatileCandles(t *testing.T) {
	atr, err := ATR(risingCandles(20), 14)
	require.NoError(t, err)
	assert.Greater(t, atr, 0.0)
}

func TestATRNotEnoughCandles(t *testing.T) {
	_, err := ATR(risingCandles(5), 14)
	assert.Error(t, err)
}

func TestIntervalToMinutes(t *testing.T) {
	m, err := intervalToMinutes("15m")
	require.NoError(t, err)
	assert.Equal(t, 15, m)

	_, err = intervalToMinutes("3d")
	assert.Error(t, err)
}

func TestCloseLastDropsFormingCandleThenTruncatesToLimit(t *testing.T) {
	candles := risingCandles(10)
	out := closeLast(candles, 3)
	assert.Len(t, out, 3)
	assert.Equal(t, candles[6:9], out)
}

func TestCloseLastDropsFormingCandleWithoutLimit(t *testing.T) {
	candles := risingCandles(10)
	out := closeLast(candles, 0)
	assert.Len(t, out, 9)
	assert.Equal(t, candles[:9], out)
}
