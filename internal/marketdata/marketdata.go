// Package marketdata implements the Market Data Client (spec §4.4): a
// candle fetcher with provider failover and the RSI/ATR indicators
// derived from it. No repo in the reference corpus wires an HTTP
// client library for this kind of call (see DESIGN.md); every provider
// here is plain JSON-over-HTTPS, so the package uses net/http and
// encoding/json directly, in the same unadorned style the teacher uses
// for its own JSON event decoding in pkg/contractclient.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Candle is one OHLC bar at a fixed granularity.
type Candle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Provider fetches the most recent `limit` closed candles at the given
// interval (e.g. "15m") for a single trading pair.
type Provider interface {
	Name() string
	Candles(ctx context.Context, interval string, limit int) ([]Candle, error)
}

// ErrGeoBlocked is returned by a Provider implementation when the
// upstream responds with HTTP 451, signaling the client to advance to
// the next provider in the chain.
var ErrGeoBlocked = fmt.Errorf("market data provider geo-blocked")

// Client chains providers in priority order (e.g. Coinbase, then
// Kraken, then Binance) and falls through to the next one on any
// error, including ErrGeoBlocked.
type Client struct {
	providers []Provider
}

// New builds a Client trying providers in the given order.
func New(providers ...Provider) *Client {
	return &Client{providers: providers}
}

// Candles tries each provider in order, returning the first success.
func (c *Client) Candles(interval string, limit int) ([]Candle, error) {
	var lastErr error
	for _, p := range c.providers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		candles, err := p.Candles(ctx, interval, limit)
		cancel()
		if err == nil {
			return candles, nil
		}
		lastErr = fmt.Errorf("%s: %w", p.Name(), err)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("market data: no providers configured")
	}
	return nil, fmt.Errorf("market data: all providers exhausted: %w", lastErr)
}

// RSI computes the Relative Strength Index over the last `period`
// closes, returning the last value in the sequence. Needs at least
// period+1 candles.
func RSI(candles []Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, fmt.Errorf("rsi: need %d candles, got %d", period+1, len(candles))
	}

	start := len(candles) - period - 1
	var gainSum, lossSum float64
	for i := start + 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// ATR computes the Average True Range over the last `period` candles,
// returning the last value in the sequence. Needs at least period+1
// candles so every true-range sample has a prior close.
func ATR(candles []Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, fmt.Errorf("atr: need %d candles, got %d", period+1, len(candles))
	}

	start := len(candles) - period - 1
	var trSum float64
	for i := start + 1; i < len(candles); i++ {
		trSum += trueRange(candles[i], candles[i-1])
	}
	return trSum / float64(period), nil
}

func trueRange(cur, prev Candle) float64 {
	highLow := cur.High - cur.Low
	highPrevClose := abs(cur.High - prev.Close)
	lowPrevClose := abs(cur.Low - prev.Close)
	return max3(highLow, highPrevClose, lowPrevClose)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// decodeJSON is a small shared helper so every Provider implementation
// parses HTTP responses the same way.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnavailableForLegalReasons {
		return ErrGeoBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
