package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// coinbaseProvider fetches candles from Coinbase Exchange's public
// product-candles endpoint.
type coinbaseProvider struct {
	baseURL string
	product string
	client  *http.Client
}

// NewCoinbaseProvider builds a Provider against Coinbase Exchange,
// e.g. product "WETH-USDC".
func NewCoinbaseProvider(product string) Provider {
	return &coinbaseProvider{baseURL: "https://api.exchange.coinbase.com", product: product, client: http.DefaultClient}
}

func (p *coinbaseProvider) Name() string { return "coinbase" }

func (p *coinbaseProvider) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	granularity, err := intervalToSeconds(interval)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/products/%s/candles?granularity=%d", p.baseURL, p.product, granularity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	// Coinbase returns [time, low, high, open, close, volume] rows,
	// newest first.
	var rows [][]float64
	if err := decodeJSON(resp, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 5 {
			continue
		}
		candles = append(candles, Candle{Low: row[1], High: row[2], Open: row[3], Close: row[4]})
	}
	return closeLast(candles, limit), nil
}

// krakenProvider fetches OHLC data from Kraken's public REST API.
type krakenProvider struct {
	pair   string
	client *http.Client
}

// NewKrakenProvider builds a Provider against Kraken, e.g. pair "ETHUSDC".
func NewKrakenProvider(pair string) Provider {
	return &krakenProvider{pair: pair, client: http.DefaultClient}
}

func (p *krakenProvider) Name() string { return "kraken" }

func (p *krakenProvider) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	minutes, err := intervalToMinutes(interval)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://api.kraken.com/0/public/OHLC?pair=%s&interval=%d", p.pair, minutes)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	var body struct {
		Error  []string            `json:"error"`
		Result map[string][][]any `json:"result"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	if len(body.Error) > 0 {
		return nil, fmt.Errorf("kraken error: %v", body.Error)
	}

	var rows [][]any
	for key, v := range body.Result {
		if key != "last" {
			rows = v
			break
		}
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		open, _ := strconv.ParseFloat(fmt.Sprint(row[1]), 64)
		high, _ := strconv.ParseFloat(fmt.Sprint(row[2]), 64)
		low, _ := strconv.ParseFloat(fmt.Sprint(row[3]), 64)
		closeP, _ := strconv.ParseFloat(fmt.Sprint(row[4]), 64)
		candles = append(candles, Candle{Open: open, High: high, Low: low, Close: closeP})
	}
	return closeLast(candles, limit), nil
}

// binanceProvider fetches klines from Binance's public REST API, used
// as the final link in the failover chain.
type binanceProvider struct {
	symbol string
	client *http.Client
}

// NewBinanceProvider builds a Provider against Binance, e.g. symbol
// "ETHUSDC".
func NewBinanceProvider(symbol string) Provider {
	return &binanceProvider{symbol: symbol, client: http.DefaultClient}
}

func (p *binanceProvider) Name() string { return "binance" }

func (p *binanceProvider) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	// Requests one extra candle since closeLast drops the last (possibly
	// still-forming) one before truncating to limit.
	url := fmt.Sprintf("https://api.binance.com/api/v3/klines?symbol=%s&interval=%s&limit=%d", p.symbol, interval, limit+1)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	var rows [][]any
	if err := decodeJSON(resp, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		open, _ := strconv.ParseFloat(fmt.Sprint(row[1]), 64)
		high, _ := strconv.ParseFloat(fmt.Sprint(row[2]), 64)
		low, _ := strconv.ParseFloat(fmt.Sprint(row[3]), 64)
		closeP, _ := strconv.ParseFloat(fmt.Sprint(row[4]), 64)
		candles = append(candles, Candle{Open: open, High: high, Low: low, Close: closeP})
	}
	return closeLast(candles, limit), nil
}

// closeLast drops the final candle, which may still be forming, before
// truncating to at most limit closed candles (spec §4.4: indicators
// read only closed candles).
func closeLast(candles []Candle, limit int) []Candle {
	if len(candles) > 0 {
		candles = candles[:len(candles)-1]
	}
	if limit <= 0 || len(candles) <= limit {
		return candles
	}
	return candles[len(candles)-limit:]
}

func intervalToSeconds(interval string) (int, error) {
	minutes, err := intervalToMinutes(interval)
	if err != nil {
		return 0, err
	}
	return minutes * 60, nil
}

func intervalToMinutes(interval string) (int, error) {
	switch interval {
	case "1m":
		return 1, nil
	case "5m":
		return 5, nil
	case "15m":
		return 15, nil
	case "1h":
		return 60, nil
	default:
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
}
