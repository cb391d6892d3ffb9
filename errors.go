package clpagent

import "errors"

// Sentinel errors classifying every abort path through the strategy
// control loop and rebalance pipeline (spec §7). Call sites wrap one of
// these with fmt.Errorf("...: %w", Err...) so errors.Is/errors.As keep
// working after the wrap.
var (
	// ErrNetworkTransient covers timeouts, 429s and websocket closes.
	// withRetry exhausts its attempts before this surfaces; it never
	// latches SAFE mode.
	ErrNetworkTransient = errors.New("NETWORK_TRANSIENT")

	// ErrTxTimeout means a submitted transaction's outcome is unknown;
	// the next block must re-read on-chain truth rather than assume
	// success or failure.
	ErrTxTimeout = errors.New("TX_TIMEOUT")

	// ErrTwapViolation aborts a rebalance when the current tick has
	// drifted too far from the 300s TWAP tick. Position preserved.
	ErrTwapViolation = errors.New("TWAP_VIOLATION")

	// ErrMarketDataUnavailable aborts a rebalance when ATR/RSI cannot
	// be computed from closed candles. Position preserved.
	ErrMarketDataUnavailable = errors.New("MARKET_DATA_UNAVAILABLE")

	// ErrSwapRevert and ErrMintRevert cover on-chain reverts of the
	// swap or mint transaction, most commonly slippage.
	ErrSwapRevert = errors.New("SWAP_REVERT")
	ErrMintRevert = errors.New("MINT_REVERT")

	// ErrHardEquityStop fires when total equity drops below the
	// configured floor; it latches SAFE mode.
	ErrHardEquityStop = errors.New("HARD_EQUITY_STOP")

	// ErrPanicExit is reserved for a health-factor-style breach in a
	// hedged variant; this build carries the taxonomy entry but never
	// raises it since no hedge manager is wired (see DESIGN.md).
	ErrPanicExit = errors.New("PANIC_EXIT")

	// ErrCircuitBreaker fires when price has drifted far outside the
	// current position's range by a wide multiple. Unlike the hard
	// equity stop, it does not latch SAFE: the loop retries entry on
	// the very next block.
	ErrCircuitBreaker = errors.New("CIRCUIT_BREAKER")

	// ErrStateCorrupt marks a persisted-state file that failed to
	// parse; treated identically to "no position", reconciled by the
	// state store's orphan scan.
	ErrStateCorrupt = errors.New("STATE_CORRUPT")
)
