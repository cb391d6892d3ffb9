package clpagent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrappingPreservesIs(t *testing.T) {
	wrapped := fmt.Errorf("rebalance abort: %w", ErrTwapViolation)
	assert.True(t, errors.Is(wrapped, ErrTwapViolation))
	assert.False(t, errors.Is(wrapped, ErrMarketDataUnavailable))
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrNetworkTransient, ErrTxTimeout, ErrTwapViolation, ErrMarketDataUnavailable,
		ErrSwapRevert, ErrMintRevert, ErrHardEquityStop, ErrPanicExit,
		ErrCircuitBreaker, ErrStateCorrupt,
	}
	seen := make(map[string]bool)
	for _, e := range all {
		assert.False(t, seen[e.Error()], "duplicate error message %q", e.Error())
		seen[e.Error()] = true
	}
}
