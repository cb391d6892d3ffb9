// Package txlistener polls for transaction receipts, the same role the
// teacher repo's pkg/txlistener plays for blackhole.go's WaitForTransaction
// call sites.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"clpagent/internal/contractclient"
)

// ErrTxTimeout classifies a confirmation wait that exceeded its
// deadline. Per spec §4.2/§7, the caller must not assume the
// transaction did not land.
var ErrTxTimeout = errors.New("TX_TIMEOUT")

// TxListener waits for transaction receipts against a single client.
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often the listener re-checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout sets the default confirmation deadline.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// NewTxListener builds a TxListener against client, applying opts over
// the defaults of a 3s poll interval and a 60s timeout (spec §4.2).
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{
		client:       client,
		pollInterval: 3 * time.Second,
		timeout:      60 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction races the receipt against the listener's configured
// timeout. On timeout it returns ErrTxTimeout; the caller must treat the
// transaction's on-chain outcome as unknown.
func (l *TxListener) WaitForTransaction(txHash common.Hash) (*contractclient.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return toTxReceipt(receipt), nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s after %s", ErrTxTimeout, txHash.Hex(), l.timeout)
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt %s: %w", txHash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s after %s", ErrTxTimeout, txHash.Hex(), l.timeout)
		case <-ticker.C:
		}
	}
}

func toTxReceipt(r *types.Receipt) *contractclient.TxReceipt {
	return &contractclient.TxReceipt{
		TxHash:            r.TxHash,
		Status:            r.Status,
		BlockNumber:       r.BlockNumber.Uint64(),
		GasUsed:           fmt.Sprintf("%d", r.GasUsed),
		EffectiveGasPrice: r.EffectiveGasPrice.String(),
		Logs:              r.Logs,
	}
}
