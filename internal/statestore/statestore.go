// Package statestore implements the State Store (spec §4.3): an
// atomically-written JSON file recording which position NFT, if any,
// the agent currently manages, plus an orphan scan that reconciles a
// crash between mint success and state persistence. The teacher repo
// has no direct analogue (blackhole.go tracks no cross-run state); this
// package follows the teacher's error-wrapping and plain-JSON-file
// conventions seen in configs.LoadConfig.
package statestore

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"clpagent"
)

// PositionReader is the subset of the position-manager contract the
// orphan scan needs: enumerate a wallet's NFTs and read each one's
// liquidity.
type PositionReader interface {
	BalanceOf(owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(owner common.Address, index *big.Int) (*big.Int, error)
	PositionLiquidity(tokenID *big.Int) (*big.Int, error)
}

// Store persists PersistedState to a single JSON file on disk.
type Store struct {
	path string
}

// New returns a Store backed by path. The file need not exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted state. A missing or malformed file is
// treated as clpagent.NoPosition rather than an error, per spec §4.3.
func (s *Store) Load() clpagent.PersistedState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return clpagent.NoPosition
	}

	var state clpagent.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return clpagent.NoPosition
	}
	if state.TokenID == "" {
		return clpagent.NoPosition
	}
	return state
}

// Save atomically persists tokenID with lastCheck set to now. The write
// goes to a temp file in the same directory followed by a rename, so a
// crash mid-write never leaves a truncated state file behind.
func (s *Store) Save(tokenID string) error {
	state := clpagent.PersistedState{TokenID: tokenID, LastCheck: time.Now().UnixMilli()}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}

// ScanOrphans reconciles a lost write: if the wallet holds at least one
// position NFT while the persisted state still says "0", it adopts the
// highest-indexed NFT (the most recently minted one) provided it still
// carries positive liquidity.
func ScanOrphans(reader PositionReader, wallet common.Address) (string, error) {
	balance, err := reader.BalanceOf(wallet)
	if err != nil {
		return "0", fmt.Errorf("orphan scan balance: %w", err)
	}
	if balance.Sign() == 0 {
		return "0", nil
	}

	lastIndex := new(big.Int).Sub(balance, big.NewInt(1))
	tokenID, err := reader.TokenOfOwnerByIndex(wallet, lastIndex)
	if err != nil {
		return "0", fmt.Errorf("orphan scan token lookup: %w", err)
	}

	liquidity, err := reader.PositionLiquidity(tokenID)
	if err != nil {
		return "0", fmt.Errorf("orphan scan liquidity read: %w", err)
	}
	if liquidity.Sign() <= 0 {
		return "0", nil
	}

	return tokenID.String(), nil
}
