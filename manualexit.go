package clpagent

import (
	"fmt"
	"log"
	"math/big"

	"github.com/fatih/color"
)

// ManualExit is the Manual Exit Entry (spec §4.8): an operator-invoked,
// best-effort teardown that is never reached from the block handler.
// It loads the persisted position, exits and sweeps on a best-effort
// basis, and always clears the persisted state so the control loop
// restarts clean.
type ManualExit struct {
	agent *Agent
	store StateStore
	audit AuditLogger
}

// NewManualExit wires a ManualExit entry point.
func NewManualExit(agent *Agent, store StateStore, audit AuditLogger) *ManualExit {
	return &ManualExit{agent: agent, store: store, audit: audit}
}

// Run executes the manual exit. Both the on-chain exit and the sweep
// are best-effort: a failure in either is logged but does not stop the
// other from being attempted, and the persisted state is cleared
// regardless of how far the teardown got.
func (m *ManualExit) Run() error {
	state := m.store.Load()

	if state.HasPosition() {
		tokenID, ok := new(big.Int).SetString(state.TokenID, 10)
		if !ok {
			log.Printf("manual exit: malformed tokenId %q, skipping on-chain exit", state.TokenID)
		} else if _, _, err := m.agent.AtomicExit(tokenID); err != nil {
			log.Printf("manual exit: atomic exit failed for tokenId %s: %v", state.TokenID, err)
			m.log("ERROR", fmt.Sprintf("manual exit failed for tokenId %s: %v", state.TokenID, err))
		} else {
			log.Printf("manual exit: closed position %s", state.TokenID)
		}
	} else {
		log.Printf("manual exit: no position on record")
	}

	if err := m.agent.SweepToStable(); err != nil {
		log.Printf("manual exit: sweep to stable failed: %v", err)
		m.log("ERROR", fmt.Sprintf("manual exit sweep failed: %v", err))
		color.Red("✗ Sweep to stable failed: %v\n", err)
	}

	if err := m.store.Save("0"); err != nil {
		return fmt.Errorf("clear persisted state: %w", err)
	}

	m.log("INFO", "manual exit complete, state cleared")
	color.Green("✓ Manual exit complete, state cleared\n")
	return nil
}

func (m *ManualExit) log(entryType, details string) {
	if m.audit != nil {
		m.audit.Log(entryType, details, 0, 0, 0)
	}
}
