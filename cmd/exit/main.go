// Command exit runs the Manual Exit Entry (spec §4.8): an
// operator-invoked, best-effort teardown of the managed position,
// separate from the autonomous control loop in cmd/agent.
package main

import (
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"clpagent"
	"clpagent/configs"
	"clpagent/internal/audit"
	"clpagent/internal/chainutil"
	"clpagent/internal/contractclient"
	"clpagent/internal/statestore"
	"clpagent/internal/supervisor"
	"clpagent/internal/txlistener"
	"clpagent/internal/wiring"
)

// readMaxRetries bounds the RPC Call Wrapper's retry-for-idempotent-
// reads policy (spec §4.2); the manual exit entry has no Connection
// Supervisor to rotate through, so it retries the single dialed
// endpoint in place.
const readMaxRetries = 3

func main() {
	_ = godotenv.Load() // optional: a local .env is convenience, not a requirement

	encryptedPk := mustEnv("ENC_PK")
	key := mustEnv("KEY")
	pk, err := chainutil.Decrypt([]byte(key), encryptedPk)
	if err != nil {
		panic(fmt.Errorf("decrypt private key: %w", err))
	}
	myAddr := contractclient.AddressFromKey(pk)

	conf, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		panic(err)
	}

	endpoints := wiring.SplitAndTrim(mustEnv("RPC_URLS"))
	eth, err := ethclient.Dial(endpoints[0])
	if err != nil {
		panic(fmt.Errorf("dial rpc: %w", err))
	}

	retryReads := func(op func() error) error { return supervisor.WithRetry(op, readMaxRetries, nil) }
	clients, _, err := wiring.BuildClients(eth, conf, retryReads)
	if err != nil {
		panic(fmt.Errorf("build contract clients: %w", err))
	}
	weth, usdc := wiring.TokenRefs(conf.Network)
	dustWeth, err := conf.Network.DustWeth()
	if err != nil {
		panic(err)
	}
	dustUsdc, err := conf.Network.DustUsdc()
	if err != nil {
		panic(err)
	}

	tl := txlistener.NewTxListener(eth)
	agent := clpagent.NewAgent(pk, myAddr, big.NewInt(conf.Network.ChainID), tl, clients,
		common.HexToAddress(conf.Network.Pool), common.HexToAddress(conf.Network.PositionManager),
		common.HexToAddress(conf.Network.Router), common.HexToAddress(conf.Network.Quoter),
		weth, usdc, conf.Network.TickSpacing, dustWeth, dustUsdc, conf.Network.SlippageBps)

	store := statestore.New(envOr("STATE_PATH", "state.json"))

	// Crash-recovery reconciliation (spec §8): if no position is on
	// record, check whether the wallet still holds an un-persisted
	// position NFT before the manual exit runs, so it tears down the
	// orphan instead of silently skipping it.
	if !store.Load().HasPosition() {
		if tokenID, err := statestore.ScanOrphans(agent, myAddr); err != nil {
			log.Printf("exit: startup orphan scan failed: %v", err)
		} else if tokenID != "0" {
			log.Printf("exit: startup orphan scan adopted tokenId %s", tokenID)
			if err := store.Save(tokenID); err != nil {
				log.Printf("exit: failed to persist adopted tokenId %s: %v", tokenID, err)
			}
		}
	}

	auditLogger, err := audit.Open(envOr("AUDIT_LOG_PATH", "audit.csv"))
	if err != nil {
		panic(fmt.Errorf("open audit log: %w", err))
	}
	defer auditLogger.Close()

	color.Cyan("✓ Manual exit wired against %s\n", endpoints[0])

	exit := clpagent.NewManualExit(agent, store, auditLogger)
	if err := exit.Run(); err != nil {
		color.Red("✗ Manual exit failed: %v\n", err)
		os.Exit(1)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("%s not set", key))
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
