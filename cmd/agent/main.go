// Command agent runs the autonomous block-watching control loop
// (spec §4.7): it wires every component described in SPEC_FULL.md
// against one supervised chain connection and drives Strategy.OnBlock
// off a polled block-number feed, the same entrypoint role the
// teacher's cmd/main.go plays for RunStrategy1.
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"clpagent"
	"clpagent/configs"
	"clpagent/internal/alert"
	"clpagent/internal/audit"
	"clpagent/internal/chainutil"
	"clpagent/internal/contractclient"
	"clpagent/internal/db"
	"clpagent/internal/marketdata"
	"clpagent/internal/statestore"
	"clpagent/internal/supervisor"
	"clpagent/internal/txlistener"
	"clpagent/internal/wiring"
)

const (
	blockPollInterval = 5 * time.Second
	readMaxRetries    = 3
)

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
	store := statestore.New(envOr("STATE_PATH", "state.json"))

	notifier := alert.New(alert.Config{
		User:    os.Getenv("EMAIL_USER"),
		Pass:    os.Getenv("EMAIL_PASS"),
		To:      os.Getenv("EMAIL_TO"),
		Service: os.Getenv("EMAIL_SERVICE"),
	})

	var agent *clpagent.Agent
	var pool *clpagent.Pool
	var equity *clpagent.EquityEngine
	var sup *supervisor.Supervisor

	// retryReads is the RPC Call Wrapper's bounded-retry policy for
	// idempotent reads (spec §4.2): up to readMaxRetries retries with
	// supervisor.WithRetry's backoff, rotating away from the current
	// endpoint the moment an attempt looks unstable.
	retryReads := func(op func() error) error {
		return supervisor.WithRetry(op, readMaxRetries, func(reason string) {
			if sup != nil {
				sup.TriggerRotation(reason)
			}
		})
	}

	rebind := func(eth *ethclient.Client) {
		clients, poolClient, err := wiring.BuildClients(eth, conf, retryReads)
		if err != nil {
			log.Printf("agent: rebind failed: %v", err)
			return
		}
		tl := txlistener.NewTxListener(eth, txlistener.WithPollInterval(3*time.Second), txlistener.WithTimeout(5*time.Minute))

		if agent == nil {
			weth, usdc := wiring.TokenRefs(conf.Network)
			dustWeth, err := conf.Network.DustWeth()
			if err != nil {
				panic(err)
			}
			dustUsdc, err := conf.Network.DustUsdc()
			if err != nil {
				panic(err)
			}
			agent = clpagent.NewAgent(pk, myAddr, big.NewInt(conf.Network.ChainID), tl, clients,
				common.HexToAddress(conf.Network.Pool), common.HexToAddress(conf.Network.PositionManager),
				common.HexToAddress(conf.Network.Router), common.HexToAddress(conf.Network.Quoter),
				weth, usdc, conf.Network.TickSpacing, dustWeth, dustUsdc, conf.Network.SlippageBps)
			pool = clpagent.NewPool(poolClient, conf.Network.TickSpacing, weth, usdc)
			equity = clpagent.NewEquityEngine(agent, pool, store)
			return
		}

		agent.Rebind(clients)
		agent.RebindTxWaiter(tl)
		pool.Rebind(poolClient)
	}

	sup, err = supervisor.New(endpoints, rebind, supervisor.WithNotifier(notifier))
	if err != nil {
		panic(fmt.Errorf("dial supervisor: %w", err))
	}
	rebind(sup.CurrentClient())

	scanOrphans := func() (string, error) { return statestore.ScanOrphans(agent, myAddr) }
	reconcileOrphanedPosition(store, scanOrphans)

	auditLogger, err := audit.Open(envOr("AUDIT_LOG_PATH", "audit.csv"))
	if err != nil {
		panic(fmt.Errorf("open audit log: %w", err))
	}
	defer auditLogger.Close()

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		recorder, err := db.NewEquityRecorder(dsn)
		if err != nil {
			log.Printf("agent: equity recorder disabled, connect failed: %v", err)
		} else {
			defer recorder.Close()
			go mirrorEquityToMySQL(equity, recorder)
		}
	}

	market := marketdata.New(buildProviders(conf.Market)...)
	pipeline := clpagent.NewRebalancePipeline(agent, pool, market, conf.Strategy.AtrSafetyFactor)
	strategy := clpagent.NewStrategy(agent, pool, pipeline, equity, agent, store, notifier, auditLogger, scanOrphans, conf.ToStrategyConfig())

	color.Cyan("✓ Agent wired, watching %s for new blocks\n", endpoints[0])
	watchBlocks(sup, strategy)
}

// reconcileOrphanedPosition implements the startup half of spec §8's
// crash-recovery invariant: a restart either finds the orphan via
// scanOrphans and adopts it, or leaves state as "0". It only runs the
// scan when no position is already on record, since a recorded
// position is reconciled on its own schedule by the control loop.
func reconcileOrphanedPosition(store *statestore.Store, scanOrphans func() (string, error)) {
	if store.Load().HasPosition() {
		return
	}
	tokenID, err := scanOrphans()
	if err != nil {
		log.Printf("agent: startup orphan scan failed: %v", err)
		return
	}
	if tokenID == "0" {
		return
	}
	log.Printf("agent: startup orphan scan adopted tokenId %s", tokenID)
	if err := store.Save(tokenID); err != nil {
		log.Printf("agent: failed to persist adopted tokenId %s: %v", tokenID, err)
	}
}

func buildProviders(m configs.MarketYAMLData) []marketdata.Provider {
	var providers []marketdata.Provider
	for _, name := range m.Providers {
		pair := strings.ReplaceAll(m.Product, "-", "")
		switch strings.ToLower(name) {
		case "coinbase":
			providers = append(providers, marketdata.NewCoinbaseProvider(m.Product))
		case "kraken":
			providers = append(providers, marketdata.NewKrakenProvider(pair))
		case "binance":
			providers = append(providers, marketdata.NewBinanceProvider(pair))
		}
	}
	return providers
}

// watchBlocks polls the supervisor's current client for new block
// numbers and drives Strategy.OnBlock once per newly observed block.
func watchBlocks(sup *supervisor.Supervisor, strategy *clpagent.Strategy) {
	ticker := time.NewTicker(blockPollInterval)
	defer ticker.Stop()

	var lastBlock uint64
	for range ticker.C {
		client := sup.CurrentClient()
		if client == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		block, err := client.BlockNumber(ctx)
		cancel()
		if err != nil {
			log.Printf("agent: block number poll failed: %v", err)
			if supervisor.IsUnstable(err) {
				sup.TriggerRotation(err.Error())
			}
			continue
		}
		if block == lastBlock {
			continue
		}
		lastBlock = block
		strategy.OnBlock(block)
	}
}

func mirrorEquityToMySQL(equity *clpagent.EquityEngine, recorder *db.EquityRecorder) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		snapshot, err := equity.Equity()
		if err != nil {
			log.Printf("agent: equity mirror read failed: %v", err)
			continue
		}
		if err := recorder.RecordSnapshot(time.Now(), snapshot); err != nil {
			log.Printf("agent: equity mirror write failed: %v", err)
		}
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
