package clpagent

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clpagent/internal/marketdata"
)

// strategyLog emits leveled, field-structured diagnostics alongside the
// plain log.Printf trace below, for the control loop's major state
// transitions (block number, phase, tick).
var strategyLog = zerolog.New(os.Stderr).With().Timestamp().Str("component", "strategy").Logger()

// StateStore is the subset of *statestore.Store the control loop needs.
// Expressed as an interface (rather than importing internal/statestore
// directly) because that package imports this one for PersistedState,
// and root-package code cannot import back into it.
type StateStore interface {
	Load() PersistedState
	Save(tokenID string) error
}

const (
	minInterval                 = 3 * time.Second
	defaultCircuitBreakerFactor = 3.0
	atrCacheTTL                 = 5 * time.Minute
	bufferFactorMin             = 0.1
	bufferFactorMax             = 0.8
)

// EquityComputer values the agent's wallet + position into one USD
// figure for the hard equity stop (spec §4.7 step 4).
type EquityComputer interface {
	Equity() (EquitySnapshot, error)
}

// PositionReader re-reads an on-chain position's current liquidity and
// range, used after a tokenId is loaded from the state store.
type PositionReader interface {
	ReadPosition(tokenID *big.Int) (*Position, error)
}

// Notifier sends an operator alert. A no-op implementation is used
// when email credentials are absent (spec §6).
type Notifier interface {
	Alert(subject, body string)
}

// AuditLogger appends one row to the CSV audit log (spec §6).
type AuditLogger interface {
	Log(entryType, details string, block uint64, price float64, tick int32)
}

// StrategyConfig carries every tunable named in spec §4.7/§9.
type StrategyConfig struct {
	HardStopLossThresholdUsd float64
	CircuitBreakerFactor     float64
	BaseBufferFactor         float64
	AtrBufferScaling         float64
	AtrSafetyFactor          float64
}

// loopContext is the single mutable run-state the control loop
// carries across block events: the single-flight latch, the SAFE-mode
// latch, the last run timestamp, and the 5-minute ATR cache. Modeled
// as one struct (spec §9 design note) rather than scattered package
// globals.
type loopContext struct {
	mu            sync.Mutex
	isProcessing  bool
	mode          OperatingMode
	lastRunTime   time.Time
	cachedATR     float64
	lastATRUpdate time.Time
}

// Strategy is the Strategy Control Loop (spec §4.7): one block handler
// wired to the Agent, the rebalance pipeline, and the ambient
// reporting surfaces.
type Strategy struct {
	agent    *Agent
	pool     PoolReader
	pipeline *RebalancePipeline
	equity   EquityComputer
	position PositionReader
	store       StateStore
	notifier    Notifier
	audit       AuditLogger
	scanOrphans func() (string, error)
	cfg         StrategyConfig

	loop loopContext
}

// NewStrategy wires a Strategy control loop. scanOrphans may be nil,
// in which case an externally-closed position always resolves straight
// to "0" (no crash-recovery reconciliation attempted).
func NewStrategy(
	agent *Agent,
	pool PoolReader,
	pipeline *RebalancePipeline,
	equity EquityComputer,
	position PositionReader,
	store StateStore,
	notifier Notifier,
	audit AuditLogger,
	scanOrphans func() (string, error),
	cfg StrategyConfig,
) *Strategy {
	if cfg.CircuitBreakerFactor == 0 {
		cfg.CircuitBreakerFactor = defaultCircuitBreakerFactor
	}
	return &Strategy{
		agent: agent, pool: pool, pipeline: pipeline, equity: equity,
		position: position, store: store, notifier: notifier, audit: audit,
		scanOrphans: scanOrphans, cfg: cfg,
	}
}

// OnBlock handles one new-block event (spec §4.7). It is safe to call
// concurrently: the single-flight latch and minimum interval guard
// drop overlapping or too-frequent invocations.
func (s *Strategy) OnBlock(block uint64) {
	s.loop.mu.Lock()
	if s.loop.isProcessing {
		s.loop.mu.Unlock()
		return
	}
	if !s.loop.lastRunTime.IsZero() && time.Since(s.loop.lastRunTime) < minInterval {
		s.loop.mu.Unlock()
		return
	}
	s.loop.isProcessing = true
	s.loop.mu.Unlock()

	defer func() {
		s.loop.mu.Lock()
		s.loop.isProcessing = false
		s.loop.lastRunTime = time.Now()
		s.loop.mu.Unlock()
	}()

	s.handleBlock(block)
}

func (s *Strategy) handleBlock(block uint64) {
	s.loop.mu.Lock()
	mode := s.loop.mode
	s.loop.mu.Unlock()

	if mode == ModeSafe {
		if block%100 == 0 {
			log.Printf("strategy: SAFE mode active at block %d", block)
			strategyLog.Info().Uint64("block", block).Str("phase", "safe_mode").Msg("observation-only")
		}
		return
	}

	state := s.store.Load()

	snapshot, err := s.pool.Snapshot()
	if err != nil {
		log.Printf("strategy: snapshot read failed at block %d: %v", block, err)
		return
	}

	equitySnapshot, err := s.equity.Equity()
	if err != nil {
		log.Printf("strategy: equity read failed at block %d: %v", block, err)
		return
	}
	totalUsd, _ := equitySnapshot.TotalUsd.Float64()

	if totalUsd < s.cfg.HardStopLossThresholdUsd {
		s.hardEquityStop(block, state, totalUsd)
		return
	}

	if !state.HasPosition() {
		s.runPipeline(block, "0")
		return
	}

	s.manageExistingPosition(block, state, snapshot)
}

// hardEquityStop implements spec §4.7 step 4: if there is no position,
// it latches SAFE directly; if there is one, it liquidates first.
func (s *Strategy) hardEquityStop(block uint64, state PersistedState, totalUsd float64) {
	strategyLog.Warn().Uint64("block", block).Str("phase", "hard_equity_stop").Float64("totalUsd", totalUsd).Msg("hard equity stop triggered")

	if !state.HasPosition() {
		s.latchSafe()
		s.alertAndLog(block, "STOP_LOSS", fmt.Sprintf("hard equity stop with no position, totalUsd=%.2f", totalUsd))
		return
	}

	tokenID, _ := new(big.Int).SetString(state.TokenID, 10)
	if _, _, err := s.agent.AtomicExit(tokenID); err != nil {
		log.Printf("strategy: hard stop exit failed at block %d: %v", block, err)
	}
	if err := s.agent.SweepToStable(); err != nil {
		log.Printf("strategy: hard stop sweep failed at block %d: %v", block, err)
	}
	if err := s.store.Save("0"); err != nil {
		log.Printf("strategy: hard stop state save failed at block %d: %v", block, err)
	}
	s.latchSafe()
	s.alertAndLog(block, "STOP_LOSS", fmt.Sprintf("hard equity stop, exited position, totalUsd=%.2f", totalUsd))
}

func (s *Strategy) latchSafe() {
	s.loop.mu.Lock()
	s.loop.mode = ModeSafe
	s.loop.mu.Unlock()
}

func (s *Strategy) runPipeline(block uint64, oldTokenID string) {
	outcome, _, err := s.pipeline.Run(oldTokenID)
	if err != nil {
		// Pipeline abort is logged but does not latch SAFE: the loop
		// retries on future blocks once conditions stabilize.
		log.Printf("strategy: rebalance aborted at block %d: %v", block, err)
		s.alertAndLog(block, "ERROR", fmt.Sprintf("rebalance aborted: %v", err))
		return
	}

	if err := s.store.Save(outcome.NewTokenID); err != nil {
		log.Printf("strategy: failed to persist new tokenId %s at block %d: %v", outcome.NewTokenID, block, err)
	}

	price, _ := outcome.PriceUsdPerWeth.Float64()
	entryType := "REBALANCE"
	if oldTokenID == "0" {
		entryType = "ENTRY"
	}
	details := fmt.Sprintf("newTokenId=%s range=[%d,%d]", outcome.NewTokenID, outcome.NewRange.TickLower, outcome.NewRange.TickUpper)
	if s.audit != nil {
		s.audit.Log(entryType, details, block, price, outcome.NewRange.TickLower)
	}
	if s.notifier != nil {
		s.notifier.Alert(fmt.Sprintf("[clpagent] %s", entryType), details)
	}

	strategyLog.Info().Uint64("block", block).Str("phase", entryType).Int32("tickLower", outcome.NewRange.TickLower).
		Int32("tickUpper", outcome.NewRange.TickUpper).Str("tokenId", outcome.NewTokenID).Msg("position entered")
}

func (s *Strategy) manageExistingPosition(block uint64, state PersistedState, snapshot *PoolSnapshot) {
	tokenID, ok := new(big.Int).SetString(state.TokenID, 10)
	if !ok {
		log.Printf("strategy: malformed tokenId %q at block %d, treating as STATE_CORRUPT", state.TokenID, block)
		_ = s.store.Save("0")
		return
	}

	position, err := s.position.ReadPosition(tokenID)
	if err != nil {
		log.Printf("strategy: position read failed at block %d: %v", block, err)
		return
	}

	if position.Liquidity == nil || position.Liquidity.Sign() == 0 {
		// Externally closed: attempt an orphan scan before defaulting to
		// "0" (spec §4.3/§4.7 step 6/§8 crash-recovery invariant), never
		// latch SAFE either way.
		log.Printf("strategy: position %s externally closed at block %d", state.TokenID, block)
		newTokenID := "0"
		if s.scanOrphans != nil {
			if found, err := s.scanOrphans(); err != nil {
				log.Printf("strategy: orphan scan failed at block %d: %v", block, err)
			} else if found != "0" {
				newTokenID = found
				log.Printf("strategy: orphan scan adopted tokenId %s at block %d", found, block)
			}
		}
		if err := s.store.Save(newTokenID); err != nil {
			log.Printf("strategy: failed to persist state at block %d: %v", block, err)
		}
		return
	}

	positionWidth := position.Width()
	center := position.Center()
	distance := int32(abs32(int64(snapshot.Tick) - int64(center)))

	if float64(distance) > float64(positionWidth)*s.cfg.CircuitBreakerFactor {
		s.circuitBreaker(block, tokenID, positionWidth, distance)
		return
	}

	bufferFactor := s.refreshBufferFactor(snapshot)
	bufferTicks := int32(float64(positionWidth) * bufferFactor)

	if snapshot.Tick < position.TickLower-bufferTicks || snapshot.Tick > position.TickUpper+bufferTicks {
		s.runPipeline(block, state.TokenID)
	}
}

// circuitBreaker implements spec §4.7 step 6's circuit breaker: exit
// and sweep but do NOT latch SAFE, so the loop re-enters on the very
// next block once price has stabilized.
func (s *Strategy) circuitBreaker(block uint64, tokenID *big.Int, width, distance int32) {
	strategyLog.Warn().Uint64("block", block).Str("phase", "circuit_breaker").Int32("distance", distance).Int32("width", width).Msg("circuit breaker tripped")

	if _, _, err := s.agent.AtomicExit(tokenID); err != nil {
		log.Printf("strategy: circuit breaker exit failed at block %d: %v", block, err)
	}
	if err := s.agent.SweepToStable(); err != nil {
		log.Printf("strategy: circuit breaker sweep failed at block %d: %v", block, err)
	}
	if err := s.store.Save("0"); err != nil {
		log.Printf("strategy: circuit breaker state save failed at block %d: %v", block, err)
	}
	s.alertAndLog(block, "ERROR", fmt.Sprintf("%v: distance=%d width=%d", ErrCircuitBreaker, distance, width))
}

// refreshBufferFactor recomputes the dynamic hysteresis buffer,
// refreshing the cached ATR at most every 5 minutes (spec §4.7 step 6).
func (s *Strategy) refreshBufferFactor(snapshot *PoolSnapshot) float64 {
	s.loop.mu.Lock()
	defer s.loop.mu.Unlock()

	if time.Since(s.loop.lastATRUpdate) > atrCacheTTL {
		if atr, err := s.fetchATR(); err == nil {
			s.loop.cachedATR = atr
		}
		s.loop.lastATRUpdate = time.Now()
	}

	price, _ := snapshot.Price0In1().Float64()
	if price == 0 {
		price = 1
	}
	volPercent := s.loop.cachedATR / price * 100
	bufferFactor := s.cfg.BaseBufferFactor + volPercent*s.cfg.AtrBufferScaling
	return clampFloat(bufferFactor, bufferFactorMin, bufferFactorMax)
}

// fetchATR refreshes the ATR figure through the same market data
// client the rebalance pipeline uses, at the fixed "15m" granularity
// (spec §4.4).
func (s *Strategy) fetchATR() (float64, error) {
	if s.pipeline == nil || s.pipeline.market == nil {
		return 0, fmt.Errorf("no market data client configured")
	}
	candles, err := s.pipeline.market.Candles(marketGranularity, candleLimit)
	if err != nil {
		return 0, err
	}
	return marketdata.ATR(candles, atrPeriod)
}

func (s *Strategy) alertAndLog(block uint64, entryType, details string) {
	if s.audit != nil {
		s.audit.Log(entryType, details, block, 0, 0)
	}
	if s.notifier != nil && (entryType == "STOP_LOSS" || entryType == "ERROR" || entryType == "ENTRY") {
		s.notifier.Alert(fmt.Sprintf("[clpagent] %s", entryType), details)
	}
}

func abs32(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
