// Package configs loads the static YAML configuration for the agent
// (contract addresses, strategy tunables, market data providers),
// following the teacher's LoadConfig/os.ReadFile/yaml.Unmarshal idiom.
// Secrets (RPC endpoints, private key material, alert credentials) are
// read from the environment in cmd/, never from this file.
package configs

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"clpagent"
)

// Config is the entire static configuration from config.yml.
type Config struct {
	Network  NetworkYAMLData  `yaml:"network"`
	Strategy StrategyYAMLData `yaml:"strategy"`
	Market   MarketYAMLData   `yaml:"market"`
}

// NetworkYAMLData names the fixed contract surface for one chain/pool
// (spec §6): addresses, ABI paths, token metadata and pool mechanics.
type NetworkYAMLData struct {
	ChainID         int64  `yaml:"chainId"`
	Pool            string `yaml:"pool"`
	PoolABI         string `yaml:"poolAbi"`
	PositionManager string `yaml:"positionManager"`
	PositionABI     string `yaml:"positionManagerAbi"`
	Router          string `yaml:"router"`
	RouterABI       string `yaml:"routerAbi"`
	Quoter          string `yaml:"quoter"`
	QuoterABI       string `yaml:"quoterAbi"`
	Weth            string `yaml:"weth"`
	WethDecimals    uint8  `yaml:"wethDecimals"`
	Usdc            string `yaml:"usdc"`
	UsdcDecimals    uint8  `yaml:"usdcDecimals"`
	ErcABI          string `yaml:"ercAbi"`
	TickSpacing     int32  `yaml:"tickSpacing"`
	SlippageBps     int    `yaml:"slippageBps"`
	DustWethWei     string `yaml:"dustWethWei"`
	DustUsdcWei     string `yaml:"dustUsdcWei"`
}

// StrategyYAMLData tunes the Strategy Control Loop (spec §4.7) and the
// rebalance pipeline's range sizing (spec §4.6).
type StrategyYAMLData struct {
	HardStopLossThresholdUsd float64 `yaml:"hardStopLossThresholdUsd"`
	CircuitBreakerFactor     float64 `yaml:"circuitBreakerFactor"`
	BaseBufferFactor         float64 `yaml:"baseBufferFactor"`
	AtrBufferScaling         float64 `yaml:"atrBufferScaling"`
	AtrSafetyFactor          float64 `yaml:"atrSafetyFactor"`
}

// MarketYAMLData selects which Market Data Client providers to chain
// and in what order (spec §4.4).
type MarketYAMLData struct {
	Product   string   `yaml:"product"`
	Providers []string `yaml:"providers"`
}

// LoadConfig reads and parses path into a Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &config, nil
}

// ToStrategyConfig converts the YAML strategy section into
// clpagent.StrategyConfig.
func (c *Config) ToStrategyConfig() clpagent.StrategyConfig {
	return clpagent.StrategyConfig{
		HardStopLossThresholdUsd: c.Strategy.HardStopLossThresholdUsd,
		CircuitBreakerFactor:     c.Strategy.CircuitBreakerFactor,
		BaseBufferFactor:         c.Strategy.BaseBufferFactor,
		AtrBufferScaling:         c.Strategy.AtrBufferScaling,
		AtrSafetyFactor:          c.Strategy.AtrSafetyFactor,
	}
}

// DustWeth parses the configured WETH dust threshold, in wei.
func (n *NetworkYAMLData) DustWeth() (*big.Int, error) {
	return parseWei(n.DustWethWei)
}

// DustUsdc parses the configured USDC dust threshold, in its smallest unit.
func (n *NetworkYAMLData) DustUsdc() (*big.Int, error) {
	return parseWei(n.DustUsdcWei)
}

func parseWei(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse wei amount %q", s)
	}
	return v, nil
}
