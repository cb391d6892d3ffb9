// Package wiring builds the contract-client surface shared by both
// cmd/agent and cmd/exit from one loaded Config, so the two
// entrypoints bind the same addresses and ABIs the same way rather
// than duplicating the setup.
package wiring

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"clpagent"
	"clpagent/configs"
	"clpagent/internal/chainutil"
	"clpagent/internal/contractclient"
)

// BuildClients loads every contract ABI named in conf and binds it to
// eth, returning both the full address-keyed map the Agent needs and
// the pool's client on its own for the Pool reader. Every returned
// client has retry wrapped around it (spec §4.2's RPC Call Wrapper),
// so every read call site gets bounded-retry behavior without binding
// a supervisor reference into Agent/Pool/EquityEngine directly; retry
// may be nil, in which case clients are returned unwrapped.
func BuildClients(eth *ethclient.Client, conf *configs.Config, retry func(op func() error) error) (map[common.Address]contractclient.ContractClient, contractclient.ContractClient, error) {
	chainID := big.NewInt(conf.Network.ChainID)

	poolABI, err := chainutil.LoadABI(conf.Network.PoolABI)
	if err != nil {
		return nil, nil, fmt.Errorf("load pool abi: %w", err)
	}
	pmABI, err := chainutil.LoadABI(conf.Network.PositionABI)
	if err != nil {
		return nil, nil, fmt.Errorf("load position manager abi: %w", err)
	}
	routerABI, err := chainutil.LoadABI(conf.Network.RouterABI)
	if err != nil {
		return nil, nil, fmt.Errorf("load router abi: %w", err)
	}
	quoterABI, err := chainutil.LoadABI(conf.Network.QuoterABI)
	if err != nil {
		return nil, nil, fmt.Errorf("load quoter abi: %w", err)
	}
	ercABI, err := chainutil.LoadABI(conf.Network.ErcABI)
	if err != nil {
		return nil, nil, fmt.Errorf("load erc20 abi: %w", err)
	}

	poolAddr := common.HexToAddress(conf.Network.Pool)
	pmAddr := common.HexToAddress(conf.Network.PositionManager)
	routerAddr := common.HexToAddress(conf.Network.Router)
	quoterAddr := common.HexToAddress(conf.Network.Quoter)
	wethAddr := common.HexToAddress(conf.Network.Weth)
	usdcAddr := common.HexToAddress(conf.Network.Usdc)

	poolClient := contractclient.WithRetry(contractclient.NewContractClient(eth, poolAddr, poolABI, chainID), retry)

	clients := map[common.Address]contractclient.ContractClient{
		poolAddr:   poolClient,
		pmAddr:     contractclient.WithRetry(contractclient.NewContractClient(eth, pmAddr, pmABI, chainID), retry),
		routerAddr: contractclient.WithRetry(contractclient.NewContractClient(eth, routerAddr, routerABI, chainID), retry),
		quoterAddr: contractclient.WithRetry(contractclient.NewContractClient(eth, quoterAddr, quoterABI, chainID), retry),
		wethAddr:   contractclient.WithRetry(contractclient.NewContractClient(eth, wethAddr, ercABI, chainID), retry),
		usdcAddr:   contractclient.WithRetry(contractclient.NewContractClient(eth, usdcAddr, ercABI, chainID), retry),
	}
	return clients, poolClient, nil
}

// TokenRefs builds the WETH/USDC TokenRef pair from the network config.
func TokenRefs(n configs.NetworkYAMLData) (weth, usdc clpagent.TokenRef) {
	weth = clpagent.TokenRef{Address: common.HexToAddress(n.Weth), Decimals: n.WethDecimals, Symbol: "WETH"}
	usdc = clpagent.TokenRef{Address: common.HexToAddress(n.Usdc), Decimals: n.UsdcDecimals, Symbol: "USDC"}
	return weth, usdc
}

// SplitAndTrim splits a comma-separated endpoint list and trims
// whitespace around each entry.
func SplitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
