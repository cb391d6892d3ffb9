package clpagent

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"clpagent/internal/contractclient"
)

// TransactionRecord is a single submitted-and-confirmed transaction,
// kept for gas-cost accounting and reporting. Mirrors the teacher's
// TransactionRecord used throughout Mint/Stake/Unstake.
type TransactionRecord struct {
	TxHash    common.Hash
	Operation string
	GasUsed   uint64
	GasPrice  *big.Int
	GasCost   *big.Int
}

// txWaiter is the subset of *txlistener.TxListener the Agent needs;
// expressed as an interface so tests can supply a fake confirmation
// source instead of a live chain connection.
type txWaiter interface {
	WaitForTransaction(txHash common.Hash) (*contractclient.TxReceipt, error)
}

// Agent binds a wallet and the fixed contract surface (spec §6) to one
// live chain connection, and is the receiver for every Action Library
// operation. It plays the role the teacher's Blackhole struct plays:
// a thin dispatcher holding a private key, an address, a tx listener,
// and a map of bound contract clients.
type Agent struct {
	privateKey *ecdsa.PrivateKey
	myAddr     common.Address
	chainID    *big.Int
	tl         txWaiter

	clients map[common.Address]contractclient.ContractClient

	pool              common.Address
	positionManager   common.Address
	router            common.Address
	quoter            common.Address
	weth              TokenRef
	usdc              TokenRef
	tickSpacing       int32
	rebalanceDustWeth *big.Int
	rebalanceDustUsdc *big.Int
	slippageBps       int
}

// NewAgent wires an Agent from its fixed contract clients. clients must
// contain an entry for pool, positionManager, router, quoter,
// weth.Address and usdc.Address.
func NewAgent(
	privateKey *ecdsa.PrivateKey,
	myAddr common.Address,
	chainID *big.Int,
	tl txWaiter,
	clients map[common.Address]contractclient.ContractClient,
	pool, positionManager, router, quoter common.Address,
	weth, usdc TokenRef,
	tickSpacing int32,
	rebalanceDustWeth, rebalanceDustUsdc *big.Int,
	slippageBps int,
) *Agent {
	return &Agent{
		privateKey:        privateKey,
		myAddr:            myAddr,
		chainID:           chainID,
		tl:                tl,
		clients:           clients,
		pool:              pool,
		positionManager:   positionManager,
		router:            router,
		quoter:            quoter,
		weth:              weth,
		usdc:              usdc,
		tickSpacing:       tickSpacing,
		rebalanceDustWeth: rebalanceDustWeth,
		rebalanceDustUsdc: rebalanceDustUsdc,
		slippageBps:       slippageBps,
	}
}

// Rebind swaps the agent's contract client map, used by the Connection
// Supervisor's OnSwitch callback (spec §7) to rebind every bound
// contract to a freshly dialed chain connection after endpoint
// rotation.
func (a *Agent) Rebind(clients map[common.Address]contractclient.ContractClient) {
	a.clients = clients
}

// RebindTxWaiter swaps the agent's transaction confirmation source,
// used alongside Rebind after a Connection Supervisor rotation.
func (a *Agent) RebindTxWaiter(tl txWaiter) {
	a.tl = tl
}

func (a *Agent) client(address common.Address) (contractclient.ContractClient, error) {
	c := a.clients[address]
	if c == nil {
		return nil, fmt.Errorf("no mapped client for %s", address.Hex())
	}
	return c, nil
}

// ensureApproval approves spender for requiredAmount on tokenClient
// only if the current allowance is insufficient, confirming the
// approval transaction before returning. Mirrors the teacher's
// Blackhole.ensureApproval.
func (a *Agent) ensureApproval(tokenClient contractclient.ContractClient, spender common.Address, requiredAmount *big.Int) error {
	result, err := tokenClient.Call(&a.myAddr, "allowance", a.myAddr, spender)
	if err != nil {
		return fmt.Errorf("check allowance: %w", err)
	}

	currentAllowance, ok := result[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected allowance result type")
	}
	if currentAllowance.Cmp(requiredAmount) >= 0 {
		return nil
	}

	txHash, err := tokenClient.Send(contractclient.Standard, nil, &a.myAddr, a.privateKey, "approve", spender, requiredAmount)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if _, err := a.tl.WaitForTransaction(txHash); err != nil {
		return fmt.Errorf("approval confirmation: %w", err)
	}
	return nil
}

// ReadPosition reads tokenID's current on-chain liquidity and tick
// range from the position manager, satisfying the root PositionReader
// interface the control loop depends on.
func (a *Agent) ReadPosition(tokenID *big.Int) (*Position, error) {
	pm, err := a.client(a.positionManager)
	if err != nil {
		return nil, err
	}

	result, err := pm.Call(&a.myAddr, "positions", tokenID)
	if err != nil {
		return nil, fmt.Errorf("read position %s: %w", tokenID, err)
	}

	liquidity, ok := result[7].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected positions() liquidity type")
	}
	tickLower, ok := result[5].(int32)
	if !ok {
		return nil, fmt.Errorf("unexpected positions() tickLower type")
	}
	tickUpper, ok := result[6].(int32)
	if !ok {
		return nil, fmt.Errorf("unexpected positions() tickUpper type")
	}
	tokensOwed0, _ := result[10].(*big.Int)
	tokensOwed1, _ := result[11].(*big.Int)

	return &Position{
		TokenID:     new(big.Int).Set(tokenID),
		TickLower:   tickLower,
		TickUpper:   tickUpper,
		Liquidity:   liquidity,
		TokensOwed0: tokensOwed0,
		TokensOwed1: tokensOwed1,
	}, nil
}

// BalanceOf reports the position-manager NFT balance of owner,
// satisfying statestore.PositionReader for the orphan scan (spec §4.3).
func (a *Agent) BalanceOf(owner common.Address) (*big.Int, error) {
	pm, err := a.client(a.positionManager)
	if err != nil {
		return nil, err
	}
	result, err := pm.Call(&a.myAddr, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("position NFT balanceOf %s: %w", owner.Hex(), err)
	}
	balance, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type")
	}
	return balance, nil
}

// TokenOfOwnerByIndex enumerates owner's position NFTs by index,
// satisfying statestore.PositionReader for the orphan scan.
func (a *Agent) TokenOfOwnerByIndex(owner common.Address, index *big.Int) (*big.Int, error) {
	pm, err := a.client(a.positionManager)
	if err != nil {
		return nil, err
	}
	result, err := pm.Call(&a.myAddr, "tokenOfOwnerByIndex", owner, index)
	if err != nil {
		return nil, fmt.Errorf("tokenOfOwnerByIndex %s[%s]: %w", owner.Hex(), index, err)
	}
	tokenID, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected tokenOfOwnerByIndex result type")
	}
	return tokenID, nil
}

// PositionLiquidity reads tokenID's current on-chain liquidity,
// satisfying statestore.PositionReader for the orphan scan.
func (a *Agent) PositionLiquidity(tokenID *big.Int) (*big.Int, error) {
	position, err := a.ReadPosition(tokenID)
	if err != nil {
		return nil, err
	}
	return position.Liquidity, nil
}

// balanceOf reads an ERC-20 balance for the agent's wallet.
func (a *Agent) balanceOf(token common.Address) (*big.Int, error) {
	tokenClient, err := a.client(token)
	if err != nil {
		return nil, err
	}
	result, err := tokenClient.Call(&a.myAddr, "balanceOf", a.myAddr)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	balance, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type")
	}
	return balance, nil
}
