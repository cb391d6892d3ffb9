// Package contractclient wraps a single on-chain contract (address +
// ABI) bound to one ethclient connection, exposing typed Call (eth_call)
// and Send (signed transaction) operations. It mirrors the teacher
// repo's pkg/contractclient usage in blackhole.go: every AMM, token and
// position-manager interaction goes through a ContractClient obtained
// from a map keyed by contract address.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// SendMode selects how Send estimates gas and waits. Standard is the
// only mode this core needs; it exists so callers read like the
// teacher's `types.Standard` call sites.
type SendMode int

// Standard is the default send mode: automatic gas estimation, no
// forced gas price override.
const Standard SendMode = 0

// TxReceipt is the normalized receipt returned to callers. Numeric
// fields are kept as strings so they round-trip through ParseReceipt's
// JSON event dump exactly the way the teacher's pkg/types.TxReceipt
// does.
type TxReceipt struct {
	TxHash            common.Hash
	Status            uint64
	BlockNumber       uint64
	GasUsed           string
	EffectiveGasPrice string
	Logs              []*types.Log
}

// ContractClient is the interface every call site in this module
// programs against, so it can be swapped for a mock in tests.
type ContractClient interface {
	ContractAddress() common.Address
	Abi() abi.ABI
	Call(from *common.Address, method string, args ...any) ([]any, error)
	Send(mode SendMode, gasLimit *uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...any) (common.Hash, error)
	ParseReceipt(receipt *TxReceipt) (string, error)
	TransactionData(txHash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (map[string]any, error)
}

type client struct {
	eth     *ethclient.Client
	address common.Address
	abi     abi.ABI
	chainID *big.Int
}

// NewContractClient binds address+abi to an ethclient connection.
// chainID is required for EIP-155 signing in Send.
func NewContractClient(eth *ethclient.Client, address common.Address, contractABI abi.ABI, chainID *big.Int) ContractClient {
	return &client{eth: eth, address: address, abi: contractABI, chainID: chainID}
}

func (c *client) ContractAddress() common.Address { return c.address }

func (c *client) Abi() abi.ABI { return c.abi }

// Call performs a read-only eth_call and unpacks the result into a
// slice of Go values in ABI output order.
func (c *client) Call(from *common.Address, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: data}
	if from != nil {
		msg.From = *from
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	result, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return result, nil
}

// Send signs and submits a transaction calling method with args.
// gasLimit, if nil, is estimated automatically.
func (c *client) Send(_ SendMode, gasLimit *uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...any) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sender := *from
	nonce, err := c.eth.PendingNonceAt(ctx, sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}

	gas := uint64(0)
	if gasLimit != nil {
		gas = *gasLimit
	} else {
		est, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: sender, To: &c.address, Data: data})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas %s: %w", method, err)
		}
		gas = est + est/5 // 20% headroom, matching common bot practice
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signer := types.NewEIP155Signer(c.chainID)
	signedTx, err := types.SignTx(tx, signer, pk)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}

	return signedTx.Hash(), nil
}

// ParseReceipt decodes every log in receipt against this contract's ABI
// and returns a JSON array of {EventName, Parameter} objects, mirroring
// the teacher's event-to-JSON convention consumed by MintNftTokenId.
func (c *client) ParseReceipt(receipt *TxReceipt) (string, error) {
	type decodedEvent struct {
		EventName string         `json:"EventName"`
		Parameter map[string]any `json:"Parameter"`
	}

	var events []decodedEvent
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		ev, err := c.abi.EventByID(log.Topics[0])
		if err != nil {
			continue // not one of this contract's events
		}

		params := make(map[string]any)
		if err := c.abi.UnpackIntoMap(params, ev.Name, log.Data); err != nil {
			continue
		}
		// Indexed arguments are not in log.Data; decode them from Topics.
		indexedArgs := abi.Arguments{}
		for _, arg := range ev.Inputs {
			if arg.Indexed {
				indexedArgs = append(indexedArgs, arg)
			}
		}
		if len(indexedArgs) > 0 && len(log.Topics) > 1 {
			if err := abi.ParseTopicsIntoMap(params, indexedArgs, log.Topics[1:]); err != nil {
				continue
			}
		}

		events = append(events, decodedEvent{EventName: ev.Name, Parameter: params})
	}

	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(out), nil
}

// TransactionData fetches the raw input data of a mined transaction.
func (c *client) TransactionData(txHash common.Hash) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tx, _, err := c.eth.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", txHash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodeTransaction decodes call input data against this contract's ABI.
func (c *client) DecodeTransaction(data []byte) (map[string]any, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("tx data too short to contain a method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("lookup method selector: %w", err)
	}

	args := make(map[string]any)
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack %s args: %w", method.Name, err)
	}
	args["__method"] = method.Name
	return args, nil
}

// retryingClient wraps a ContractClient so every Call (an idempotent
// read) runs through a bounded-retry policy; embedding forwards Send,
// ParseReceipt and the other write/decode operations unchanged, since
// only reads are safe to retry blindly.
type retryingClient struct {
	ContractClient
	retry func(op func() error) error
}

// WithRetry wraps client so every Call attempt goes through retry —
// typically supervisor.WithRetry bound to a fixed retry budget and the
// Connection Supervisor's rotate callback — satisfying the RPC Call
// Wrapper's bounded-retry-for-idempotent-reads requirement (spec
// §4.2) for every read call site at once. A nil retry returns client
// unwrapped.
func WithRetry(client ContractClient, retry func(op func() error) error) ContractClient {
	if retry == nil {
		return client
	}
	return &retryingClient{ContractClient: client, retry: retry}
}

func (c *retryingClient) Call(from *common.Address, method string, args ...any) ([]any, error) {
	var result []any
	err := c.retry(func() error {
		var callErr error
		result, callErr = c.ContractClient.Call(from, method, args...)
		return callErr
	})
	return result, err
}

// SignerFor builds a *bind.TransactOpts for pk bound to chainID, for
// call sites (multicall assembly) that need bind-style transaction
// options rather than raw Send.
func SignerFor(pk *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	return opts, nil
}

// AddressFromKey derives the wallet address controlled by pk.
func AddressFromKey(pk *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(pk.PublicKey)
}
