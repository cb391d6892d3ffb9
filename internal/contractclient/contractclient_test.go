package contractclient

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const erc20ABIJSON = `[
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

func mustParseABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	require.NoError(t, err)
	return parsed
}

// TestDecodeTransaction round-trips an ERC-20 approve call through
// Pack/DecodeTransaction without touching any network, unlike the
// teacher's live-RPC sibling test.
func TestDecodeTransaction(t *testing.T) {
	parsedABI := mustParseABI(t)
	c := &client{address: common.HexToAddress("0x00000000000000000000000000000000000001"), abi: parsedABI, chainID: big.NewInt(1)}

	spender := common.HexToAddress("0x00000000000000000000000000000000000002")
	amount := big.NewInt(1_000_000)
	packed, err := parsedABI.Pack("approve", spender, amount)
	require.NoError(t, err)

	decoded, err := c.DecodeTransaction(packed)
	require.NoError(t, err)
	assert.Equal(t, "approve", decoded["__method"])
	assert.Equal(t, amount, decoded["amount"])
	assert.Equal(t, spender, decoded["spender"])
}

func TestDecodeTransactionTooShort(t *testing.T) {
	c := &client{abi: mustParseABI(t)}
	_, err := c.DecodeTransaction([]byte{0x01, 0x02})
	assert.Error(t, err)
}

// fakeCallClient fails Call failures times before succeeding, to
// exercise WithRetry without a live chain connection.
type fakeCallClient struct {
	ContractClient
	calls    int
	failures int
}

func (f *fakeCallClient) Call(from *common.Address, method string, args ...any) ([]any, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient failure")
	}
	return []any{"ok"}, nil
}

func TestWithRetryRetriesUntilSuccess(t *testing.T) {
	fake := &fakeCallClient{failures: 2}
	retry := func(op func() error) error {
		var err error
		for attempt := 0; attempt < 5; attempt++ {
			if err = op(); err == nil {
				return nil
			}
		}
		return err
	}

	result, err := WithRetry(fake, retry).Call(nil, "balanceOf")

	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, result)
	assert.Equal(t, 3, fake.calls)
}

func TestWithRetryExhaustsAndSurfacesLastError(t *testing.T) {
	fake := &fakeCallClient{failures: 10}
	retry := func(op func() error) error {
		var err error
		for attempt := 0; attempt < 3; attempt++ {
			if err = op(); err == nil {
				return nil
			}
		}
		return err
	}

	_, err := WithRetry(fake, retry).Call(nil, "balanceOf")

	assert.Error(t, err)
	assert.Equal(t, 3, fake.calls)
}

func TestWithRetryNilRetryReturnsClientUnwrapped(t *testing.T) {
	fake := &fakeCallClient{}
	wrapped := WithRetry(fake, nil)
	_, isRetrying := wrapped.(*retryingClient)
	assert.False(t, isRetrying)
}
