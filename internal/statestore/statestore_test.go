package statestore

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clpagent"
)

func TestLoadMissingFileReturnsNoPosition(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, clpagent.NoPosition, s.Load())
}

func TestLoadMalformedFileReturnsNoPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := New(path)
	assert.Equal(t, clpagent.NoPosition, s.Load())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)

	require.NoError(t, s.Save("12345"))
	loaded := s.Load()

	assert.Equal(t, "12345", loaded.TokenID)
	assert.True(t, loaded.LastCheck > 0)
	assert.True(t, loaded.HasPosition())
}

type fakeReader struct {
	balance    *big.Int
	tokenID    *big.Int
	liquidity  *big.Int
	balanceErr error
}

func (f *fakeReader) BalanceOf(common.Address) (*big.Int, error) { return f.balance, f.balanceErr }
func (f *fakeReader) TokenOfOwnerByIndex(common.Address, *big.Int) (*big.Int, error) {
	return f.tokenID, nil
}
func (f *fakeReader) PositionLiquidity(*big.Int) (*big.Int, error) { return f.liquidity, nil }

func TestScanOrphansNoPositions(t *testing.T) {
	r := &fakeReader{balance: big.NewInt(0)}
	tokenID, err := ScanOrphans(r, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "0", tokenID)
}

func TestScanOrphansAdoptsHighestIndexedLiveNFT(t *testing.T) {
	r := &fakeReader{balance: big.NewInt(2), tokenID: big.NewInt(777), liquidity: big.NewInt(500)}
	tokenID, err := ScanOrphans(r, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "777", tokenID)
}

func TestScanOrphansIgnoresDeadPosition(t *testing.T) {
	r := &fakeReader{balance: big.NewInt(1), tokenID: big.NewInt(42), liquidity: big.NewInt(0)}
	tokenID, err := ScanOrphans(r, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "0", tokenID)
}
