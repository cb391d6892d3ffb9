package chainutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clpagent/internal/contractclient"
)

const sampleABI = `[{"type":"function","name":"balanceOf","inputs":[{"name":"a","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

func TestLoadABI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abi.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleABI), 0o600))

	parsed, err := LoadABI(path)
	require.NoError(t, err)
	_, ok := parsed.Methods["balanceOf"]
	assert.True(t, ok)
}

func TestLoadABIFromHardhatArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	artifact := `{"contractName":"Token","abi":` + sampleABI + `,"bytecode":"0x"}`
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o600))

	parsed, err := LoadABIFromHardhatArtifact(path)
	require.NoError(t, err)
	_, ok := parsed.Methods["balanceOf"]
	assert.True(t, ok)
}

func TestHex2Bytes(t *testing.T) {
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, Hex2Bytes("0xdeadbeef"))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, Hex2Bytes("deadbeef"))
	assert.Nil(t, Hex2Bytes("not-hex"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)

	key := []byte("0123456789abcdef0123456789abcdef") // 32 bytes for AES-256
	key = key[:32]

	encrypted, err := Encrypt(key, pk)
	require.NoError(t, err)

	decrypted, err := Decrypt(key, encrypted)
	require.NoError(t, err)
	assert.Equal(t, crypto.FromECDSA(pk), crypto.FromECDSA(decrypted))
}

func TestDecryptBadCiphertext(t *testing.T) {
	key := make([]byte, 32)
	_, err := Decrypt(key, "not-hex-at-all")
	assert.Error(t, err)
}

func TestExtractGasCost(t *testing.T) {
	receipt := &contractclient.TxReceipt{GasUsed: "21000", EffectiveGasPrice: "1000000000"}
	cost, err := ExtractGasCost(receipt)
	require.NoError(t, err)
	assert.Equal(t, "21000000000000", cost.String())
}

func TestExtractGasCostNil(t *testing.T) {
	_, err := ExtractGasCost(nil)
	assert.Error(t, err)
}
