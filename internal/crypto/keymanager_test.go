package crypto

import (
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyHex(t *testing.T) string {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(ethcrypto.FromECDSA(pk))
}

func TestEncryptDecryptKey(t *testing.T) {
	keyHex := newKeyHex(t)

	blob, err := EncryptKey("0x"+keyHex, "hunter2")
	require.NoError(t, err)

	pk, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, hex.EncodeToString(ethcrypto.FromECDSA(pk)))

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptKeyRejectsEmptyPassword(t *testing.T) {
	_, err := EncryptKey(newKeyHex(t), "")
	assert.Error(t, err)
}

func TestLoadKeyPrefersRaw(t *testing.T) {
	keyHex := newKeyHex(t)
	pk, err := LoadKey(KeyConfig{RawPrivateKey: keyHex, EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, keyHex, hex.EncodeToString(ethcrypto.FromECDSA(pk)))
}

func TestLoadKeyFromFile(t *testing.T) {
	keyHex := newKeyHex(t)
	blob, err := EncryptKey(keyHex, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	signer, err := LoadSigner(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)

	want, err := ethcrypto.HexToECDSA(keyHex)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), signer.Address())
}

func TestLoadKeyNothingConfigured(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	assert.Error(t, err)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "zz"})
	assert.Error(t, err)
}

func TestSignTxRecoversSender(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	s := NewTxSigner(pk)

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	chainID := big.NewInt(52085143)
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(0)})

	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}
