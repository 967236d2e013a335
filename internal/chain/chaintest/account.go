package chaintest

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/buzzpool/internal/crypto"
)

// NewSigner returns a signer for a fresh random account.
func NewSigner(t testing.TB) *crypto.TxSigner {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("chaintest: generate key: %v", err)
	}
	return crypto.NewTxSigner(pk)
}
