package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TxSigner signs EVM transactions with a single secp256k1 key.
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewTxSigner wraps pk.
func NewTxSigner(pk *ecdsa.PrivateKey) *TxSigner {
	return &TxSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
}

// LoadSigner resolves the key described by cfg and wraps it.
func LoadSigner(cfg KeyConfig) (*TxSigner, error) {
	pk, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewTxSigner(pk), nil
}

// Address returns the account derived from the key.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID with the latest signer rules for that chain.
func (s *TxSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign tx: %w", err)
	}
	return signed, nil
}
