package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/buzzpool/internal/chain"
)

// Converter swaps USDe and BUZZ one to one. The caller must have approved the
// source token for the converter's address first.
type Converter struct {
	c *chain.Contract
}

// NewConverter binds the conversion contract at address.
func NewConverter(client *chain.Client, address common.Address) (*Converter, error) {
	c, err := client.Bind(address, chain.ConversionABI)
	if err != nil {
		return nil, fmt.Errorf("contracts: converter: %w", err)
	}
	return &Converter{c: c}, nil
}

// Address returns the conversion contract address.
func (v *Converter) Address() common.Address { return v.c.Address() }

// USDeToBuzz swaps amount wei of USDe for BUZZ and waits for inclusion.
func (v *Converter) USDeToBuzz(ctx context.Context, amount *big.Int) (*types.Receipt, error) {
	return v.c.TransactAndWait(ctx, nil, "convertUSDetoBuzz", amount)
}

// BuzzToUSDe swaps amount wei of BUZZ back to USDe and waits for inclusion.
func (v *Converter) BuzzToUSDe(ctx context.Context, amount *big.Int) (*types.Receipt, error) {
	return v.c.TransactAndWait(ctx, nil, "convertBuzztoUSDe", amount)
}
