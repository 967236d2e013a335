package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/buzzpool/internal/chain"
)

// NFT is the participation token contract.
type NFT struct {
	c *chain.Contract
}

// NewNFT binds the NFT contract at address.
func NewNFT(client *chain.Client, address common.Address) (*NFT, error) {
	c, err := client.Bind(address, chain.NFTABI)
	if err != nil {
		return nil, fmt.Errorf("contracts: nft: %w", err)
	}
	return &NFT{c: c}, nil
}

// BalanceOf returns how many NFTs owner holds.
func (n *NFT) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out *big.Int
	if err := n.c.Call(ctx, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return out, nil
}

// Mint mints one NFT with tokenURI to the recipient.
func (n *NFT) Mint(ctx context.Context, to common.Address, tokenURI string) (*types.Receipt, error) {
	return n.c.TransactAndWait(ctx, nil, "mintNFT", to, tokenURI)
}
