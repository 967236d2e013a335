// Package contracts wraps the deployed contracts the market talks to in typed
// Go methods. Amounts cross this boundary as wei; reads are converted into
// domain types.
package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/buzzpool/internal/chain"
)

// Token is an ERC20 token.
type Token struct {
	c *chain.Contract
}

// NewToken binds the token at address.
func NewToken(client *chain.Client, address common.Address) (*Token, error) {
	c, err := client.Bind(address, chain.ERC20ABI)
	if err != nil {
		return nil, fmt.Errorf("contracts: token: %w", err)
	}
	return &Token{c: c}, nil
}

// Address returns the token contract address.
func (t *Token) Address() common.Address { return t.c.Address() }

// BalanceOf returns owner's balance in wei.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	var out *big.Int
	if err := t.c.Call(ctx, &out, "balanceOf", owner); err != nil {
		return nil, err
	}
	return out, nil
}

// Allowance returns how much spender may move on behalf of owner.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	if err := t.c.Call(ctx, &out, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return out, nil
}

// Approve sets spender's allowance to amount and waits for inclusion.
func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	return t.c.TransactAndWait(ctx, nil, "approve", spender, amount)
}

// EnsureAllowance approves exactly amount when the current allowance of owner
// for spender is below it. It reports whether an approve was sent.
func (t *Token) EnsureAllowance(ctx context.Context, owner, spender common.Address, amount *big.Int) (bool, error) {
	current, err := t.Allowance(ctx, owner, spender)
	if err != nil {
		return false, err
	}
	if current.Cmp(amount) >= 0 {
		return false, nil
	}
	if _, err := t.Approve(ctx, spender, amount); err != nil {
		return false, err
	}
	return true, nil
}
