package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the precision shared by USDe, BUZZ and the pool accounting.
const TokenDecimals = 18

// TokenBalance is the account's holdings of the two fungible tokens.
type TokenBalance struct {
	USDe decimal.Decimal `json:"usde_balance"`
	Buzz decimal.Decimal `json:"buzz_balance"`
}

// FromWei converts a raw on-chain integer amount into token units.
func FromWei(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// ToWei converts token units into the raw on-chain integer. The amount must be
// positive and must not carry more fractional digits than the token has.
func ToWei(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseAmount parses a user-supplied token amount such as "12.5". The
// result is accepted by ToWei at TokenDecimals.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if _, err := ToWei(d, TokenDecimals); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
