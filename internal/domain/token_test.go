package domain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("1.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("1.5")))

	d, err = ParseAmount("0.000000000000000001")
	require.NoError(t, err)
	wei, err := ToWei(d, TokenDecimals)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wei.Int64())
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0", "-1", "0.0000000000000000001"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %q", in)
	}
}

func TestFromWei(t *testing.T) {
	v, ok := new(big.Int).SetString("2500000000000000000", 10)
	require.True(t, ok)
	assert.True(t, FromWei(v, TokenDecimals).Equal(decimal.RequireFromString("2.5")))
	assert.True(t, FromWei(nil, TokenDecimals).IsZero())
}
