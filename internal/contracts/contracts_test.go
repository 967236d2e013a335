package contracts

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buzzpool/internal/chain"
	"github.com/alanyoungcy/buzzpool/internal/chain/chaintest"
	"github.com/alanyoungcy/buzzpool/internal/domain"
)

type fixture struct {
	sim    *chaintest.Backend
	client *chain.Client
	buzz   *Token
	usde   *Token
	market *Market
	nft    *NFT
	conv   *Converter
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := chaintest.New(1337)
	client := chain.NewClient(sim, chaintest.NewSigner(t), big.NewInt(1337),
		chain.Options{PollInterval: time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	f := &fixture{sim: sim, client: client}
	var err error
	f.buzz, err = NewToken(client, chaintest.BuzzAddress)
	require.NoError(t, err)
	f.usde, err = NewToken(client, chaintest.USDeAddress)
	require.NoError(t, err)
	f.market, err = NewMarket(client, chaintest.MarketAddress)
	require.NoError(t, err)
	f.nft, err = NewNFT(client, chaintest.NFTAddress)
	require.NoError(t, err)
	f.conv, err = NewConverter(client, chaintest.ConversionAddress)
	require.NoError(t, err)
	return f
}

func TestEnsureAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.client.Account()

	sent, err := f.buzz.EnsureAllowance(ctx, me, f.market.Address(), ether(5))
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = f.buzz.EnsureAllowance(ctx, me, f.market.Address(), ether(3))
	require.NoError(t, err)
	assert.False(t, sent, "existing allowance covers the amount")
	assert.Equal(t, []string{"approve"}, f.sim.Sent())
}

func TestPoolValuesOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	huge := new(big.Int).Lsh(big.NewInt(1), 200)

	f.sim.AddPool(chaintest.Pool{Question: "score", FinalScore: huge})
	f.sim.AddPool(chaintest.Pool{Question: "bets", TotalBets: huge})
	f.sim.AddPool(chaintest.Pool{
		Question: "target",
		Bets:     []chaintest.Bet{{User: f.client.Account(), Amount: ether(1), TargetScore: huge}},
	})

	_, err := f.market.Pool(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "final score")

	_, err = f.market.Pool(ctx, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total bets")

	_, err = f.market.Pool(ctx, 2)
	require.NoError(t, err)
	_, err = f.market.Bets(ctx, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target score")
}

func TestMarketLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.client.Account()
	f.sim.Mint(chaintest.BuzzAddress, me, ether(10))

	deadline := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.market.CreatePool(ctx, domain.CreatePoolParams{
		Name:      "ignored",
		Deadline:  deadline,
		Question:  "Final score?",
		Link:      "https://example.com/match",
		Parameter: "goals",
		Keyword:   "football",
		Type:      2,
	}, big.NewInt(100))
	require.NoError(t, err)

	n, err := f.market.PoolCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)

	_, err = f.buzz.EnsureAllowance(ctx, me, f.market.Address(), ether(4))
	require.NoError(t, err)
	_, err = f.market.PlaceBet(ctx, ether(4), 3, 0)
	require.NoError(t, err)

	p, err := f.market.Pool(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Final score?", p.Question)
	assert.Equal(t, "https://example.com/match", p.URL)
	assert.Equal(t, "football", p.Category)
	assert.Equal(t, domain.PollType(2), p.PollType)
	assert.Equal(t, deadline.Unix(), p.EndTime)
	assert.True(t, p.TotalAmount.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, uint64(1), p.TotalBets)
	assert.False(t, p.Ended)

	_, err = f.market.SetResult(ctx, 0, 3)
	require.NoError(t, err)
	_, err = f.market.ClaimBet(ctx, 0)
	require.NoError(t, err)

	bets, err := f.market.Bets(ctx, 0)
	require.NoError(t, err)
	require.Len(t, bets, 1)
	assert.Equal(t, me.Hex(), bets[0].User)
	assert.Equal(t, int64(3), bets[0].TargetScore)
	assert.True(t, bets[0].Claimed)
	assert.True(t, bets[0].ClaimedAmount.Equal(decimal.NewFromInt(4)))
}

func TestCreatePoolBelowFeeReverts(t *testing.T) {
	f := newFixture(t)
	_, err := f.market.CreatePool(context.Background(), domain.CreatePoolParams{Deadline: time.Now()}, big.NewInt(1))
	assert.ErrorIs(t, err, chain.ErrReverted)
}

func TestBetsOfEmptyPool(t *testing.T) {
	f := newFixture(t)
	f.sim.AddPool(chaintest.Pool{Question: "q"})
	bets, err := f.market.Bets(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestNFTMint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.client.Account()

	_, err := f.nft.Mint(ctx, me, "ipfs://token")
	require.NoError(t, err)

	bal, err := f.nft.BalanceOf(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bal.Int64())
}

func TestConverter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.client.Account()
	f.sim.Mint(chaintest.USDeAddress, me, ether(3))

	_, err := f.usde.EnsureAllowance(ctx, me, f.conv.Address(), ether(2))
	require.NoError(t, err)
	_, err = f.conv.USDeToBuzz(ctx, ether(2))
	require.NoError(t, err)

	usde, err := f.usde.BalanceOf(ctx, me)
	require.NoError(t, err)
	buzz, err := f.buzz.BalanceOf(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, ether(1), usde)
	assert.Equal(t, ether(2), buzz)

	// Without an allowance the swap back reverts.
	_, err = f.conv.BuzzToUSDe(ctx, ether(1))
	assert.ErrorIs(t, err, chain.ErrReverted)
}

func TestNewTokenZeroAddress(t *testing.T) {
	f := newFixture(t)
	_, err := NewToken(f.client, common.Address{})
	assert.Error(t, err)
}
