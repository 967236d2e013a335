package market

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buzzpool/internal/chain"
	"github.com/alanyoungcy/buzzpool/internal/chain/chaintest"
	"github.com/alanyoungcy/buzzpool/internal/contracts"
	"github.com/alanyoungcy/buzzpool/internal/domain"
)

const testChainID = 1337

type toastCall struct {
	kind, id, msg string
}

type fakeToaster struct {
	mu    sync.Mutex
	calls []toastCall
	n     int
}

func (f *fakeToaster) Loading(_ context.Context, msg string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	id := string(rune('a' + f.n))
	f.calls = append(f.calls, toastCall{"loading", id, msg})
	return id
}

func (f *fakeToaster) Success(_ context.Context, id, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toastCall{"success", id, msg})
}

func (f *fakeToaster) Error(_ context.Context, id, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toastCall{"error", id, msg})
}

func (f *fakeToaster) last() toastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type memCache struct {
	snaps map[int64]domain.PoolSnapshot
}

func (m *memCache) Set(_ context.Context, snap domain.PoolSnapshot) error {
	if m.snaps == nil {
		m.snaps = make(map[int64]domain.PoolSnapshot)
	}
	m.snaps[snap.ChainID] = snap
	return nil
}

func (m *memCache) Get(_ context.Context, chainID int64) (domain.PoolSnapshot, error) {
	s, ok := m.snaps[chainID]
	if !ok {
		return domain.PoolSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

type memAudit struct {
	events []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = make(map[string][][]byte)
	}
	b.msgs[channel] = append(b.msgs[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

type brokenStore struct{}

func (brokenStore) UpsertBatch(context.Context, int64, []domain.Pool) error {
	return errors.New("db down")
}

func (brokenStore) GetByID(context.Context, int64, uint64) (domain.Pool, error) {
	return domain.Pool{}, domain.ErrNotFound
}

func (brokenStore) List(context.Context, int64, domain.ListOpts) ([]domain.Pool, error) {
	return nil, nil
}

type fixture struct {
	sim     *chaintest.Backend
	svc     *Service
	toaster *fakeToaster
	cache   *memCache
	audit   *memAudit
	bus     *memBus
	me      common.Address
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := chaintest.New(testChainID)
	signer := chaintest.NewSigner(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := chain.NewClient(sim, signer, big.NewInt(testChainID), chain.Options{PollInterval: time.Millisecond}, logger)

	var c Contracts
	var err error
	c.Buzz, err = contracts.NewToken(client, chaintest.BuzzAddress)
	require.NoError(t, err)
	c.USDe, err = contracts.NewToken(client, chaintest.USDeAddress)
	require.NoError(t, err)
	c.Market, err = contracts.NewMarket(client, chaintest.MarketAddress)
	require.NoError(t, err)
	c.NFT, err = contracts.NewNFT(client, chaintest.NFTAddress)
	require.NoError(t, err)
	c.Converter, err = contracts.NewConverter(client, chaintest.ConversionAddress)
	require.NoError(t, err)

	f := &fixture{
		sim:     sim,
		toaster: &fakeToaster{},
		cache:   &memCache{},
		audit:   &memAudit{},
		bus:     &memBus{},
		me:      signer.Address(),
	}
	f.svc = NewService(f.me, testChainID, c, f.toaster, Hooks{
		Cache: f.cache,
		Audit: f.audit,
		Bus:   f.bus,
	}, Options{}, logger)
	return f
}

func TestRefreshPoolsCollectsUserBets(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	f.sim.AddPool(chaintest.Pool{
		Question: "Who wins?",
		Ended:    true,
		Bets: []chaintest.Bet{
			{User: f.me, Amount: ether(2), TargetScore: big.NewInt(1)},
			{User: other, Amount: ether(5), TargetScore: big.NewInt(2)},
		},
	})
	f.sim.AddPool(chaintest.Pool{Question: "Empty"})

	pools, err := f.svc.RefreshPools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Len(t, pools[0].Bets, 2)
	assert.True(t, pools[0].Bets[1].Status, "bet status copies the pool's ended flag")
	assert.Empty(t, pools[1].Bets)

	snap := f.svc.Snapshot()
	require.Len(t, snap.UserBets, 1)
	assert.Equal(t, f.me.Hex(), snap.UserBets[0].User)
	assert.True(t, snap.UserBets[0].Amount.Equal(decimal.NewFromInt(2)))
	assert.False(t, snap.Loading)

	cached, err := f.cache.Get(context.Background(), testChainID)
	require.NoError(t, err)
	assert.Len(t, cached.Pools, 2)
	assert.NotEmpty(t, f.bus.msgs[domain.ChannelState])
}

func TestRefreshPoolsPartialOnError(t *testing.T) {
	f := newFixture(t)
	f.sim.AddPool(chaintest.Pool{Question: "one"})
	f.sim.AddPool(chaintest.Pool{Question: "two"})
	_, err := f.svc.RefreshPools(context.Background())
	require.NoError(t, err)

	f.sim.AddPool(chaintest.Pool{Question: "three"})
	f.sim.FailCall("getBets", errors.New("rpc timeout"))

	pools, err := f.svc.RefreshPools(context.Background())
	require.Error(t, err)
	assert.Empty(t, pools, "the first getBets call fails")

	snap := f.svc.Snapshot()
	assert.False(t, snap.Loading, "loading is cleared on failure")
	assert.Len(t, snap.Pools, 2, "stored pools are kept")
}

func TestStaleRefreshDoesNotOverwriteNewerState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.Mint(chaintest.BuzzAddress, f.me, ether(10))
	f.sim.AddPool(chaintest.Pool{Question: "q"})

	// A background refresh reads pool 0's bets (none yet) and stalls.
	reached, release := f.sim.HoldCall("getBets")
	defer release()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RefreshPools(ctx)
		done <- err
	}()
	<-reached

	require.NoError(t, f.svc.PlaceBet(ctx, 0, decimal.NewFromInt(2), 3))
	snap := f.svc.Snapshot()
	require.Len(t, snap.UserBets, 1)
	assert.True(t, snap.Loading, "the stalled refresh is still in flight")

	release()
	require.NoError(t, <-done)

	snap = f.svc.Snapshot()
	assert.Len(t, snap.UserBets, 1, "the older read is dropped")
	require.Len(t, snap.Pools, 1)
	assert.Len(t, snap.Pools[0].Bets, 1)
	assert.False(t, snap.Loading)
}

func TestRefreshPoolsStoreFailureIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.svc.hooks.Store = brokenStore{}
	f.sim.AddPool(chaintest.Pool{Question: "q"})

	_, err := f.svc.RefreshPools(context.Background())
	assert.NoError(t, err)
}

func TestRefreshAll(t *testing.T) {
	f := newFixture(t)
	f.sim.Mint(chaintest.BuzzAddress, f.me, ether(7))
	f.sim.Mint(chaintest.USDeAddress, f.me, big.NewInt(5e17))

	require.NoError(t, f.svc.RefreshAll(context.Background()))
	snap := f.svc.Snapshot()
	assert.True(t, snap.Balance.Buzz.Equal(decimal.NewFromInt(7)))
	assert.True(t, snap.Balance.USDe.Equal(decimal.RequireFromString("0.5")))
	assert.False(t, snap.NFTMinted)
}

func TestRefreshTokenBalanceFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.sim.Mint(chaintest.BuzzAddress, f.me, ether(1))
	_, err := f.svc.RefreshTokenBalance(context.Background())
	require.NoError(t, err)

	f.sim.FailCall("balanceOf", errors.New("boom"))
	bal, err := f.svc.RefreshTokenBalance(context.Background())
	require.Error(t, err)
	assert.True(t, bal.Buzz.IsZero())
	assert.True(t, f.svc.Snapshot().Balance.Buzz.Equal(decimal.NewFromInt(1)))
}

func TestSeedFromCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Seed(context.Background()), "cache miss is not an error")

	require.NoError(t, f.cache.Set(context.Background(), domain.PoolSnapshot{
		ChainID: testChainID,
		Pools: []domain.Pool{{
			ID:   0,
			Bets: []domain.Bet{{User: f.me.Hex(), Amount: decimal.NewFromInt(1)}},
		}},
	}))
	require.NoError(t, f.svc.Seed(context.Background()))

	snap := f.svc.Snapshot()
	assert.Len(t, snap.Pools, 1)
	assert.Len(t, snap.UserBets, 1)
}

func TestCreatePool(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreatePool(context.Background(), domain.CreatePoolParams{
		Name:      "display only",
		Deadline:  time.Unix(1_900_000_000, 0),
		Question:  "Score?",
		Link:      "https://example.com",
		Parameter: "points",
		Keyword:   "basketball",
		Type:      1,
	})
	require.NoError(t, err)

	assert.Equal(t, toastCall{"success", "b", "Pool created successfully"}, f.toaster.last())
	snap := f.svc.Snapshot()
	require.Len(t, snap.Pools, 1)
	assert.Equal(t, "basketball", snap.Pools[0].Category)
	assert.Equal(t, []string{"create_pool.succeeded"}, f.audit.events)
}

func TestPlaceBetApprovesOnlyWhenNeeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.Mint(chaintest.BuzzAddress, f.me, ether(10))
	f.sim.AddPool(chaintest.Pool{Question: "q"})

	require.NoError(t, f.svc.PlaceBet(ctx, 0, decimal.NewFromInt(3), 4))
	assert.Equal(t, []string{"approve", "placeBet"}, f.sim.Sent())

	// Leave an allowance larger than the next bet.
	_, err := f.svc.c.Buzz.Approve(ctx, chaintest.MarketAddress, ether(5))
	require.NoError(t, err)
	require.NoError(t, f.svc.PlaceBet(ctx, 0, decimal.RequireFromString("1.5"), 2))
	assert.Equal(t, []string{"approve", "placeBet", "approve", "placeBet"}, f.sim.Sent())

	snap := f.svc.Snapshot()
	require.Len(t, snap.UserBets, 2)
	assert.True(t, snap.Pools[0].TotalAmount.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, "Bet placed successfully", f.toaster.last().msg)
}

func TestPlaceBetFailure(t *testing.T) {
	f := newFixture(t)
	f.sim.AddPool(chaintest.Pool{Question: "q"})

	// No BUZZ balance: placeBet reverts.
	err := f.svc.PlaceBet(context.Background(), 0, decimal.NewFromInt(1), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.ErrorIs(t, err, chain.ErrReverted)
	assert.Equal(t, "Error in placing bet", f.toaster.last().msg)
	assert.Equal(t, []string{"place_bet.failed"}, f.audit.events)
}

func TestPlaceBetRejectsBadAmount(t *testing.T) {
	f := newFixture(t)
	err := f.svc.PlaceBet(context.Background(), 0, decimal.Zero, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Empty(t, f.sim.Sent())
	assert.Equal(t, "error", f.toaster.last().kind)
}

func TestSetResultAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.Mint(chaintest.BuzzAddress, f.me, ether(2))
	f.sim.AddPool(chaintest.Pool{Question: "q"})
	require.NoError(t, f.svc.PlaceBet(ctx, 0, decimal.NewFromInt(2), 7))

	require.Error(t, f.svc.ClaimBet(ctx, 0), "cannot claim before the result is set")
	assert.Equal(t, "Error in claiming bet", f.toaster.last().msg)

	require.NoError(t, f.svc.SetResult(ctx, 0, 7))
	assert.Equal(t, "Result set successfully", f.toaster.last().msg)
	assert.True(t, f.svc.Snapshot().Pools[0].Ended)

	require.NoError(t, f.svc.ClaimBet(ctx, 0))
	snap := f.svc.Snapshot()
	require.Len(t, snap.UserBets, 1)
	assert.True(t, snap.UserBets[0].Claimed)
	assert.True(t, snap.UserBets[0].Status)
}

func TestMintNFT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.MintNFT(ctx))
	assert.True(t, f.svc.Snapshot().NFTMinted)
	assert.Equal(t, int64(1), f.sim.NFTBalance(f.me))

	err := f.svc.MintNFT(ctx)
	assert.ErrorIs(t, err, domain.ErrAlreadyMinted)
	assert.ErrorIs(t, err, domain.ErrOperationFailed)
	last := f.toaster.last()
	assert.Equal(t, "error", last.kind)
	assert.Equal(t, MsgAlreadyMinted, last.msg)
	assert.Equal(t, int64(1), f.sim.NFTBalance(f.me))
}

func TestConversions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.Mint(chaintest.USDeAddress, f.me, ether(5))

	require.NoError(t, f.svc.ConvertUSDeToBuzz(ctx, decimal.NewFromInt(3)))
	bal := f.svc.Snapshot().Balance
	assert.True(t, bal.USDe.Equal(decimal.NewFromInt(2)))
	assert.True(t, bal.Buzz.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, "USDe converted to BUZZ successfully", f.toaster.last().msg)

	require.NoError(t, f.svc.ConvertBuzzToUSDe(ctx, decimal.NewFromInt(1)))
	bal = f.svc.Snapshot().Balance
	assert.True(t, bal.USDe.Equal(decimal.NewFromInt(3)))
	assert.True(t, bal.Buzz.Equal(decimal.NewFromInt(2)))

	assert.Equal(t, chaintest.ConversionAddress, f.svc.c.Converter.Address())
	assert.Zero(t, f.sim.Allowance(chaintest.BuzzAddress, f.me, chaintest.ConversionAddress).Sign())

	err := f.svc.ConvertBuzzToUSDe(ctx, decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Equal(t, "Error in converting BUZZ to USDe", f.toaster.last().msg)
}

func TestUIState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.svc.ToggleSidebar(ctx))
	assert.False(t, f.svc.ToggleSidebar(ctx))
	f.svc.ToggleSidebar(ctx)
	f.svc.CloseSidebar(ctx)
	f.svc.SetActivePool(ctx, 9)

	snap := f.svc.Snapshot()
	assert.False(t, snap.UI.SidebarOpen)
	assert.Equal(t, uint64(9), snap.UI.ActivePoolID)

	var published domain.Snapshot
	msgs := f.bus.msgs[domain.ChannelState]
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1], &published))
	assert.Equal(t, uint64(9), published.UI.ActivePoolID)
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFixture(t)
	f.sim.AddPool(chaintest.Pool{Question: "q", Bets: []chaintest.Bet{{User: f.me, Amount: ether(1), TargetScore: big.NewInt(1)}}})
	_, err := f.svc.RefreshPools(context.Background())
	require.NoError(t, err)

	snap := f.svc.Snapshot()
	snap.Pools[0].Bets[0].Claimed = true
	assert.False(t, f.svc.Snapshot().Pools[0].Bets[0].Claimed)

	_, err = f.svc.Pool(5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "Jan 02, 2024", FormatTimestamp(1704153600, time.UTC))
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	assert.Equal(t, "Jan 01, 2024", FormatTimestamp(1704153600, ny))
}
