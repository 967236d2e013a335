package chain_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/buzzpool/internal/chain"
	"github.com/alanyoungcy/buzzpool/internal/chain/chaintest"
)

const testChainID = 52085143

func newClient(t *testing.T, sim *chaintest.Backend, withSigner bool) *chain.Client {
	t.Helper()
	var signer chain.Signer
	if withSigner {
		signer = chaintest.NewSigner(t)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return chain.NewClient(sim, signer, big.NewInt(testChainID), chain.Options{
		PollInterval:   time.Millisecond,
		ReceiptTimeout: time.Second,
		GasHeadroomPct: 20,
	}, logger)
}

func TestCheckChain(t *testing.T) {
	sim := chaintest.New(testChainID)
	require.NoError(t, newClient(t, sim, false).CheckChain(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	other := chain.NewClient(sim, nil, big.NewInt(1), chain.Options{}, logger)
	assert.Error(t, other.CheckChain(context.Background()))
}

func TestBindRejectsZeroAddress(t *testing.T) {
	c := newClient(t, chaintest.New(testChainID), false)
	_, err := c.Bind(common.Address{}, chain.ERC20ABI)
	assert.Error(t, err)

	_, err = c.Bind(chaintest.BuzzAddress, "not json")
	assert.Error(t, err)
}

func TestCallUnpacksOutput(t *testing.T) {
	sim := chaintest.New(testChainID)
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	sim.Mint(chaintest.BuzzAddress, owner, big.NewInt(42))

	token, err := newClient(t, sim, false).Bind(chaintest.BuzzAddress, chain.ERC20ABI)
	require.NoError(t, err)

	var bal *big.Int
	require.NoError(t, token.Call(context.Background(), &bal, "balanceOf", owner))
	assert.Equal(t, int64(42), bal.Int64())
}

func TestCallWithoutCode(t *testing.T) {
	sim := chaintest.New(testChainID)
	empty := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	token, err := newClient(t, sim, false).Bind(empty, chain.ERC20ABI)
	require.NoError(t, err)

	var bal *big.Int
	err = token.Call(context.Background(), &bal, "balanceOf", empty)
	assert.ErrorIs(t, err, chain.ErrNoCode)
}

func TestTransactRequiresSigner(t *testing.T) {
	c := newClient(t, chaintest.New(testChainID), false)
	token, err := c.Bind(chaintest.BuzzAddress, chain.ERC20ABI)
	require.NoError(t, err)

	_, err = token.Transact(context.Background(), nil, "approve", chaintest.MarketAddress, big.NewInt(1))
	assert.ErrorIs(t, err, chain.ErrNoSigner)
}

func TestTransactAndWait(t *testing.T) {
	sim := chaintest.New(testChainID)
	sim.ReceiptDelay = 2
	c := newClient(t, sim, true)
	token, err := c.Bind(chaintest.BuzzAddress, chain.ERC20ABI)
	require.NoError(t, err)

	receipt, err := token.TransactAndWait(context.Background(), nil, "approve", chaintest.MarketAddress, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, uint64(120_000), receipt.GasUsed)
	assert.Equal(t, int64(7), sim.Allowance(chaintest.BuzzAddress, c.Account(), chaintest.MarketAddress).Int64())
}

func TestTransactAndWaitReverted(t *testing.T) {
	sim := chaintest.New(testChainID)
	c := newClient(t, sim, true)
	token, err := c.Bind(chaintest.BuzzAddress, chain.ERC20ABI)
	require.NoError(t, err)

	sim.RevertNext("approve", 1)
	receipt, err := token.TransactAndWait(context.Background(), nil, "approve", chaintest.MarketAddress, big.NewInt(7))
	assert.ErrorIs(t, err, chain.ErrReverted)
	require.NotNil(t, receipt)
	assert.Zero(t, sim.Allowance(chaintest.BuzzAddress, c.Account(), chaintest.MarketAddress).Sign())
}

func TestTransactEstimateFailure(t *testing.T) {
	sim := chaintest.New(testChainID)
	token, err := newClient(t, sim, true).Bind(chaintest.BuzzAddress, chain.ERC20ABI)
	require.NoError(t, err)

	boom := errors.New("execution reverted")
	sim.FailEstimate("approve", boom)
	_, err = token.Transact(context.Background(), nil, "approve", chaintest.MarketAddress, big.NewInt(1))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, sim.Sent())
}

func TestConcurrentTransactsUseDistinctNonces(t *testing.T) {
	sim := chaintest.New(testChainID)
	token, err := newClient(t, sim, true).Bind(chaintest.BuzzAddress, chain.ERC20ABI)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			_, err := token.Transact(context.Background(), nil, "approve", chaintest.MarketAddress, big.NewInt(n))
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, sim.Sent(), 8)
}

type pendingForever struct{}

func (pendingForever) TransactionReceipt(ctx context.Context, _ common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func TestWaitMinedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := chain.WaitMined(ctx, pendingForever{}, common.Hash{1}, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalNonceLocker(t *testing.T) {
	l := chain.NewLocalNonceLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}
