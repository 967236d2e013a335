// Package market owns the mirrored account state (balances, pools, bets, NFT
// flag, UI selection) and the actions that change it on chain. Every action
// follows one shape: loading toast, optional approve, primary transaction,
// wait for inclusion, refresh, settle the toast.
package market

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/buzzpool/internal/contracts"
	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// DefaultNFTTokenURI is the metadata URI minted into every participation NFT.
const DefaultNFTTokenURI = "https://gateway.pinata.cloud/ipfs/bafkreifsghmurcvqcer5axfj4jaryfa42gxmqgqv3pkjl56g2k6bcigq4u/"

// DefaultCreationFee is the value in wei sent with createPool.
var DefaultCreationFee = big.NewInt(100)

// Toaster reports action progress to the user.
type Toaster interface {
	Loading(ctx context.Context, msg string) string
	Success(ctx context.Context, id, msg string)
	Error(ctx context.Context, id, msg string)
}

// Contracts groups the handles the service drives. Buzz is the betting
// token.
type Contracts struct {
	Buzz      *contracts.Token
	USDe      *contracts.Token
	Market    *contracts.Market
	NFT       *contracts.NFT
	Converter *contracts.Converter
}

// Hooks are optional sinks fed after a successful refresh. Nil fields are
// skipped and failures are only logged.
type Hooks struct {
	Cache    domain.PoolCache
	Store    domain.PoolStore
	Archiver domain.SnapshotArchiver
	Audit    domain.AuditStore
	Bus      domain.SignalBus
}

// Options tunes the service.
type Options struct {
	CreationFee *big.Int
	NFTTokenURI string
	// Location is used by FormatTimestamp. Defaults to UTC.
	Location *time.Location
}

// Service is the shared state container plus its actions. It is safe for
// concurrent use; actions are neither deduplicated nor serialized.
type Service struct {
	account common.Address
	chainID int64
	c       Contracts
	hooks   Hooks
	toaster Toaster
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state domain.Snapshot
	// Pool refreshes in flight, the last started sequence and the sequence
	// of the refresh whose result is stored.
	inflight    int
	poolSeq     uint64
	poolApplied uint64
}

// NewService creates a Service acting for account on chainID.
func NewService(account common.Address, chainID int64, c Contracts, toaster Toaster, hooks Hooks, opts Options, logger *slog.Logger) *Service {
	if opts.CreationFee == nil {
		opts.CreationFee = DefaultCreationFee
	}
	if opts.NFTTokenURI == "" {
		opts.NFTTokenURI = DefaultNFTTokenURI
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		account: account,
		chainID: chainID,
		c:       c,
		hooks:   hooks,
		toaster: toaster,
		opts:    opts,
		logger:  logger.With(slog.String("component", "market")),
		now:     time.Now,
		state: domain.Snapshot{
			Account:  account.Hex(),
			ChainID:  chainID,
			Pools:    []domain.Pool{},
			UserBets: []domain.Bet{},
		},
	}
}

// Account returns the address the service acts for.
func (s *Service) Account() common.Address { return s.account }

// Snapshot returns a deep copy of the current state.
func (s *Service) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySnapshot(s.state)
}

// Pool returns the mirrored pool with id.
func (s *Service) Pool(id uint64) (domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.state.Pools {
		if p.ID == id {
			return copyPool(p), nil
		}
	}
	return domain.Pool{}, domain.ErrNotFound
}

func (s *Service) update(fn func(st *domain.Snapshot)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

// publishState pushes the current snapshot on ch:state.
func (s *Service) publishState(ctx context.Context) {
	if s.hooks.Bus == nil {
		return
	}
	payload, err := json.Marshal(s.Snapshot())
	if err != nil {
		return
	}
	if err := s.hooks.Bus.Publish(ctx, domain.ChannelState, payload); err != nil {
		s.logger.WarnContext(ctx, "market: publish state failed", slog.String("error", err.Error()))
	}
}

func copySnapshot(st domain.Snapshot) domain.Snapshot {
	out := st
	out.Pools = copyPools(st.Pools)
	out.UserBets = append([]domain.Bet{}, st.UserBets...)
	return out
}

func copyPools(pools []domain.Pool) []domain.Pool {
	out := make([]domain.Pool, len(pools))
	for i, p := range pools {
		out[i] = copyPool(p)
	}
	return out
}

func copyPool(p domain.Pool) domain.Pool {
	p.Bets = append([]domain.Bet{}, p.Bets...)
	return p
}
