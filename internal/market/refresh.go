package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// RefreshTokenBalance reads the BUZZ and USDe balances of the account. On
// failure the stored balance is left as is and a zero balance is returned.
func (s *Service) RefreshTokenBalance(ctx context.Context) (domain.TokenBalance, error) {
	buzz, err := s.c.Buzz.BalanceOf(ctx, s.account)
	if err != nil {
		s.logger.ErrorContext(ctx, "market: buzz balance", slog.String("error", err.Error()))
		return domain.TokenBalance{}, fmt.Errorf("market: buzz balance: %w", err)
	}
	usde, err := s.c.USDe.BalanceOf(ctx, s.account)
	if err != nil {
		s.logger.ErrorContext(ctx, "market: usde balance", slog.String("error", err.Error()))
		return domain.TokenBalance{}, fmt.Errorf("market: usde balance: %w", err)
	}

	bal := domain.TokenBalance{
		Buzz: domain.FromWei(buzz, domain.TokenDecimals),
		USDe: domain.FromWei(usde, domain.TokenDecimals),
	}
	s.update(func(st *domain.Snapshot) { st.Balance = bal })
	s.publishState(ctx)
	return bal, nil
}

// RefreshPools re-reads every pool and its bets. The loading flag is set
// while any pool refresh is in flight. On error the stored pools are kept and
// the pools read so far are returned together with the error. A refresh that
// finishes after a later-started one has stored its result is dropped, so an
// older chain read never replaces a newer one.
func (s *Service) RefreshPools(ctx context.Context) ([]domain.Pool, error) {
	seq := s.beginPoolRefresh()
	ended := false
	end := func() {
		if !ended {
			ended = true
			s.endPoolRefresh()
		}
	}
	defer end()

	n, err := s.c.Market.PoolCount(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "market: pool count", slog.String("error", err.Error()))
		return nil, fmt.Errorf("market: pool count: %w", err)
	}

	pools := make([]domain.Pool, 0, n)
	for id := uint64(0); id < n; id++ {
		p, err := s.c.Market.Pool(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "market: read pool",
				slog.Uint64("pool_id", id),
				slog.String("error", err.Error()),
			)
			return pools, fmt.Errorf("market: pool %d: %w", id, err)
		}
		bets, err := s.c.Market.Bets(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "market: read bets",
				slog.Uint64("pool_id", id),
				slog.String("error", err.Error()),
			)
			return pools, fmt.Errorf("market: bets of pool %d: %w", id, err)
		}
		for i := range bets {
			bets[i].Status = p.Ended
		}
		p.Bets = bets
		pools = append(pools, p)
	}

	userBets := s.userBets(pools)
	refreshed := s.now().UTC()
	if !s.storePools(seq, pools, userBets, refreshed) {
		s.logger.DebugContext(ctx, "market: stale pool refresh dropped", slog.Uint64("seq", seq))
		end()
		s.publishState(ctx)
		return copyPools(pools), nil
	}

	s.logger.DebugContext(ctx, "market: pools refreshed",
		slog.Int("pools", len(pools)),
		slog.Int("user_bets", len(userBets)),
	)
	s.afterPoolRefresh(ctx, domain.PoolSnapshot{
		ChainID: s.chainID,
		Account: s.account.Hex(),
		Pools:   pools,
		TakenAt: refreshed,
	})
	return copyPools(pools), nil
}

func (s *Service) beginPoolRefresh() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.poolSeq++
	s.state.Loading = true
	return s.poolSeq
}

func (s *Service) endPoolRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	s.state.Loading = s.inflight > 0
}

// storePools records the result of refresh seq unless a later-started
// refresh already stored its own.
func (s *Service) storePools(seq uint64, pools []domain.Pool, userBets []domain.Bet, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.poolApplied {
		return false
	}
	s.poolApplied = seq
	s.state.Pools = pools
	s.state.UserBets = userBets
	s.state.RefreshedAt = at
	s.state.Loading = s.inflight > 1
	return true
}

// RefreshNFTMinted sets the minted flag from the account's NFT balance.
func (s *Service) RefreshNFTMinted(ctx context.Context) (bool, error) {
	bal, err := s.c.NFT.BalanceOf(ctx, s.account)
	if err != nil {
		s.logger.ErrorContext(ctx, "market: nft balance", slog.String("error", err.Error()))
		return false, fmt.Errorf("market: nft balance: %w", err)
	}
	minted := bal.Sign() > 0
	s.update(func(st *domain.Snapshot) { st.NFTMinted = minted })
	s.publishState(ctx)
	return minted, nil
}

// RefreshAll runs the three refreshes. Each runs even if an earlier one
// failed; the joined error is returned.
func (s *Service) RefreshAll(ctx context.Context) error {
	_, errBal := s.RefreshTokenBalance(ctx)
	_, errPools := s.RefreshPools(ctx)
	_, errNFT := s.RefreshNFTMinted(ctx)
	return errors.Join(errBal, errPools, errNFT)
}

// Seed loads the last cached pool snapshot so reads are served before the
// first chain round trip. A cache miss is not an error.
func (s *Service) Seed(ctx context.Context) error {
	if s.hooks.Cache == nil {
		return nil
	}
	snap, err := s.hooks.Cache.Get(ctx, s.chainID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("market: seed: %w", err)
	}

	userBets := s.userBets(snap.Pools)
	s.update(func(st *domain.Snapshot) {
		st.Pools = snap.Pools
		st.UserBets = userBets
		st.RefreshedAt = snap.TakenAt
	})
	s.logger.InfoContext(ctx, "market: seeded from cache",
		slog.Int("pools", len(snap.Pools)),
		slog.Time("taken_at", snap.TakenAt),
	)
	return nil
}

func (s *Service) userBets(pools []domain.Pool) []domain.Bet {
	me := s.account.Hex()
	out := []domain.Bet{}
	for _, p := range pools {
		for _, b := range p.Bets {
			if strings.EqualFold(b.User, me) {
				out = append(out, b)
			}
		}
	}
	return out
}

func (s *Service) afterPoolRefresh(ctx context.Context, snap domain.PoolSnapshot) {
	warn := func(step string, err error) {
		s.logger.WarnContext(ctx, "market: post-refresh "+step+" failed", slog.String("error", err.Error()))
	}

	if s.hooks.Cache != nil {
		if err := s.hooks.Cache.Set(ctx, snap); err != nil {
			warn("cache", err)
		}
	}
	if s.hooks.Store != nil {
		if err := s.hooks.Store.UpsertBatch(ctx, snap.ChainID, snap.Pools); err != nil {
			warn("store", err)
		}
	}
	if s.hooks.Archiver != nil {
		if _, err := s.hooks.Archiver.Archive(ctx, snap); err != nil {
			warn("archive", err)
		}
	}
	s.publishState(ctx)
}
