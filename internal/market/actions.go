package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// MsgAlreadyMinted is shown instead of the generic failure when the account
// already holds an NFT.
const MsgAlreadyMinted = "You already have an NFT"

// Action names one user action and its three toast messages.
type Action struct {
	Name    string
	Pending string
	Done    string
	Failed  string
}

var (
	ActCreatePool = Action{"create_pool", "Creating pool...", "Pool created successfully", "Error in creating pool"}
	ActPlaceBet   = Action{"place_bet", "Placing bet...", "Bet placed successfully", "Error in placing bet"}
	ActClaimBet   = Action{"claim_bet", "Claiming bet...", "Bet claimed successfully", "Error in claiming bet"}
	ActSetResult  = Action{"set_result", "Setting result...", "Result set successfully", "Error in setting result"}
	ActMintNFT    = Action{"mint_nft", "Minting NFT...", "NFT minted successfully", "Error in minting NFT"}
	ActUSDeToBuzz = Action{"convert_usde_to_buzz", "Converting USDe to BUZZ...", "USDe converted to BUZZ successfully", "Error in converting USDe to BUZZ"}
	ActBuzzToUSDe = Action{"convert_buzz_to_usde", "Converting BUZZ to USDe...", "BUZZ converted to USDe successfully", "Error in converting BUZZ to USDe"}
)

// CreatePool opens a new pool, paying the configured creation fee.
func (s *Service) CreatePool(ctx context.Context, p domain.CreatePoolParams) error {
	detail := map[string]any{
		"question": p.Question,
		"deadline": p.Deadline.UTC().Format(time.RFC3339),
		"type":     int(p.Type),
	}
	return s.run(ctx, ActCreatePool, detail, func(ctx context.Context) error {
		if _, err := s.c.Market.CreatePool(ctx, p, s.opts.CreationFee); err != nil {
			return err
		}
		s.RefreshPools(ctx)
		return nil
	})
}

// PlaceBet stakes amount BUZZ on targetScore in poolID, approving the market
// first when the allowance is short.
func (s *Service) PlaceBet(ctx context.Context, poolID uint64, amount decimal.Decimal, targetScore int64) error {
	detail := map[string]any{"pool_id": poolID, "amount": amount.String(), "target_score": targetScore}
	return s.run(ctx, ActPlaceBet, detail, func(ctx context.Context) error {
		wei, err := domain.ToWei(amount, domain.TokenDecimals)
		if err != nil {
			return err
		}
		if _, err := s.c.Buzz.EnsureAllowance(ctx, s.account, s.c.Market.Address(), wei); err != nil {
			return fmt.Errorf("approve: %w", err)
		}
		if _, err := s.c.Market.PlaceBet(ctx, wei, targetScore, poolID); err != nil {
			return err
		}
		s.RefreshPools(ctx)
		return nil
	})
}

// ClaimBet collects winnings of the account in poolID.
func (s *Service) ClaimBet(ctx context.Context, poolID uint64) error {
	return s.run(ctx, ActClaimBet, map[string]any{"pool_id": poolID}, func(ctx context.Context) error {
		if _, err := s.c.Market.ClaimBet(ctx, poolID); err != nil {
			return err
		}
		s.RefreshPools(ctx)
		return nil
	})
}

// SetResult records the final score of poolID.
func (s *Service) SetResult(ctx context.Context, poolID uint64, finalScore int64) error {
	detail := map[string]any{"pool_id": poolID, "final_score": finalScore}
	return s.run(ctx, ActSetResult, detail, func(ctx context.Context) error {
		if _, err := s.c.Market.SetResult(ctx, poolID, finalScore); err != nil {
			return err
		}
		s.RefreshPools(ctx)
		return nil
	})
}

// MintNFT mints the participation NFT unless the account already has one.
func (s *Service) MintNFT(ctx context.Context) error {
	return s.run(ctx, ActMintNFT, map[string]any{}, func(ctx context.Context) error {
		bal, err := s.c.NFT.BalanceOf(ctx, s.account)
		if err != nil {
			return err
		}
		if bal.Sign() > 0 {
			s.update(func(st *domain.Snapshot) { st.NFTMinted = true })
			return domain.ErrAlreadyMinted
		}
		if _, err := s.c.NFT.Mint(ctx, s.account, s.opts.NFTTokenURI); err != nil {
			return err
		}
		s.RefreshNFTMinted(ctx)
		return nil
	})
}

// ConvertUSDeToBuzz swaps amount USDe into BUZZ.
func (s *Service) ConvertUSDeToBuzz(ctx context.Context, amount decimal.Decimal) error {
	return s.convert(ctx, ActUSDeToBuzz, amount, func(ctx context.Context, wei *big.Int) error {
		if _, err := s.c.USDe.EnsureAllowance(ctx, s.account, s.c.Converter.Address(), wei); err != nil {
			return fmt.Errorf("approve: %w", err)
		}
		_, err := s.c.Converter.USDeToBuzz(ctx, wei)
		return err
	})
}

// ConvertBuzzToUSDe swaps amount BUZZ into USDe.
func (s *Service) ConvertBuzzToUSDe(ctx context.Context, amount decimal.Decimal) error {
	return s.convert(ctx, ActBuzzToUSDe, amount, func(ctx context.Context, wei *big.Int) error {
		if _, err := s.c.Buzz.EnsureAllowance(ctx, s.account, s.c.Converter.Address(), wei); err != nil {
			return fmt.Errorf("approve: %w", err)
		}
		_, err := s.c.Converter.BuzzToUSDe(ctx, wei)
		return err
	})
}

func (s *Service) convert(ctx context.Context, a Action, amount decimal.Decimal, swap func(context.Context, *big.Int) error) error {
	return s.run(ctx, a, map[string]any{"amount": amount.String()}, func(ctx context.Context) error {
		wei, err := domain.ToWei(amount, domain.TokenDecimals)
		if err != nil {
			return err
		}
		if err := swap(ctx, wei); err != nil {
			return err
		}
		s.RefreshTokenBalance(ctx)
		return nil
	})
}

// run drives the toast lifecycle around fn and records the outcome. Refresh
// failures inside fn are logged by the refresh itself and do not fail the
// action.
func (s *Service) run(ctx context.Context, a Action, detail map[string]any, fn func(context.Context) error) error {
	id := s.toaster.Loading(ctx, a.Pending)

	err := fn(ctx)
	if err != nil {
		msg := a.Failed
		if errors.Is(err, domain.ErrAlreadyMinted) {
			msg = MsgAlreadyMinted
		}
		s.toaster.Error(ctx, id, msg)
		s.logger.ErrorContext(ctx, "market: action failed",
			slog.String("action", a.Name),
			slog.String("error", err.Error()),
		)
		detail["error"] = err.Error()
		s.audit(ctx, a.Name+".failed", detail)
		return fmt.Errorf("market: %s: %w: %w", a.Name, domain.ErrOperationFailed, err)
	}

	s.toaster.Success(ctx, id, a.Done)
	s.logger.InfoContext(ctx, "market: action succeeded", slog.String("action", a.Name))
	s.audit(ctx, a.Name+".succeeded", detail)
	return nil
}

func (s *Service) audit(ctx context.Context, event string, detail map[string]any) {
	if s.hooks.Audit == nil {
		return
	}
	detail["account"] = s.account.Hex()
	detail["chain_id"] = s.chainID
	if err := s.hooks.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
