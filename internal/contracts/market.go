package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/buzzpool/internal/chain"
	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// poolRecord receives the outputs of pools(uint256). Field names follow the
// camel-cased ABI output names.
type poolRecord struct {
	Question    string
	Url         string
	Parameter   string
	Category    string
	PollType    uint8
	TotalAmount *big.Int
	TotalBets   *big.Int
	FinalScore  *big.Int
	StartTime   *big.Int
	EndTime     *big.Int
	PoolEnded   bool
}

type betRecord struct {
	User          common.Address
	Amount        *big.Int
	TargetScore   *big.Int
	ClaimedAmount *big.Int
	Claimed       bool
}

// Market is the prediction market contract.
type Market struct {
	c *chain.Contract
}

// NewMarket binds the market at address.
func NewMarket(client *chain.Client, address common.Address) (*Market, error) {
	c, err := client.Bind(address, chain.MarketABI)
	if err != nil {
		return nil, fmt.Errorf("contracts: market: %w", err)
	}
	return &Market{c: c}, nil
}

// Address returns the market contract address.
func (m *Market) Address() common.Address { return m.c.Address() }

// PoolCount returns the number of pools; ids run from 0 to PoolCount-1.
func (m *Market) PoolCount(ctx context.Context) (uint64, error) {
	var out *big.Int
	if err := m.c.Call(ctx, &out, "getPoolId"); err != nil {
		return 0, err
	}
	if !out.IsUint64() {
		return 0, fmt.Errorf("contracts: pool count %s out of range", out)
	}
	return out.Uint64(), nil
}

// Pool reads pool id without its bets.
func (m *Market) Pool(ctx context.Context, id uint64) (domain.Pool, error) {
	var rec poolRecord
	if err := m.c.Call(ctx, &rec, "pools", new(big.Int).SetUint64(id)); err != nil {
		return domain.Pool{}, err
	}
	if !rec.TotalBets.IsUint64() {
		return domain.Pool{}, fmt.Errorf("contracts: pool %d: total bets %s out of range", id, rec.TotalBets)
	}
	var ints [3]int64
	for i, f := range []struct {
		name string
		v    *big.Int
	}{{"final score", rec.FinalScore}, {"start time", rec.StartTime}, {"end time", rec.EndTime}} {
		n, err := toInt64(f.v)
		if err != nil {
			return domain.Pool{}, fmt.Errorf("contracts: pool %d: %s: %w", id, f.name, err)
		}
		ints[i] = n
	}
	return domain.Pool{
		ID:          id,
		Question:    rec.Question,
		URL:         rec.Url,
		Parameter:   rec.Parameter,
		Category:    rec.Category,
		PollType:    domain.PollType(rec.PollType),
		TotalAmount: domain.FromWei(rec.TotalAmount, domain.TokenDecimals),
		TotalBets:   rec.TotalBets.Uint64(),
		FinalScore:  ints[0],
		StartTime:   ints[1],
		EndTime:     ints[2],
		Ended:       rec.PoolEnded,
	}, nil
}

func toInt64(v *big.Int) (int64, error) {
	if !v.IsInt64() {
		return 0, fmt.Errorf("%s out of range", v)
	}
	return v.Int64(), nil
}

// Bets reads every bet placed on pool id. Status is left false; the caller
// copies the pool's ended flag.
func (m *Market) Bets(ctx context.Context, id uint64) ([]domain.Bet, error) {
	var recs []betRecord
	if err := m.c.Call(ctx, &recs, "getBets", new(big.Int).SetUint64(id)); err != nil {
		return nil, err
	}
	bets := make([]domain.Bet, 0, len(recs))
	for i, r := range recs {
		target, err := toInt64(r.TargetScore)
		if err != nil {
			return nil, fmt.Errorf("contracts: pool %d bet %d: target score: %w", id, i, err)
		}
		bets = append(bets, domain.Bet{
			PoolID:        id,
			User:          r.User.Hex(),
			Amount:        domain.FromWei(r.Amount, domain.TokenDecimals),
			TargetScore:   target,
			ClaimedAmount: domain.FromWei(r.ClaimedAmount, domain.TokenDecimals),
			Claimed:       r.Claimed,
		})
	}
	return bets, nil
}

// CreatePool opens a pool, paying fee wei. Keyword is stored as the pool's
// category and the deadline as its end time.
func (m *Market) CreatePool(ctx context.Context, p domain.CreatePoolParams, fee *big.Int) (*types.Receipt, error) {
	return m.c.TransactAndWait(ctx, fee, "createPool",
		p.Question, p.Link, p.Parameter, p.Keyword, uint8(p.Type), big.NewInt(p.Deadline.Unix()))
}

// PlaceBet stakes amount wei of the betting token on targetScore.
func (m *Market) PlaceBet(ctx context.Context, amount *big.Int, targetScore int64, poolID uint64) (*types.Receipt, error) {
	return m.c.TransactAndWait(ctx, nil, "placeBet",
		amount, big.NewInt(targetScore), new(big.Int).SetUint64(poolID))
}

// ClaimBet collects the caller's winnings for poolID.
func (m *Market) ClaimBet(ctx context.Context, poolID uint64) (*types.Receipt, error) {
	return m.c.TransactAndWait(ctx, nil, "claimBet", new(big.Int).SetUint64(poolID))
}

// SetResult records the final score and ends the pool.
func (m *Market) SetResult(ctx context.Context, poolID uint64, finalScore int64) (*types.Receipt, error) {
	return m.c.TransactAndWait(ctx, nil, "setResult",
		new(big.Int).SetUint64(poolID), big.NewInt(finalScore))
}
