package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PollType is the contract's discriminator for how a pool is scored.
type PollType uint8

// Pool mirrors one prediction pool record from the market contract.
type Pool struct {
	ID          uint64          `json:"pool_id"`
	Question    string          `json:"question"`
	URL         string          `json:"url"`
	Parameter   string          `json:"parameter"`
	Category    string          `json:"category"`
	PollType    PollType        `json:"poll_type"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalBets   uint64          `json:"total_bets"`
	FinalScore  int64           `json:"final_score"`
	StartTime   int64           `json:"start_time"`
	EndTime     int64           `json:"end_time"`
	Ended       bool            `json:"pool_ended"`
	Bets        []Bet           `json:"bets"`
}

// Bet is a single stake placed against a pool.
type Bet struct {
	PoolID        uint64          `json:"pool_id"`
	User          string          `json:"user"`
	Amount        decimal.Decimal `json:"amount"`
	TargetScore   int64           `json:"target_score"`
	ClaimedAmount decimal.Decimal `json:"claimed_amount"`
	Claimed       bool            `json:"claimed"`
	// Status copies the parent pool's ended flag.
	Status bool `json:"status"`
}

// CreatePoolParams carries the inputs of a pool creation. Name is accepted
// for display only; the contract has no field for it.
type CreatePoolParams struct {
	Name      string    `json:"poll_name"`
	Deadline  time.Time `json:"deadline"`
	Question  string    `json:"question"`
	Link      string    `json:"link"`
	Parameter string    `json:"parameter"`
	Keyword   string    `json:"keyword"`
	Type      PollType  `json:"type"`
}
