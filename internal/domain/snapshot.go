package domain

import "time"

// UIState is the selection state shared with the front end.
type UIState struct {
	SidebarOpen  bool   `json:"is_open"`
	ActivePoolID uint64 `json:"active_pool_id"`
}

// Snapshot is the full mirrored state of one account on one chain.
type Snapshot struct {
	Account     string       `json:"account"`
	ChainID     int64        `json:"chain_id"`
	Balance     TokenBalance `json:"token_balance"`
	Pools       []Pool       `json:"total_pools"`
	UserBets    []Bet        `json:"user_bets"`
	NFTMinted   bool         `json:"nft_minted"`
	Loading     bool         `json:"loading"`
	UI          UIState      `json:"ui"`
	RefreshedAt time.Time    `json:"refreshed_at"`
}

// PoolSnapshot is the persisted unit of a pool refresh.
type PoolSnapshot struct {
	ChainID int64     `json:"chain_id"`
	Account string    `json:"account"`
	Pools   []Pool    `json:"pools"`
	TakenAt time.Time `json:"taken_at"`
}
