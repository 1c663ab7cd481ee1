// Package profile defines the wallet profile records tracked by the engine.
package profile

import "time"

// Profile is one smart-money wallet record as served by the dashboard backend.
type Profile struct {
	// Address is the wallet address, the primary identifier.
	Address string `json:"address"`

	// DisplayName is the short human-readable name, if the wallet has one.
	DisplayName string `json:"display_name,omitempty"`

	// Handle is the wallet owner's social handle, if linked.
	Handle string `json:"handle,omitempty"`

	// Alias is a community-assigned nickname, if any.
	Alias string `json:"alias,omitempty"`

	// Rank is the wallet's position in the leaderboard ordering.
	Rank int `json:"rank"`

	// Score is the smart-money priority score derived from trade signals.
	Score float64 `json:"score"`

	// PnL is the wallet's realized profit and loss in USD.
	PnL float64 `json:"pnl"`

	// Volume is the wallet's total traded volume in USD.
	Volume float64 `json:"volume"`

	// LastTradeAt is when the wallet last traded.
	LastTradeAt time.Time `json:"last_trade_at"`
}

// Page is one page of a remote profile listing.
type Page struct {
	Entries []Profile `json:"entries"`
	Total   int       `json:"total"`
}
