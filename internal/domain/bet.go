package domain

import "time"

// Bet is a single stake placed on one outcome of a market.
type Bet struct {
	// ID is assigned by the bet store on insert.
	ID       int64
	MarketID uint64
	Bettor   string
	// Outcome is the chosen outcome index; always < len(market.Outcomes) at
	// placement time.
	Outcome  uint32
	Amount   Amount
	PlacedAt time.Time
	// Claimed transitions false -> true at most once, when the bet's payout
	// or refund is credited.
	Claimed bool
}
