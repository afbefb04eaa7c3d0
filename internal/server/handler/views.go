package handler

import (
	"time"

	"github.com/settld/settld/internal/domain"
)

// marketView is the JSON shape of a market. Amounts are decimal strings in
// base units; 128-bit values do not survive JSON numbers.
type marketView struct {
	ID              uint64    `json:"id"`
	Creator         string    `json:"creator"`
	Question        string    `json:"question"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category,omitempty"`
	Kind            string    `json:"kind"`
	Outcomes        []string  `json:"outcomes"`
	OutcomePools    []string  `json:"outcome_pools"`
	TotalPool       string    `json:"total_pool"`
	TotalBets       uint32    `json:"total_bets"`
	CreatedAt       time.Time `json:"created_at"`
	BetsCloseAt     time.Time `json:"bets_close_at"`
	ResolutionAt    time.Time `json:"resolution_at"`
	ResolvedOutcome int32     `json:"resolved_outcome"`
	Status          string    `json:"status"`
	EventID         string    `json:"event_id,omitempty"`
	Sport           string    `json:"sport,omitempty"`
	League          string    `json:"league,omitempty"`
}

func toMarketView(m domain.Market) marketView {
	pools := make([]string, len(m.OutcomePools))
	for i, p := range m.OutcomePools {
		pools[i] = p.Dec()
	}
	return marketView{
		ID:              m.ID,
		Creator:         m.Creator,
		Question:        m.Question,
		Description:     m.Description,
		Category:        m.Category,
		Kind:            string(m.Kind),
		Outcomes:        m.Outcomes,
		OutcomePools:    pools,
		TotalPool:       m.TotalPool.Dec(),
		TotalBets:       m.TotalBets,
		CreatedAt:       m.CreatedAt,
		BetsCloseAt:     m.BetsCloseAt,
		ResolutionAt:    m.ResolutionAt,
		ResolvedOutcome: m.ResolvedOutcome,
		Status:          string(m.Status),
		EventID:         m.EventID,
		Sport:           m.Sport,
		League:          m.League,
	}
}

func toMarketViews(ms []domain.Market) []marketView {
	out := make([]marketView, len(ms))
	for i, m := range ms {
		out[i] = toMarketView(m)
	}
	return out
}

// betView is the JSON shape of a bet.
type betView struct {
	ID       int64     `json:"id"`
	MarketID uint64    `json:"market_id"`
	Bettor   string    `json:"bettor"`
	Outcome  uint32    `json:"outcome"`
	Amount   string    `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
	Claimed  bool      `json:"claimed"`
}

func toBetViews(bs []domain.Bet) []betView {
	out := make([]betView, len(bs))
	for i, b := range bs {
		out[i] = betView{
			ID:       b.ID,
			MarketID: b.MarketID,
			Bettor:   b.Bettor,
			Outcome:  b.Outcome,
			Amount:   b.Amount.Dec(),
			PlacedAt: b.PlacedAt,
			Claimed:  b.Claimed,
		}
	}
	return out
}
