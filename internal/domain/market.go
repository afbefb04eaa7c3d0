package domain

import "time"

// MarketStatus represents the persisted lifecycle state of a market.
//
// "closed" is intentionally not a persisted status: a market whose betting
// deadline has passed is still stored as "active" and reported as closed at
// view time via EffectiveStatus, so the stored status can never lag
// wall-clock time.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
	MarketStatusVoided   MarketStatus = "voided"
)

// MarketKind selects the resolution algorithm for a market.
type MarketKind string

const (
	// MarketKindHeadToHead is a 2-way or 3-way winner market. Outcome labels
	// are matched against the event's team names.
	MarketKindHeadToHead MarketKind = "head-to-head"
	// MarketKindTotalPoints is an over/under market on the combined score.
	// The threshold is parsed from the first outcome label.
	MarketKindTotalPoints MarketKind = "total-points"
	// MarketKindBothScore is a yes/no market on both teams scoring.
	MarketKindBothScore MarketKind = "both-score"
)

// Sentinel values for Market.ResolvedOutcome.
const (
	OutcomeUnresolved int32 = -1
	OutcomeVoided     int32 = -2
)

// Validation bounds shared by the engine and the HTTP handlers.
const (
	MinOutcomes       = 2
	MaxOutcomes       = 10
	MaxOutcomeLen     = 200
	MaxQuestionLen    = 500
	MaxDescriptionLen = 2000
)

// Market is a pari-mutuel prediction market on a single external event.
type Market struct {
	ID          uint64
	Creator     string
	Question    string
	Description string
	Category    string
	Kind        MarketKind

	// Outcomes holds the ordered outcome labels; OutcomePools holds the
	// pooled stake per outcome in base units, same order. TotalPool is always
	// the sum of OutcomePools.
	Outcomes     []string
	OutcomePools []Amount
	TotalPool    Amount
	TotalBets    uint32

	CreatedAt    time.Time
	BetsCloseAt  time.Time
	ResolutionAt time.Time

	// ResolvedOutcome is the winning outcome index once the market is
	// resolved, OutcomeVoided for voided markets and OutcomeUnresolved
	// otherwise. A non-sentinel value is immutable once written.
	ResolvedOutcome int32
	Status          MarketStatus

	// EventID correlates the market with an event on the external data
	// source. An empty EventID makes the market ineligible for oracle
	// resolution. Sport and League scope the data-source lookup.
	EventID string
	Sport   string
	League  string
}

// EffectiveStatus returns the market status as seen at the given time: an
// active market whose betting deadline has passed reports as closed.
func (m *Market) EffectiveStatus(now time.Time) MarketStatus {
	if m.Status == MarketStatusActive && !now.Before(m.BetsCloseAt) {
		return MarketStatusClosed
	}
	return m.Status
}

// Terminal reports whether the market has reached a final state.
func (m *Market) Terminal() bool {
	return m.Status == MarketStatusResolved || m.Status == MarketStatusVoided
}

// OracleEligible reports whether the market carries the event metadata needed
// for oracle resolution.
func (m *Market) OracleEligible() bool {
	return m.EventID != ""
}
