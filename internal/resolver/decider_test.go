package resolver

import (
	"testing"

	"github.com/settld/settld/internal/domain"
)

func h2hMarket() *domain.Market {
	return &domain.Market{
		Kind:     domain.MarketKindHeadToHead,
		Outcomes: []string{"A", "Draw", "B"},
	}
}

func TestDetermineWinner(t *testing.T) {
	d := NewDecider(0)

	ev := &domain.EventRecord{
		HomeTeam: "A FC", AwayTeam: "B United",
		HomeScore: 2, AwayScore: 1,
		Status: domain.EventStatusFinal,
	}
	v := d.DetermineWinner(h2hMarket(), ev)
	if v.Outcome != 0 {
		t.Errorf("outcome = %d (%s), want 0", v.Outcome, v.Reason)
	}
	if v.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", v.Confidence)
	}
}

func TestDetermineWinnerIndeterminate(t *testing.T) {
	d := NewDecider(0)

	tests := []struct {
		name   string
		market *domain.Market
		event  domain.EventRecord
	}{
		{
			"event not final",
			h2hMarket(),
			domain.EventRecord{HomeTeam: "A", AwayTeam: "B", HomeScore: 2, AwayScore: 1, Status: domain.EventStatusInProgress},
		},
		{
			"explicit source error",
			h2hMarket(),
			domain.EventRecord{Status: domain.EventStatusFinal, Err: "event not found"},
		},
		{
			"unparseable home score",
			h2hMarket(),
			domain.EventRecord{HomeTeam: "A", AwayTeam: "B", HomeScore: -1, AwayScore: 1, Status: domain.EventStatusFinal},
		},
		{
			"unparseable away score",
			h2hMarket(),
			domain.EventRecord{HomeTeam: "A", AwayTeam: "B", HomeScore: 1, AwayScore: -1, Status: domain.EventStatusFinal},
		},
		{
			"unknown market kind",
			&domain.Market{Kind: "parlay", Outcomes: []string{"A", "B"}},
			domain.EventRecord{HomeTeam: "A", AwayTeam: "B", HomeScore: 2, AwayScore: 1, Status: domain.EventStatusFinal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.DetermineWinner(tt.market, &tt.event)
			if !v.Indeterminate() {
				t.Errorf("verdict = %+v, want indeterminate", v)
			}
			if v.Confidence != 0 {
				t.Errorf("confidence = %v, want 0", v.Confidence)
			}
			if v.Reason == "" {
				t.Error("indeterminate verdict carries no reason")
			}
		})
	}
}

func TestDetermineWinnerIsPure(t *testing.T) {
	d := NewDecider(0)
	m := h2hMarket()
	ev := &domain.EventRecord{
		HomeTeam: "A FC", AwayTeam: "B United",
		HomeScore: 1, AwayScore: 1,
		Status: domain.EventStatusFinal,
	}

	first := d.DetermineWinner(m, ev)
	for i := 0; i < 10; i++ {
		if got := d.DetermineWinner(m, ev); got != first {
			t.Fatalf("verdict changed between replays: %+v vs %+v", got, first)
		}
	}
}
