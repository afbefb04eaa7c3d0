package resolver

import (
	"fmt"

	"github.com/settld/settld/internal/domain"
)

// Decider computes resolution verdicts from raw event records. It carries no
// mutable state; the only knob is the fuzzy-match token length, which is a
// fixed heuristic kept configurable rather than hard-coded.
type Decider struct {
	// MinTokenLen overrides DefaultMinTokenLen when positive.
	MinTokenLen int
}

// NewDecider returns a Decider using the given fuzzy-match token length, or
// the default when minTokenLen is not positive.
func NewDecider(minTokenLen int) *Decider {
	return &Decider{MinTokenLen: minTokenLen}
}

func (d *Decider) minTokenLen() int {
	if d.MinTokenLen > 0 {
		return d.MinTokenLen
	}
	return DefaultMinTokenLen
}

// DetermineWinner converts a raw event record into a verdict for the given
// market. Non-final events, explicit source errors and unparseable scores all
// yield an indeterminate verdict; otherwise the market's kind selects the
// resolution algorithm. Confidence is binary: 1.0 when an outcome was picked,
// 0.0 otherwise.
func (d *Decider) DetermineWinner(m *domain.Market, ev *domain.EventRecord) domain.Verdict {
	if !ev.Final() {
		return indeterminate(fmt.Sprintf("event not completed (status: %s)", ev.Status))
	}
	if ev.Err != "" {
		return indeterminate(fmt.Sprintf("data source error: %s", ev.Err))
	}
	if ev.HomeScore < 0 || ev.AwayScore < 0 {
		return indeterminate("could not parse scores from data source")
	}

	var (
		outcome int32
		reason  string
	)
	switch m.Kind {
	case domain.MarketKindHeadToHead:
		outcome, reason = d.ResolveHeadToHead(m.Outcomes, ev.HomeScore, ev.AwayScore, ev.HomeTeam, ev.AwayTeam)
	case domain.MarketKindTotalPoints:
		outcome, reason = d.ResolveTotalPoints(m.Outcomes, ev.HomeScore, ev.AwayScore)
	case domain.MarketKindBothScore:
		outcome, reason = d.ResolveBothScore(ev.HomeScore, ev.AwayScore)
	default:
		return indeterminate(fmt.Sprintf("unknown market kind: %s", m.Kind))
	}

	confidence := 0.0
	if outcome >= 0 {
		confidence = 1.0
	}
	return domain.Verdict{Outcome: outcome, Confidence: confidence, Reason: reason}
}

func indeterminate(reason string) domain.Verdict {
	return domain.Verdict{Outcome: domain.OutcomeUnresolved, Confidence: 0, Reason: reason}
}
