package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/settld/settld/internal/domain"
)

// ApplyStatus describes what ApplyResolution did with a verdict.
type ApplyStatus string

const (
	// ApplyNoop means the verdict changed nothing: the market is missing,
	// already terminal, the event was not final, or the verdict shape was
	// invalid. The market stays resolvable.
	ApplyNoop ApplyStatus = "noop"
	// ApplyResolved means the market was resolved to the verdict's outcome.
	ApplyResolved ApplyStatus = "resolved"
	// ApplyVoided means the verdict was indeterminate or low-confidence and
	// the market was voided, refunding all stakes on claim.
	ApplyVoided ApplyStatus = "voided"
)

// ApplyResult reports the effect of one ApplyResolution call.
type ApplyResult struct {
	Status ApplyStatus
	Reason string
}

// ApplyResolution is the single gate through which both oracle paths settle
// a market. It is idempotent: once a market is terminal every further call is
// a no-op, so racing resolution attempts cannot double-settle.
//
// The rules, in order:
//   - missing market or market not in {active, closed}: no-op;
//   - event not reported final: no-op, resolution stays retryable;
//   - indeterminate verdict or confidence below the void threshold: the
//     market is voided rather than forced to an arbitrary winner;
//   - in-bounds outcome index: the market resolves to it, permanently;
//   - anything else (out-of-bounds non-sentinel index): defensive no-op.
func (e *Engine) ApplyResolution(ctx context.Context, marketID uint64, v domain.Verdict, ev *domain.EventRecord) (ApplyResult, error) {
	unlock := e.lockMarket(marketID)
	defer unlock()

	m, err := e.markets.Get(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		return ApplyResult{Status: ApplyNoop, Reason: "market not found"}, nil
	}
	if err != nil {
		return ApplyResult{}, fmt.Errorf("engine: apply resolution: %w", err)
	}

	if m.Terminal() {
		return ApplyResult{Status: ApplyNoop, Reason: "market already settled"}, nil
	}
	if !ev.Final() {
		return ApplyResult{
			Status: ApplyNoop,
			Reason: fmt.Sprintf("event not completed (status: %s)", ev.Status),
		}, nil
	}

	switch {
	case v.Indeterminate() || v.Confidence < e.voidBelow:
		m.ResolvedOutcome = domain.OutcomeVoided
		m.Status = domain.MarketStatusVoided
		if err := e.markets.Update(ctx, m); err != nil {
			return ApplyResult{}, fmt.Errorf("engine: void market: %w", err)
		}
		e.logger.InfoContext(ctx, "market voided",
			slog.Uint64("market_id", marketID),
			slog.String("reason", v.Reason),
		)
		e.events.MarketSettled(ctx, m, v)
		return ApplyResult{Status: ApplyVoided, Reason: v.Reason}, nil

	case int(v.Outcome) < len(m.Outcomes):
		m.ResolvedOutcome = v.Outcome
		m.Status = domain.MarketStatusResolved
		if err := e.markets.Update(ctx, m); err != nil {
			return ApplyResult{}, fmt.Errorf("engine: resolve market: %w", err)
		}
		e.logger.InfoContext(ctx, "market resolved",
			slog.Uint64("market_id", marketID),
			slog.Int("outcome", int(v.Outcome)),
			slog.String("outcome_label", m.Outcomes[v.Outcome]),
			slog.Int("score_home", int(ev.HomeScore)),
			slog.Int("score_away", int(ev.AwayScore)),
			slog.String("reason", v.Reason),
		)
		e.events.MarketSettled(ctx, m, v)
		return ApplyResult{Status: ApplyResolved, Reason: v.Reason}, nil

	default:
		// A decider can never produce this; treat it as an invariant breach
		// and refuse to touch the market.
		e.logger.WarnContext(ctx, "verdict outcome out of bounds",
			slog.Uint64("market_id", marketID),
			slog.Int("outcome", int(v.Outcome)),
			slog.Int("outcome_count", len(m.Outcomes)),
		)
		return ApplyResult{Status: ApplyNoop, Reason: "verdict outcome out of bounds"}, nil
	}
}
