package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/paymath"
)

// Claim settles every unclaimed qualifying bet the bettor holds on a market
// and credits the payout to their withdrawable balance, returning the amount
// credited.
//
// On a voided market every bet qualifies and the payout is a plain refund of
// the stakes. On a resolved market only bets on the winning outcome qualify
// and the refund is scaled by total_pool / winning_pool, giving the bettor
// their pari-mutuel share of the whole pool.
//
// The claim is all-or-nothing: if any qualifying bet was already claimed the
// whole call fails, and each bet's claimed flag is set at most once.
func (e *Engine) Claim(ctx context.Context, marketID uint64, bettor string) (domain.Amount, error) {
	unlock := e.lockMarket(marketID)
	defer unlock()

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: claim: %w", err)
	}
	if !m.Terminal() {
		return nil, domain.ErrNotSettled
	}

	bets, err := e.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: claim: list bets: %w", err)
	}

	voided := m.Status == domain.MarketStatusVoided
	payout := uint256.NewInt(0)
	var claimIDs []int64

	for _, b := range bets {
		if b.Bettor != bettor {
			continue
		}
		if !voided && int32(b.Outcome) != m.ResolvedOutcome {
			continue
		}
		if b.Claimed {
			return nil, domain.ErrAlreadyClaimed
		}
		payout.Add(payout, b.Amount)
		claimIDs = append(claimIDs, b.ID)
	}

	if !voided && !payout.IsZero() {
		winningPool := m.OutcomePools[m.ResolvedOutcome]
		if !winningPool.IsZero() {
			scaled, err := paymath.MulDiv(payout, m.TotalPool, winningPool)
			if err != nil {
				return nil, fmt.Errorf("engine: claim payout: %w", err)
			}
			payout = scaled
		}
	}

	if payout.IsZero() {
		return nil, domain.ErrNothingToClaim
	}

	if err := e.bets.MarkClaimed(ctx, claimIDs); err != nil {
		return nil, fmt.Errorf("engine: mark claimed: %w", err)
	}
	if err := e.balances.Credit(ctx, bettor, payout); err != nil {
		return nil, fmt.Errorf("engine: credit payout: %w", err)
	}

	kind := "winnings"
	if voided {
		kind = "refund"
	}
	e.logger.InfoContext(ctx, "claim paid",
		slog.Uint64("market_id", marketID),
		slog.String("bettor", bettor),
		slog.String("kind", kind),
		slog.String("amount", payout.Dec()),
		slog.Int("bets", len(claimIDs)),
	)
	return payout, nil
}
