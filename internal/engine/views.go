package engine

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
)

// GetMarket returns a market with its view-time status applied: an active
// market past its betting deadline reports as closed.
func (e *Engine) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = m.EffectiveStatus(e.now())
	return m, nil
}

// ListMarkets returns markets newest-first with view-time statuses. The
// filter's status is matched against the effective status, so "closed" works
// even though it is never persisted.
func (e *Engine) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	all, err := e.markets.List(ctx, domain.MarketFilter{Category: f.Category})
	if err != nil {
		return nil, fmt.Errorf("engine: list markets: %w", err)
	}

	now := e.now()
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		out     []domain.Market
		skipped int
	)
	for _, m := range all {
		m.Status = m.EffectiveStatus(now)
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MarketOdds is the odds view of a market's pools.
type MarketOdds struct {
	Outcomes  []string
	Odds      []float64
	Pools     []domain.Amount
	TotalPool domain.Amount
}

// Odds returns total_pool/outcome_pool per outcome, rounded to three decimal
// places; outcomes with an empty pool report 0.
func (e *Engine) Odds(ctx context.Context, id uint64) (MarketOdds, error) {
	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return MarketOdds{}, err
	}

	odds := make([]float64, len(m.OutcomePools))
	total := float64FromAmount(m.TotalPool)
	for i, p := range m.OutcomePools {
		pool := float64FromAmount(p)
		if pool == 0 || total == 0 {
			continue
		}
		odds[i] = math.Round(total*1000/pool) / 1000
	}
	return MarketOdds{
		Outcomes:  m.Outcomes,
		Odds:      odds,
		Pools:     m.OutcomePools,
		TotalPool: m.TotalPool,
	}, nil
}

// float64FromAmount converts for display only; settlement arithmetic never
// goes through floats.
func float64FromAmount(a domain.Amount) float64 {
	f, _ := new(big.Float).SetInt(a.ToBig()).Float64()
	return f
}

// MarketBets returns every bet on a market in placement order.
func (e *Engine) MarketBets(ctx context.Context, id uint64) ([]domain.Bet, error) {
	return e.bets.ListByMarket(ctx, id)
}

// UserBets returns every bet an account has placed, in placement order.
func (e *Engine) UserBets(ctx context.Context, bettor string) ([]domain.Bet, error) {
	return e.bets.ListByBettor(ctx, bettor)
}

// Stats is the aggregate engine view.
type Stats struct {
	Markets     uint64
	TotalVolume domain.Amount
}

// Stats reports the market count and the cumulative staked volume (pools
// only ever grow; claims are paid from balances).
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	count, err := e.markets.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: stats: %w", err)
	}
	all, err := e.markets.List(ctx, domain.MarketFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("engine: stats: %w", err)
	}
	volume := uint256.NewInt(0)
	for _, m := range all {
		volume.Add(volume, m.TotalPool)
	}
	return Stats{Markets: count, TotalVolume: volume}, nil
}
