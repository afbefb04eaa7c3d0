// Package engine owns every state transition of a market: creation, betting,
// resolution and claiming. Mutations of a single market are serialized
// through a per-market lock, so each transition observes and writes a
// consistent market record; there is no shared mutable working state outside
// the stores.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
)

// DefaultVoidBelowConfidence is the verdict confidence below which a market
// is voided instead of resolved. A fixed heuristic, kept configurable.
const DefaultVoidBelowConfidence = 0.3

// Events receives terminal market transitions. Implementations must not
// block; the engine calls them synchronously inside the resolution path.
type Events interface {
	// MarketSettled is invoked once when a market reaches Resolved or
	// Voided, with the verdict that settled it.
	MarketSettled(ctx context.Context, m domain.Market, v domain.Verdict)
}

type noopEvents struct{}

func (noopEvents) MarketSettled(context.Context, domain.Market, domain.Verdict) {}

type fanoutEvents []Events

func (f fanoutEvents) MarketSettled(ctx context.Context, m domain.Market, v domain.Verdict) {
	for _, e := range f {
		e.MarketSettled(ctx, m, v)
	}
}

// Fanout combines several Events sinks into one.
func Fanout(evs ...Events) Events {
	return fanoutEvents(evs)
}

// Config holds the engine's tunable parameters.
type Config struct {
	// VoidBelowConfidence overrides DefaultVoidBelowConfidence when > 0.
	VoidBelowConfidence float64
}

// Engine is the settlement engine: it validates and applies market
// transitions against the persistent stores.
type Engine struct {
	markets   domain.MarketStore
	bets      domain.BetStore
	balances  domain.BalanceStore
	events    Events
	voidBelow float64
	logger    *slog.Logger
	now       func() time.Time

	locks sync.Map // market id -> *sync.Mutex
}

// New creates an Engine. events may be nil.
func New(
	markets domain.MarketStore,
	bets domain.BetStore,
	balances domain.BalanceStore,
	events Events,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if events == nil {
		events = noopEvents{}
	}
	voidBelow := cfg.VoidBelowConfidence
	if voidBelow <= 0 {
		voidBelow = DefaultVoidBelowConfidence
	}
	return &Engine{
		markets:   markets,
		bets:      bets,
		balances:  balances,
		events:    events,
		voidBelow: voidBelow,
		logger:    logger.With(slog.String("component", "engine")),
		now:       time.Now,
	}
}

// SetClock overrides the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// lockMarket serializes mutations of one market and returns the unlock
// function.
func (e *Engine) lockMarket(id uint64) func() {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateMarketParams carries everything needed to open a market.
type CreateMarketParams struct {
	Creator      string
	Question     string
	Description  string
	Category     string
	Kind         domain.MarketKind
	Outcomes     []string
	BetsCloseAt  time.Time
	ResolutionAt time.Time
	EventID      string
	Sport        string
	League       string
}

func validKind(k domain.MarketKind) bool {
	switch k {
	case domain.MarketKindHeadToHead, domain.MarketKindTotalPoints, domain.MarketKindBothScore:
		return true
	}
	return false
}

// CreateMarket validates the parameters and opens a new market, returning
// its id.
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (uint64, error) {
	now := e.now()

	if p.Question == "" || len(p.Question) > domain.MaxQuestionLen {
		return 0, fmt.Errorf("%w: question must be 1-%d characters", domain.ErrInvalidMarket, domain.MaxQuestionLen)
	}
	if len(p.Description) > domain.MaxDescriptionLen {
		return 0, fmt.Errorf("%w: description exceeds %d characters", domain.ErrInvalidMarket, domain.MaxDescriptionLen)
	}
	if len(p.Outcomes) < domain.MinOutcomes || len(p.Outcomes) > domain.MaxOutcomes {
		return 0, fmt.Errorf("%w: need %d-%d outcomes", domain.ErrInvalidMarket, domain.MinOutcomes, domain.MaxOutcomes)
	}
	for i, o := range p.Outcomes {
		if o == "" || len(o) > domain.MaxOutcomeLen {
			return 0, fmt.Errorf("%w: outcome %d must be 1-%d characters", domain.ErrInvalidMarket, i, domain.MaxOutcomeLen)
		}
		for j := i + 1; j < len(p.Outcomes); j++ {
			if o == p.Outcomes[j] {
				return 0, fmt.Errorf("%w: duplicate outcome %q", domain.ErrInvalidMarket, o)
			}
		}
	}
	if !p.BetsCloseAt.After(now) {
		return 0, fmt.Errorf("%w: betting deadline must be in the future", domain.ErrInvalidMarket)
	}
	if p.ResolutionAt.Before(p.BetsCloseAt) {
		return 0, fmt.Errorf("%w: resolution time must not precede the betting deadline", domain.ErrInvalidMarket)
	}
	kind := p.Kind
	if kind == "" {
		kind = domain.MarketKindHeadToHead
	}
	if !validKind(kind) {
		return 0, fmt.Errorf("%w: unknown market kind %q", domain.ErrInvalidMarket, p.Kind)
	}

	pools := make([]domain.Amount, len(p.Outcomes))
	for i := range pools {
		pools[i] = domain.ZeroAmount()
	}

	m := domain.Market{
		Creator:         p.Creator,
		Question:        p.Question,
		Description:     p.Description,
		Category:        p.Category,
		Kind:            kind,
		Outcomes:        append([]string(nil), p.Outcomes...),
		OutcomePools:    pools,
		TotalPool:       domain.ZeroAmount(),
		CreatedAt:       now,
		BetsCloseAt:     p.BetsCloseAt,
		ResolutionAt:    p.ResolutionAt,
		ResolvedOutcome: domain.OutcomeUnresolved,
		Status:          domain.MarketStatusActive,
		EventID:         p.EventID,
		Sport:           p.Sport,
		League:          p.League,
	}

	id, err := e.markets.Create(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("engine: create market: %w", err)
	}

	e.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", id),
		slog.String("kind", string(kind)),
		slog.Int("outcomes", len(p.Outcomes)),
	)
	return id, nil
}

// PlaceBet debits the stake from the bettor's balance and adds it to the
// chosen outcome's pool, atomically with recording the bet.
func (e *Engine) PlaceBet(ctx context.Context, bettor string, marketID uint64, outcome uint32, amount domain.Amount) error {
	if !domain.ValidAmount(amount) {
		return domain.ErrInvalidAmount
	}
	if amount.Cmp(domain.MinStake) < 0 {
		return domain.ErrStakeTooSmall
	}

	unlock := e.lockMarket(marketID)
	defer unlock()

	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return fmt.Errorf("engine: place bet: %w", err)
	}

	now := e.now()
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotOpen
	}
	if !now.Before(m.BetsCloseAt) {
		return domain.ErrBettingClosed
	}
	if int(outcome) >= len(m.Outcomes) {
		return domain.ErrInvalidOutcome
	}

	if err := e.balances.Debit(ctx, bettor, amount); err != nil {
		return err
	}

	m.OutcomePools[outcome] = new(uint256.Int).Add(m.OutcomePools[outcome], amount)
	m.TotalPool = new(uint256.Int).Add(m.TotalPool, amount)
	m.TotalBets++

	if err := e.markets.Update(ctx, m); err != nil {
		// Return the stake so the debit does not strand funds.
		if cerr := e.balances.Credit(ctx, bettor, amount); cerr != nil {
			e.logger.ErrorContext(ctx, "failed to refund stake after store error",
				slog.String("bettor", bettor),
				slog.String("error", cerr.Error()),
			)
		}
		return fmt.Errorf("engine: place bet: %w", err)
	}

	if _, err := e.bets.Append(ctx, domain.Bet{
		MarketID: marketID,
		Bettor:   bettor,
		Outcome:  outcome,
		Amount:   new(uint256.Int).Set(amount),
		PlacedAt: now,
	}); err != nil {
		// A pool without its bet record is unaccountable at claim time: roll
		// the market back and return the stake.
		m.OutcomePools[outcome] = new(uint256.Int).Sub(m.OutcomePools[outcome], amount)
		m.TotalPool = new(uint256.Int).Sub(m.TotalPool, amount)
		m.TotalBets--
		if uerr := e.markets.Update(ctx, m); uerr != nil {
			e.logger.ErrorContext(ctx, "failed to roll back pools after bet record error",
				slog.Uint64("market_id", marketID),
				slog.String("error", uerr.Error()),
			)
		}
		if cerr := e.balances.Credit(ctx, bettor, amount); cerr != nil {
			e.logger.ErrorContext(ctx, "failed to refund stake after bet record error",
				slog.String("bettor", bettor),
				slog.String("error", cerr.Error()),
			)
		}
		return fmt.Errorf("engine: record bet: %w", err)
	}

	e.logger.InfoContext(ctx, "bet placed",
		slog.Uint64("market_id", marketID),
		slog.String("bettor", bettor),
		slog.Uint64("outcome", uint64(outcome)),
		slog.String("amount", amount.Dec()),
	)
	return nil
}

// Deposit credits an account's withdrawable balance.
func (e *Engine) Deposit(ctx context.Context, account string, amount domain.Amount) error {
	if !domain.ValidAmount(amount) || amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	if err := e.balances.Credit(ctx, account, amount); err != nil {
		return fmt.Errorf("engine: deposit: %w", err)
	}
	return nil
}

// Withdraw debits an account's withdrawable balance.
func (e *Engine) Withdraw(ctx context.Context, account string, amount domain.Amount) error {
	if !domain.ValidAmount(amount) || amount.IsZero() {
		return domain.ErrInvalidAmount
	}
	return e.balances.Debit(ctx, account, amount)
}

// Balance returns an account's withdrawable balance.
func (e *Engine) Balance(ctx context.Context, account string) (domain.Amount, error) {
	return e.balances.Get(ctx, account)
}
