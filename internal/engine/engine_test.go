package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
	"github.com/settld/settld/internal/store/memory"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// unit is 10^21 base units, so 100 units clear the 0.1-token minimum stake.
var unit = uint256.MustFromDecimal("1000000000000000000000")

func units(n uint64) domain.Amount {
	return new(uint256.Int).Mul(unit, uint256.NewInt(n))
}

type fixture struct {
	eng   *engine.Engine
	store *memory.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: testStart}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.eng = engine.New(f.store, f.store, f.store.Balances(), nil, engine.Config{}, logger)
	f.eng.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) fund(t *testing.T, account string, amount domain.Amount) {
	t.Helper()
	if err := f.eng.Deposit(context.Background(), account, amount); err != nil {
		t.Fatalf("deposit for %s: %v", account, err)
	}
}

func (f *fixture) createMarket(t *testing.T, kind domain.MarketKind, outcomes ...string) uint64 {
	t.Helper()
	id, err := f.eng.CreateMarket(context.Background(), engine.CreateMarketParams{
		Creator:      "alice.test",
		Question:     "Who wins?",
		Kind:         kind,
		Outcomes:     outcomes,
		BetsCloseAt:  f.now.Add(time.Hour),
		ResolutionAt: f.now.Add(2 * time.Hour),
		EventID:      "401547439",
		Sport:        "soccer",
		League:       "uefa.champions",
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return id
}

func finalEvent(home, away int32) *domain.EventRecord {
	return &domain.EventRecord{
		HomeTeam: "A FC", AwayTeam: "B United",
		HomeScore: home, AwayScore: away,
		Status: domain.EventStatusFinal,
	}
}

func TestCreateMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := engine.CreateMarketParams{
		Creator:      "alice.test",
		Question:     "Who wins?",
		Outcomes:     []string{"A", "B"},
		BetsCloseAt:  f.now.Add(time.Hour),
		ResolutionAt: f.now.Add(2 * time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(*engine.CreateMarketParams)
	}{
		{"empty question", func(p *engine.CreateMarketParams) { p.Question = "" }},
		{"too few outcomes", func(p *engine.CreateMarketParams) { p.Outcomes = []string{"A"} }},
		{"too many outcomes", func(p *engine.CreateMarketParams) {
			p.Outcomes = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}
		}},
		{"duplicate outcomes", func(p *engine.CreateMarketParams) { p.Outcomes = []string{"A", "A"} }},
		{"empty outcome", func(p *engine.CreateMarketParams) { p.Outcomes = []string{"A", ""} }},
		{"deadline in the past", func(p *engine.CreateMarketParams) { p.BetsCloseAt = f.now.Add(-time.Minute) }},
		{"resolution before deadline", func(p *engine.CreateMarketParams) {
			p.ResolutionAt = p.BetsCloseAt.Add(-time.Minute)
		}},
		{"unknown kind", func(p *engine.CreateMarketParams) { p.Kind = "parlay" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.Outcomes = append([]string(nil), base.Outcomes...)
			tt.mutate(&p)
			if _, err := f.eng.CreateMarket(ctx, p); !errors.Is(err, domain.ErrInvalidMarket) {
				t.Errorf("CreateMarket = %v, want ErrInvalidMarket", err)
			}
		})
	}
}

func TestPlaceBetPoolInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")
	f.fund(t, "bob.test", units(1000))
	f.fund(t, "carol.test", units(1000))

	stakes := []struct {
		bettor  string
		outcome uint32
		amount  uint64
	}{
		{"bob.test", 0, 100},
		{"carol.test", 1, 250},
		{"bob.test", 1, 400},
		{"carol.test", 0, 150},
	}

	for _, s := range stakes {
		if err := f.eng.PlaceBet(ctx, s.bettor, id, s.outcome, units(s.amount)); err != nil {
			t.Fatalf("place bet: %v", err)
		}

		m, err := f.eng.GetMarket(ctx, id)
		if err != nil {
			t.Fatalf("get market: %v", err)
		}
		sum := uint256.NewInt(0)
		for _, p := range m.OutcomePools {
			sum.Add(sum, p)
		}
		if sum.Cmp(m.TotalPool) != 0 {
			t.Fatalf("total pool %s != sum of outcome pools %s", m.TotalPool.Dec(), sum.Dec())
		}
	}

	m, _ := f.eng.GetMarket(ctx, id)
	if m.TotalPool.Cmp(units(900)) != 0 {
		t.Errorf("total pool = %s, want %s", m.TotalPool.Dec(), units(900).Dec())
	}
	if m.TotalBets != 4 {
		t.Errorf("total bets = %d, want 4", m.TotalBets)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")
	f.fund(t, "bob.test", units(1000))

	if err := f.eng.PlaceBet(ctx, "bob.test", id, 0, units(10)); !errors.Is(err, domain.ErrStakeTooSmall) {
		t.Errorf("tiny stake: got %v, want ErrStakeTooSmall", err)
	}
	if err := f.eng.PlaceBet(ctx, "bob.test", id, 5, units(100)); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Errorf("bad outcome: got %v, want ErrInvalidOutcome", err)
	}
	if err := f.eng.PlaceBet(ctx, "poor.test", id, 0, units(100)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("unfunded bettor: got %v, want ErrInsufficientBalance", err)
	}
	if err := f.eng.PlaceBet(ctx, "bob.test", 999, 0, units(100)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing market: got %v, want ErrNotFound", err)
	}

	// Past the betting deadline the market is closed to new stakes.
	f.advance(61 * time.Minute)
	if err := f.eng.PlaceBet(ctx, "bob.test", id, 0, units(100)); !errors.Is(err, domain.ErrBettingClosed) {
		t.Errorf("after deadline: got %v, want ErrBettingClosed", err)
	}

	// Failed bets must not touch the balance.
	bal, err := f.eng.Balance(ctx, "bob.test")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(units(1000)) != 0 {
		t.Errorf("balance = %s, want %s", bal.Dec(), units(1000).Dec())
	}
}

// failingBetStore delegates to the wrapped store but refuses every append.
type failingBetStore struct {
	domain.BetStore
	err error
}

func (s failingBetStore) Append(context.Context, domain.Bet) (int64, error) {
	return 0, s.err
}

func TestPlaceBetRollsBackWhenRecordFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(f.store, failingBetStore{f.store, errors.New("disk full")},
		f.store.Balances(), nil, engine.Config{}, logger)
	eng.SetClock(func() time.Time { return f.now })

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")
	f.fund(t, "bob.test", units(100))

	if err := eng.PlaceBet(ctx, "bob.test", id, 0, units(100)); err == nil {
		t.Fatal("PlaceBet should fail when the bet cannot be recorded")
	}

	// The stake must be back in the balance and out of the pools: a pool
	// entry with no bet record could never be claimed.
	m, err := f.eng.GetMarket(ctx, id)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if !m.TotalPool.IsZero() || !m.OutcomePools[0].IsZero() {
		t.Errorf("pools not rolled back: total=%s pool[0]=%s",
			m.TotalPool.Dec(), m.OutcomePools[0].Dec())
	}
	if m.TotalBets != 0 {
		t.Errorf("total bets = %d, want 0", m.TotalBets)
	}

	bal, err := f.eng.Balance(ctx, "bob.test")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(units(100)) != 0 {
		t.Errorf("balance = %s, want %s", bal.Dec(), units(100).Dec())
	}

	bets, err := f.eng.MarketBets(ctx, id)
	if err != nil {
		t.Fatalf("market bets: %v", err)
	}
	if len(bets) != 0 {
		t.Errorf("recorded bets = %d, want 0", len(bets))
	}
}

func TestEffectiveStatusClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")

	m, _ := f.eng.GetMarket(ctx, id)
	if m.Status != domain.MarketStatusActive {
		t.Fatalf("status = %s, want active", m.Status)
	}

	f.advance(2 * time.Hour)
	m, _ = f.eng.GetMarket(ctx, id)
	if m.Status != domain.MarketStatusClosed {
		t.Errorf("status after deadline = %s, want closed", m.Status)
	}
}

func TestApplyResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")

	res, err := f.eng.ApplyResolution(ctx, id,
		domain.Verdict{Outcome: 0, Confidence: 1.0, Reason: "A wins 2:1"},
		finalEvent(2, 1),
	)
	if err != nil {
		t.Fatalf("apply resolution: %v", err)
	}
	if res.Status != engine.ApplyResolved {
		t.Fatalf("apply status = %s, want resolved", res.Status)
	}

	m, _ := f.eng.GetMarket(ctx, id)
	if m.Status != domain.MarketStatusResolved || m.ResolvedOutcome != 0 {
		t.Errorf("market = status %s outcome %d, want resolved/0", m.Status, m.ResolvedOutcome)
	}
}

func TestApplyResolutionIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")

	if _, err := f.eng.ApplyResolution(ctx, id,
		domain.Verdict{Outcome: 0, Confidence: 1.0}, finalEvent(2, 1)); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// A second valid verdict, even a contradictory one, must be a no-op.
	res, err := f.eng.ApplyResolution(ctx, id,
		domain.Verdict{Outcome: 1, Confidence: 1.0}, finalEvent(0, 3))
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if res.Status != engine.ApplyNoop {
		t.Errorf("second apply status = %s, want noop", res.Status)
	}

	m, _ := f.eng.GetMarket(ctx, id)
	if m.ResolvedOutcome != 0 {
		t.Errorf("resolved outcome changed to %d", m.ResolvedOutcome)
	}
}

func TestApplyResolutionNonFinalEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")

	ev := finalEvent(2, 1)
	ev.Status = domain.EventStatusInProgress
	res, err := f.eng.ApplyResolution(ctx, id, domain.Verdict{Outcome: 0, Confidence: 1.0}, ev)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Status != engine.ApplyNoop {
		t.Errorf("status = %s, want noop", res.Status)
	}

	// The market stays resolvable.
	m, _ := f.eng.GetMarket(ctx, id)
	if m.Terminal() {
		t.Error("market settled on a non-final event")
	}
}

func TestApplyResolutionVoidsOnIndeterminate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		verdict domain.Verdict
	}{
		{"indeterminate outcome", domain.Verdict{Outcome: domain.OutcomeUnresolved, Confidence: 0, Reason: "draw in a 2-way market"}},
		{"low confidence", domain.Verdict{Outcome: 0, Confidence: 0.2, Reason: "shaky"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")
			res, err := f.eng.ApplyResolution(ctx, id, tt.verdict, finalEvent(1, 1))
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if res.Status != engine.ApplyVoided {
				t.Fatalf("status = %s, want voided", res.Status)
			}
			m, _ := f.eng.GetMarket(ctx, id)
			if m.Status != domain.MarketStatusVoided || m.ResolvedOutcome != domain.OutcomeVoided {
				t.Errorf("market = status %s outcome %d, want voided/-2", m.Status, m.ResolvedOutcome)
			}
		})
	}
}

func TestApplyResolutionOutOfBoundsVerdict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")
	res, err := f.eng.ApplyResolution(ctx, id,
		domain.Verdict{Outcome: 7, Confidence: 1.0}, finalEvent(2, 1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Status != engine.ApplyNoop {
		t.Errorf("status = %s, want noop", res.Status)
	}
	m, _ := f.eng.GetMarket(ctx, id)
	if m.Terminal() {
		t.Error("market settled on an out-of-bounds verdict")
	}
}

func TestApplyResolutionMissingMarket(t *testing.T) {
	f := newFixture(t)

	res, err := f.eng.ApplyResolution(context.Background(), 42,
		domain.Verdict{Outcome: 0, Confidence: 1.0}, finalEvent(2, 1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Status != engine.ApplyNoop {
		t.Errorf("status = %s, want noop", res.Status)
	}
}
