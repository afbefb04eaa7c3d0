package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/engine"
)

// settle drives a market through betting and a terminal resolution so claim
// behavior can be tested in isolation.
func (f *fixture) settle(t *testing.T, v domain.Verdict, ev *domain.EventRecord, stakes []struct {
	bettor  string
	outcome uint32
	amount  uint64
}) uint64 {
	t.Helper()
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A FC", "B United")
	for _, s := range stakes {
		f.fund(t, s.bettor, units(s.amount))
		if err := f.eng.PlaceBet(ctx, s.bettor, id, s.outcome, units(s.amount)); err != nil {
			t.Fatalf("place bet: %v", err)
		}
	}

	f.advance(3 * time.Hour)
	res, err := f.eng.ApplyResolution(ctx, id, v, ev)
	if err != nil {
		t.Fatalf("apply resolution: %v", err)
	}
	if res.Status == engine.ApplyNoop {
		t.Fatalf("market did not settle: %s", res.Reason)
	}
	return id
}

func TestClaimProportionalPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// bob holds 100 of a 300-unit winning pool; total pool is 1000.
	id := f.settle(t,
		domain.Verdict{Outcome: 0, Confidence: 1.0, Reason: "A FC wins"},
		finalEvent(2, 1),
		[]struct {
			bettor  string
			outcome uint32
			amount  uint64
		}{
			{"bob.test", 0, 100},
			{"carol.test", 0, 200},
			{"dave.test", 1, 700},
		},
	)

	payout, err := f.eng.Claim(ctx, id, "bob.test")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 100u * 1000u / 300u with u = 10^21, truncated.
	want := "333333333333333333333333"
	if payout.Dec() != want {
		t.Errorf("payout = %s, want %s", payout.Dec(), want)
	}

	bal, err := f.eng.Balance(ctx, "bob.test")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Dec() != want {
		t.Errorf("balance after claim = %s, want %s", bal.Dec(), want)
	}
}

func TestClaimPayoutsNeverExceedPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.settle(t,
		domain.Verdict{Outcome: 0, Confidence: 1.0},
		finalEvent(3, 0),
		[]struct {
			bettor  string
			outcome uint32
			amount  uint64
		}{
			{"bob.test", 0, 100},
			{"carol.test", 0, 200},
			{"dave.test", 1, 700},
		},
	)

	total := units(0)
	for _, w := range []string{"bob.test", "carol.test"} {
		payout, err := f.eng.Claim(ctx, id, w)
		if err != nil {
			t.Fatalf("claim %s: %v", w, err)
		}
		total.Add(total, payout)
	}
	if total.Cmp(units(1000)) > 0 {
		t.Errorf("winners drew %s, more than the %s pool", total.Dec(), units(1000).Dec())
	}
}

func TestClaimLoserGetsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.settle(t,
		domain.Verdict{Outcome: 0, Confidence: 1.0},
		finalEvent(2, 1),
		[]struct {
			bettor  string
			outcome uint32
			amount  uint64
		}{
			{"bob.test", 0, 100},
			{"dave.test", 1, 700},
		},
	)

	if _, err := f.eng.Claim(ctx, id, "dave.test"); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("loser claim = %v, want ErrNothingToClaim", err)
	}
}

func TestClaimVoidedRefundsStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A drawn match in a two-outcome market voids it; everyone gets their
	// stake back regardless of which side they took.
	id := f.settle(t,
		domain.Verdict{Outcome: domain.OutcomeUnresolved, Confidence: 0, Reason: "draw in a 2-way market"},
		finalEvent(1, 1),
		[]struct {
			bettor  string
			outcome uint32
			amount  uint64
		}{
			{"bob.test", 0, 100},
			{"dave.test", 1, 700},
		},
	)

	for _, c := range []struct {
		bettor string
		stake  uint64
	}{
		{"bob.test", 100},
		{"dave.test", 700},
	} {
		payout, err := f.eng.Claim(ctx, id, c.bettor)
		if err != nil {
			t.Fatalf("claim %s: %v", c.bettor, err)
		}
		if payout.Cmp(units(c.stake)) != 0 {
			t.Errorf("%s refund = %s, want %s", c.bettor, payout.Dec(), units(c.stake).Dec())
		}
	}
}

func TestClaimTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.settle(t,
		domain.Verdict{Outcome: 0, Confidence: 1.0},
		finalEvent(2, 1),
		[]struct {
			bettor  string
			outcome uint32
			amount  uint64
		}{
			{"bob.test", 0, 100},
			{"dave.test", 1, 700},
		},
	)

	if _, err := f.eng.Claim(ctx, id, "bob.test"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := f.eng.Claim(ctx, id, "bob.test"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second claim = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two winning bets from the same bettor are claimed together; a repeat
	// claim aborts even though neither bet was individually retried.
	id := f.settle(t,
		domain.Verdict{Outcome: 0, Confidence: 1.0},
		finalEvent(2, 1),
		[]struct {
			bettor  string
			outcome uint32
			amount  uint64
		}{
			{"bob.test", 0, 100},
			{"bob.test", 0, 100},
			{"dave.test", 1, 800},
		},
	)

	payout, err := f.eng.Claim(ctx, id, "bob.test")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// 200u of a 200u winning pool: the whole 1000u pool.
	if payout.Cmp(units(1000)) != 0 {
		t.Errorf("payout = %s, want %s", payout.Dec(), units(1000).Dec())
	}
	if _, err := f.eng.Claim(ctx, id, "bob.test"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("repeat claim = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimBeforeSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.createMarket(t, domain.MarketKindHeadToHead, "A", "B")
	f.fund(t, "bob.test", units(100))
	if err := f.eng.PlaceBet(ctx, "bob.test", id, 0, units(100)); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	if _, err := f.eng.Claim(ctx, id, "bob.test"); !errors.Is(err, domain.ErrNotSettled) {
		t.Errorf("claim on open market = %v, want ErrNotSettled", err)
	}
}
