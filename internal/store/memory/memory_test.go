package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
	"github.com/settld/settld/internal/store/memory"
)

func testMarket() domain.Market {
	return domain.Market{
		Creator:      "alice.test",
		Question:     "Who wins?",
		Kind:         domain.MarketKindHeadToHead,
		Outcomes:     []string{"A", "B"},
		OutcomePools: []domain.Amount{uint256.NewInt(0), uint256.NewInt(0)},
		TotalPool:    uint256.NewInt(0),
		Status:       domain.MarketStatusActive,
	}
}

func TestCreateAssignsSequentialIDsFromOne(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	// IDs must start at 1 like the postgres BIGSERIAL sequence, so callers
	// see the same id space regardless of the storage driver.
	for want := uint64(1); want <= 3; want++ {
		id, err := s.Create(ctx, testMarket())
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if id != want {
			t.Fatalf("market id = %d, want %d", id, want)
		}
	}

	if _, err := s.Get(ctx, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(0) = %v, want ErrNotFound", err)
	}
}

func TestPendingStoreExpiry(t *testing.T) {
	ps := memory.NewPendingStore()
	ctx := context.Background()

	if err := ps.Put(ctx, domain.PendingResolution{
		Token:       "tok-1",
		MarketID:    1,
		Requester:   "bob.test",
		Path:        domain.PathCompute,
		RequestedAt: time.Now(),
	}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	pr, err := ps.Take(ctx, "tok-1")
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if pr.MarketID != 1 {
		t.Errorf("market id = %d, want 1", pr.MarketID)
	}

	// Consumed: a second take must fail.
	if _, err := ps.Take(ctx, "tok-1"); !errors.Is(err, domain.ErrRequestUnknown) {
		t.Errorf("second take = %v, want ErrRequestUnknown", err)
	}
}
