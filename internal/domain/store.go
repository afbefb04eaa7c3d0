package domain

import (
	"context"
	"time"
)

// MarketFilter selects markets for list queries. Zero values mean "no
// filter"; Status is matched against the effective (view-time) status.
type MarketFilter struct {
	Category string
	Status   MarketStatus
	Limit    int
	Offset   int
}

// MarketStore persists markets. Create assigns a monotonically increasing id.
type MarketStore interface {
	Create(ctx context.Context, m Market) (uint64, error)
	Get(ctx context.Context, id uint64) (Market, error)
	// Update overwrites the mutable fields (pools, totals, status, resolved
	// outcome) of an existing market.
	Update(ctx context.Context, m Market) error
	List(ctx context.Context, f MarketFilter) ([]Market, error)
	Count(ctx context.Context) (uint64, error)
}

// BetStore persists bets. Append assigns the bet id.
type BetStore interface {
	Append(ctx context.Context, b Bet) (int64, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]Bet, error)
	ListByBettor(ctx context.Context, bettor string) ([]Bet, error)
	// MarkClaimed sets the claimed flag on the given bets. Implementations
	// must apply the whole set atomically.
	MarkClaimed(ctx context.Context, ids []int64) error
}

// BalanceStore is the withdrawable balance ledger. Balances are never
// negative: Debit fails with ErrInsufficientBalance rather than going below
// zero.
type BalanceStore interface {
	Get(ctx context.Context, account string) (Amount, error)
	Credit(ctx context.Context, account string, amount Amount) error
	Debit(ctx context.Context, account string, amount Amount) error
}

// ResolutionPath identifies which oracle path produced a pending request.
type ResolutionPath string

const (
	PathCompute     ResolutionPath = "compute"
	PathAttestation ResolutionPath = "attestation"
)

// PendingResolution is one in-flight oracle exchange awaiting its callback.
// The token is the capability passed back by the callback; everything the
// callback needs beyond the upstream payload lives here, not on the call
// stack.
type PendingResolution struct {
	Token         string
	MarketID      uint64
	Requester     string
	Path          ResolutionPath
	AttestationID uint64
	// Claimed holds the caller's asserted event values on the attestation
	// path, for cross-checking against the attested transcript. Nil on the
	// compute path.
	Claimed     *EventRecord
	RequestedAt time.Time
}

// PendingResolutionStore tracks in-flight oracle requests. Take removes and
// returns a request, guaranteeing each callback token is consumed at most
// once; entries expire after their TTL so abandoned requests never block a
// retry.
type PendingResolutionStore interface {
	Put(ctx context.Context, p PendingResolution, ttl time.Duration) error
	Take(ctx context.Context, token string) (PendingResolution, error)
}

// BlobWriter stores opaque objects, keyed by path. Used to archive oracle
// transcripts for off-line replay.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether one more request under the key is permitted, and
	// counts it if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
