// Package memory implements the domain store interfaces with in-process
// maps. It backs the "memory" storage driver used in development and tests;
// production deployments use the postgres driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/settld/settld/internal/domain"
)

// Store implements domain.MarketStore, domain.BetStore and
// domain.BalanceStore over in-process maps. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	markets  map[uint64]domain.Market
	nextID   uint64
	bets     []domain.Bet
	balances map[string]*uint256.Int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		markets:  make(map[uint64]domain.Market),
		balances: make(map[string]*uint256.Int),
	}
}

// cloneMarket deep-copies a market so callers can never alias stored pools.
func cloneMarket(m domain.Market) domain.Market {
	c := m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.OutcomePools = make([]domain.Amount, len(m.OutcomePools))
	for i, p := range m.OutcomePools {
		c.OutcomePools[i] = new(uint256.Int).Set(p)
	}
	if m.TotalPool != nil {
		c.TotalPool = new(uint256.Int).Set(m.TotalPool)
	}
	return c
}

func cloneBet(b domain.Bet) domain.Bet {
	c := b
	if b.Amount != nil {
		c.Amount = new(uint256.Int).Set(b.Amount)
	}
	return c
}

// Create assigns the next market id and stores the market. IDs start at 1,
// matching the BIGSERIAL sequence of the postgres driver.
func (s *Store) Create(_ context.Context, m domain.Market) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m.ID = s.nextID
	s.markets[m.ID] = cloneMarket(m)
	return m.ID, nil
}

// Get returns the market with the given id.
func (s *Store) Get(_ context.Context, id uint64) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

// Update overwrites an existing market.
func (s *Store) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

// List returns markets newest-first, filtered by category. Status filtering
// and pagination happen in the engine, which knows the view-time status.
func (s *Store) List(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Market
	for id := s.nextID; id > 0; id-- {
		m, ok := s.markets[id-1]
		if !ok {
			continue
		}
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		out = append(out, cloneMarket(m))
	}
	return out, nil
}

// Count returns the number of stored markets.
func (s *Store) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.markets)), nil
}

// Append stores a bet and assigns its id.
func (s *Store) Append(_ context.Context, b domain.Bet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = int64(len(s.bets)) + 1
	s.bets = append(s.bets, cloneBet(b))
	return b.ID, nil
}

// ListByMarket returns all bets on a market in placement order.
func (s *Store) ListByMarket(_ context.Context, marketID uint64) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.MarketID == marketID {
			out = append(out, cloneBet(b))
		}
	}
	return out, nil
}

// ListByBettor returns all bets placed by an account in placement order.
func (s *Store) ListByBettor(_ context.Context, bettor string) ([]domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.Bettor == bettor {
			out = append(out, cloneBet(b))
		}
	}
	return out, nil
}

// MarkClaimed sets the claimed flag on the given bets.
func (s *Store) MarkClaimed(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := make(map[int64]bool, len(ids))
	for _, id := range ids {
		idx[id] = true
	}
	for i := range s.bets {
		if idx[s.bets[i].ID] {
			s.bets[i].Claimed = true
		}
	}
	return nil
}

// GetBalance returns the account balance, zero for unknown accounts.
func (s *Store) GetBalance(_ context.Context, account string) (domain.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[account]; ok {
		return new(uint256.Int).Set(b), nil
	}
	return uint256.NewInt(0), nil
}

// Credit adds to the account balance.
func (s *Store) Credit(_ context.Context, account string, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.balances[account]
	if !ok {
		cur = uint256.NewInt(0)
	}
	s.balances[account] = new(uint256.Int).Add(cur, amount)
	return nil
}

// Debit subtracts from the account balance, refusing to go below zero.
func (s *Store) Debit(_ context.Context, account string, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.balances[account]
	if !ok || cur.Cmp(amount) < 0 {
		return domain.ErrInsufficientBalance
	}
	s.balances[account] = new(uint256.Int).Sub(cur, amount)
	return nil
}

// Balances returns a domain.BalanceStore view of the store. The Store itself
// cannot satisfy the interface because Get is already taken by
// domain.MarketStore.
func (s *Store) Balances() domain.BalanceStore {
	return balanceView{s}
}

type balanceView struct{ s *Store }

func (v balanceView) Get(ctx context.Context, account string) (domain.Amount, error) {
	return v.s.GetBalance(ctx, account)
}

func (v balanceView) Credit(ctx context.Context, account string, amount domain.Amount) error {
	return v.s.Credit(ctx, account, amount)
}

func (v balanceView) Debit(ctx context.Context, account string, amount domain.Amount) error {
	return v.s.Debit(ctx, account, amount)
}

// PendingStore is an in-process domain.PendingResolutionStore with TTL
// expiry, mirroring the redis-backed implementation.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	now     func() time.Time
}

type pendingEntry struct {
	p       domain.PendingResolution
	expires time.Time
}

// NewPendingStore creates an empty PendingStore.
func NewPendingStore() *PendingStore {
	return &PendingStore{
		entries: make(map[string]pendingEntry),
		now:     time.Now,
	}
}

// Put records a pending resolution under its token.
func (ps *PendingStore) Put(_ context.Context, p domain.PendingResolution, ttl time.Duration) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.entries[p.Token] = pendingEntry{p: p, expires: ps.now().Add(ttl)}
	return nil
}

// Take removes and returns the pending resolution for a token. Expired or
// unknown tokens yield domain.ErrRequestUnknown.
func (ps *PendingStore) Take(_ context.Context, token string) (domain.PendingResolution, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	e, ok := ps.entries[token]
	if !ok {
		return domain.PendingResolution{}, domain.ErrRequestUnknown
	}
	delete(ps.entries, token)
	if ps.now().After(e.expires) {
		return domain.PendingResolution{}, domain.ErrRequestUnknown
	}
	return e.p, nil
}

// Interface checks.
var (
	_ domain.MarketStore            = (*Store)(nil)
	_ domain.BetStore               = (*Store)(nil)
	_ domain.PendingResolutionStore = (*PendingStore)(nil)
)
