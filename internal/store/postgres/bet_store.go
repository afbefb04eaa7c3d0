package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settld/settld/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, market_id, bettor, outcome, amount, placed_at, claimed`

// Append inserts a bet and returns its assigned id.
func (s *BetStore) Append(ctx context.Context, b domain.Bet) (int64, error) {
	const query = `
		INSERT INTO bets (market_id, bettor, outcome, amount, placed_at, claimed)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		int64(b.MarketID), b.Bettor, int32(b.Outcome), b.Amount.Dec(), b.PlacedAt, b.Claimed,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: append bet: %w", err)
	}
	return id, nil
}

// ListByMarket returns all bets on a market in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY id`, int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %d: %w", marketID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// ListByBettor returns all bets placed by an account in placement order.
func (s *BetStore) ListByBettor(ctx context.Context, bettor string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE bettor = $1 ORDER BY id`, bettor)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", bettor, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// MarkClaimed sets the claimed flag on the given bets in one statement.
func (s *BetStore) MarkClaimed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark bets claimed: %w", err)
	}
	return nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		var (
			b        domain.Bet
			marketID int64
			outcome  int32
			amount   string
		)
		if err := rows.Scan(&b.ID, &marketID, &b.Bettor, &outcome, &amount, &b.PlacedAt, &b.Claimed); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.MarketID = uint64(marketID)
		b.Outcome = uint32(outcome)
		a, err := domain.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode bet amount %q: %w", amount, err)
		}
		b.Amount = a
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}

var _ domain.BetStore = (*BetStore)(nil)
