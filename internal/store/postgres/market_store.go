package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settld/settld/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, creator, question, description, category, kind,
	outcomes, outcome_pools, total_pool, total_bets,
	created_at, bets_close_at, resolution_at,
	resolved_outcome, status, event_id, sport, league`

// Create inserts a new market and returns its assigned id.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (uint64, error) {
	const query = `
		INSERT INTO markets (
			creator, question, description, category, kind,
			outcomes, outcome_pools, total_pool, total_bets,
			created_at, bets_close_at, resolution_at,
			resolved_outcome, status, event_id, sport, league
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16, $17
		)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		m.Creator, m.Question, m.Description, m.Category, string(m.Kind),
		m.Outcomes, encodePools(m.OutcomePools), m.TotalPool.Dec(), int32(m.TotalBets),
		m.CreatedAt, m.BetsCloseAt, m.ResolutionAt,
		m.ResolvedOutcome, string(m.Status), m.EventID, m.Sport, m.League,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create market: %w", err)
	}
	return uint64(id), nil
}

// Get retrieves a market by id.
func (s *MarketStore) Get(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// Update overwrites the mutable fields of an existing market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			outcome_pools    = $2,
			total_pool       = $3,
			total_bets       = $4,
			resolved_outcome = $5,
			status           = $6,
			updated_at       = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(m.ID),
		encodePools(m.OutcomePools), m.TotalPool.Dec(), int32(m.TotalBets),
		m.ResolvedOutcome, string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns markets newest-first, filtered by category. Status filtering
// and pagination happen in the engine, which knows the view-time status.
func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets`
	args := []any{}
	if f.Category != "" {
		query += ` WHERE category = $1`
		args = append(args, f.Category)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (uint64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return uint64(count), nil
}

func encodePools(pools []domain.Amount) []string {
	out := make([]string, len(pools))
	for i, p := range pools {
		out[i] = p.Dec()
	}
	return out
}

// scanMarket scans one market row, decoding the TEXT amount columns.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m         domain.Market
		id        int64
		kind      string
		status    string
		pools     []string
		totalPool string
		totalBets int32
	)
	err := row.Scan(
		&id, &m.Creator, &m.Question, &m.Description, &m.Category, &kind,
		&m.Outcomes, &pools, &totalPool, &totalBets,
		&m.CreatedAt, &m.BetsCloseAt, &m.ResolutionAt,
		&m.ResolvedOutcome, &status, &m.EventID, &m.Sport, &m.League,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.ID = uint64(id)
	m.Kind = domain.MarketKind(kind)
	m.Status = domain.MarketStatus(status)
	m.TotalBets = uint32(totalBets)

	m.OutcomePools = make([]domain.Amount, len(pools))
	for i, p := range pools {
		a, err := domain.ParseAmount(p)
		if err != nil {
			return domain.Market{}, fmt.Errorf("decode pool %d %q: %w", i, p, err)
		}
		m.OutcomePools[i] = a
	}
	if m.TotalPool, err = domain.ParseAmount(totalPool); err != nil {
		return domain.Market{}, fmt.Errorf("decode total pool %q: %w", totalPool, err)
	}
	return m, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
