package postgres

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settld/settld/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Balance
// arithmetic happens in Go on 128-bit values, so every mutation reads the row
// under FOR UPDATE inside a transaction.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get returns the account balance, zero for unknown accounts.
func (s *BalanceStore) Get(ctx context.Context, account string) (domain.Amount, error) {
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM balances WHERE account = $1`, account).Scan(&balance)
	if err == pgx.ErrNoRows {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance for %s: %w", account, err)
	}
	a, err := domain.ParseAmount(balance)
	if err != nil {
		return nil, fmt.Errorf("postgres: decode balance %q: %w", balance, err)
	}
	return a, nil
}

// Credit adds to the account balance.
func (s *BalanceStore) Credit(ctx context.Context, account string, amount domain.Amount) error {
	return s.mutate(ctx, account, func(cur *uint256.Int) (*uint256.Int, error) {
		return new(uint256.Int).Add(cur, amount), nil
	})
}

// Debit subtracts from the account balance, refusing to go below zero.
func (s *BalanceStore) Debit(ctx context.Context, account string, amount domain.Amount) error {
	return s.mutate(ctx, account, func(cur *uint256.Int) (*uint256.Int, error) {
		if cur.Cmp(amount) < 0 {
			return nil, domain.ErrInsufficientBalance
		}
		return new(uint256.Int).Sub(cur, amount), nil
	})
}

// mutate applies fn to the current balance under a row lock and writes the
// result back, creating the row on first touch.
func (s *BalanceStore) mutate(ctx context.Context, account string, fn func(*uint256.Int) (*uint256.Int, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin balance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (account, balance) VALUES ($1, '0')
		 ON CONFLICT (account) DO NOTHING`, account); err != nil {
		return fmt.Errorf("postgres: ensure balance row for %s: %w", account, err)
	}

	var balance string
	if err := tx.QueryRow(ctx,
		`SELECT balance FROM balances WHERE account = $1 FOR UPDATE`, account).Scan(&balance); err != nil {
		return fmt.Errorf("postgres: lock balance for %s: %w", account, err)
	}

	cur, err := domain.ParseAmount(balance)
	if err != nil {
		return fmt.Errorf("postgres: decode balance %q: %w", balance, err)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET balance = $2, updated_at = NOW() WHERE account = $1`,
		account, next.Dec()); err != nil {
		return fmt.Errorf("postgres: update balance for %s: %w", account, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit balance tx: %w", err)
	}
	return nil
}

var _ domain.BalanceStore = (*BalanceStore)(nil)
