package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	q Querier
}

// NewAccountStore creates an AccountStore bound to the given Querier (pool
// or transaction).
func NewAccountStore(q Querier) *AccountStore {
	return &AccountStore{q: q}
}

const accountSelectCols = `id, username, balance, total_deposits, created_time`

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO accounts (id, username, balance, total_deposits, created_time)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Username, a.Balance, a.TotalDeposits, a.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: create account %q: %w", a.ID, err)
	}
	return nil
}

// GetByID returns the account or domain.ErrNotFound.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	err := s.q.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Username, &a.Balance, &a.TotalDeposits, &a.CreatedTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("postgres: account %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("postgres: get account %q: %w", id, err)
	}
	return a, nil
}

// IncrementBalance adjusts the balance and deposit counters by the given
// signed deltas.
func (s *AccountStore) IncrementBalance(ctx context.Context, id string, amount, deposit float64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $2, total_deposits = total_deposits + $3
		WHERE id = $1`,
		id, amount, deposit,
	)
	if err != nil {
		return fmt.Errorf("postgres: increment balance for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: account %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List returns accounts ordered by id with pagination.
func (s *AccountStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	query := `SELECT ` + accountSelectCols + ` FROM accounts ORDER BY id`
	args := []any{}
	if opts.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET $2`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Balance, &a.TotalDeposits, &a.CreatedTime); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Compile-time interface check.
var _ domain.AccountStore = (*AccountStore)(nil)
