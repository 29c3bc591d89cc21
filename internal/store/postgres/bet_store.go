package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	q Querier
}

// NewBetStore creates a BetStore bound to the given Querier.
func NewBetStore(q Querier) *BetStore {
	return &BetStore{q: q}
}

const betSelectCols = `id, user_id, market_id, outcome, amount, shares,
	prob_before, prob_after, created_time`

func scanBetRows(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		var b domain.Bet
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.MarketID, &b.Outcome, &b.Amount, &b.Shares,
			&b.ProbBefore, &b.ProbAfter, &b.CreatedTime,
		); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// Insert appends one bet row.
func (s *BetStore) Insert(ctx context.Context, b domain.Bet) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO bets (
			id, user_id, market_id, outcome, amount, shares,
			prob_before, prob_after, created_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.UserID, b.MarketID, b.Outcome, b.Amount, b.Shares,
		b.ProbBefore, b.ProbAfter, b.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bet %q: %w", b.ID, err)
	}
	return nil
}

// ListByMarket returns a market's bets oldest first.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE market_id = $1 ORDER BY created_time`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %q: %w", marketID, err)
	}
	defer rows.Close()
	return scanBetRows(rows)
}

// SumShares returns the user's net share position in one outcome. Sales are
// stored as negative-share bets, so a plain sum is the position.
func (s *BetStore) SumShares(ctx context.Context, marketID, userID, outcome string) (float64, error) {
	var sum float64
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(shares), 0) FROM bets
		WHERE market_id = $1 AND user_id = $2 AND outcome = $3`,
		marketID, userID, outcome,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum shares for %q/%q: %w", marketID, userID, err)
	}
	return sum, nil
}

// ListBefore returns all bets created strictly before the cutoff, for
// archival.
func (s *BetStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Bet, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE created_time < $1 ORDER BY created_time`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets before %s: %w", before, err)
	}
	defer rows.Close()
	return scanBetRows(rows)
}

// Compile-time interface check.
var _ domain.BetStore = (*BetStore)(nil)
