package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. The liquidity
// pool is stored as a JSONB column on the market row, so locking the row
// locks the pool.
type MarketStore struct {
	q Querier
}

// NewMarketStore creates a MarketStore bound to the given Querier.
func NewMarketStore(q Querier) *MarketStore {
	return &MarketStore{q: q}
}

const marketSelectCols = `id, question, creator_id, pool, close_time,
	created_time, resolved, resolution, resolved_time`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m    domain.Market
		pool []byte
	)
	err := row.Scan(
		&m.ID, &m.Question, &m.CreatorID, &pool, &m.CloseTime,
		&m.CreatedTime, &m.Resolved, &m.Resolution, &m.ResolvedTime,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if err := json.Unmarshal(pool, &m.Pool); err != nil {
		return domain.Market{}, fmt.Errorf("decode pool: %w", err)
	}
	return m, nil
}

// Create inserts a new market with its seeded pool.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	pool, err := json.Marshal(m.Pool)
	if err != nil {
		return fmt.Errorf("postgres: encode pool: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO markets (
			id, question, creator_id, pool, close_time,
			created_time, resolved, resolution, resolved_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Question, m.CreatorID, pool, m.CloseTime,
		m.CreatedTime, m.Resolved, m.Resolution, m.ResolvedTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %q: %w", m.ID, err)
	}
	return nil
}

// GetByID returns the market or domain.ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate reads the market under FOR UPDATE, serializing concurrent
// settlements on the same market at the database layer. Only meaningful
// inside a transaction.
func (s *MarketStore) GetForUpdate(ctx context.Context, id string) (domain.Market, error) {
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *MarketStore) get(ctx context.Context, id, suffix string) (domain.Market, error) {
	m, err := scanMarket(s.q.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`+suffix, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: market %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %q: %w", id, err)
	}
	return m, nil
}

// UpdatePool writes the post-trade pool back to the market row.
func (s *MarketStore) UpdatePool(ctx context.Context, id string, pool domain.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("postgres: encode pool: %w", err)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE markets SET pool = $2 WHERE id = $1`, id, data,
	)
	if err != nil {
		return fmt.Errorf("postgres: update pool for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetResolution marks the market resolved.
func (s *MarketStore) SetResolution(ctx context.Context, id, resolution string, resolvedAt time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE markets
		SET resolved = TRUE, resolution = $2, resolved_time = $3
		WHERE id = $1`,
		id, resolution, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: set resolution for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ClearResolution reopens an unresolved market with a fresh close time.
func (s *MarketStore) ClearResolution(ctx context.Context, id string, closeTime time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE markets
		SET resolved = FALSE, resolution = '', resolved_time = NULL, close_time = $2
		WHERE id = $1`,
		id, closeTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: clear resolution for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListOpen returns unresolved markets ordered by creation time.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE NOT resolved ORDER BY created_time`
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
		return nil, fmt.Errorf("postgres: list open markets: %w", err)
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
	return markets, rows.Err()
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
