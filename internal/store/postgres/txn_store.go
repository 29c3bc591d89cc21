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

// TxnStore implements domain.TxnStore using PostgreSQL. Rows are insert-only
// except for the reverted flag; there is deliberately no update or delete of
// any other column.
type TxnStore struct {
	q Querier
}

// NewTxnStore creates a TxnStore bound to the given Querier.
func NewTxnStore(q Querier) *TxnStore {
	return &TxnStore{q: q}
}

const txnSelectCols = `id, created_time, from_id, from_type, to_id, to_type,
	amount, category, token, data, reverted`

func scanTxn(row pgx.Row) (domain.Txn, error) {
	var (
		t    domain.Txn
		data []byte
	)
	err := row.Scan(
		&t.ID, &t.CreatedTime, &t.FromID, &t.FromType, &t.ToID, &t.ToType,
		&t.Amount, &t.Category, &t.Token, &data, &t.Reverted,
	)
	if err != nil {
		return domain.Txn{}, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &t.Data); err != nil {
			return domain.Txn{}, fmt.Errorf("decode data payload: %w", err)
		}
	}
	return t, nil
}

// Insert appends one txn row.
func (s *TxnStore) Insert(ctx context.Context, txn domain.Txn) error {
	var data []byte
	if txn.Data != nil {
		var err error
		if data, err = json.Marshal(txn.Data); err != nil {
			return fmt.Errorf("postgres: encode txn data: %w", err)
		}
	}

	_, err := s.q.Exec(ctx, `
		INSERT INTO txns (
			id, created_time, from_id, from_type, to_id, to_type,
			amount, category, token, data, reverted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.CreatedTime, txn.FromID, txn.FromType, txn.ToID, txn.ToType,
		txn.Amount, txn.Category, txn.Token, data, txn.Reverted,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert txn %q: %w", txn.ID, err)
	}
	return nil
}

// GetByID returns the txn or domain.ErrNotFound.
func (s *TxnStore) GetByID(ctx context.Context, id string) (domain.Txn, error) {
	t, err := scanTxn(s.q.QueryRow(ctx,
		`SELECT `+txnSelectCols+` FROM txns WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Txn{}, fmt.Errorf("postgres: txn %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Txn{}, fmt.Errorf("postgres: get txn %q: %w", id, err)
	}
	return t, nil
}

// MarkReverted flips the reverted flag on one txn row, the only mutation the
// schema permits after insert.
func (s *TxnStore) MarkReverted(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE txns SET reverted = TRUE WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark txn %q reverted: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: txn %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListContractPayouts returns the unreverted resolution payouts a market has
// made, oldest first.
func (s *TxnStore) ListContractPayouts(ctx context.Context, marketID string) ([]domain.Txn, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+txnSelectCols+` FROM txns
		WHERE category = $1 AND from_type = $2 AND from_id = $3 AND NOT reverted
		ORDER BY created_time`,
		domain.CategoryPayout, domain.PartyContract, marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contract payouts for %q: %w", marketID, err)
	}
	defer rows.Close()

	var txns []domain.Txn
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan txn: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// NetAmount returns the signed sum of txn amounts crediting or debiting the
// given user account. Every row counts, including reverted ones: a reversal
// is represented by its own offsetting row, so excluding flagged originals
// would double-apply the undo.
func (s *TxnStore) NetAmount(ctx context.Context, accountID string) (float64, error) {
	var net float64
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			CASE
				WHEN to_id = $1 AND to_type = $2 THEN amount
				WHEN from_id = $1 AND from_type = $2 THEN -amount
				ELSE 0
			END
		), 0)
		FROM txns
		WHERE (to_id = $1 AND to_type = $2) OR (from_id = $1 AND from_type = $2)`,
		accountID, domain.PartyUser,
	).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("postgres: net amount for %q: %w", accountID, err)
	}
	return net, nil
}

// ListBefore returns all txns created strictly before the cutoff, for
// archival.
func (s *TxnStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Txn, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+txnSelectCols+` FROM txns WHERE created_time < $1 ORDER BY created_time`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list txns before %s: %w", before, err)
	}
	defer rows.Close()

	var txns []domain.Txn
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan txn: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Compile-time interface check.
var _ domain.TxnStore = (*TxnStore)(nil)
