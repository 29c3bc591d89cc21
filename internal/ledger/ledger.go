// Package ledger moves value between accounts and appends an immutable
// record of every movement. All methods operate on a caller-supplied
// transactional handle so the balance mutation and its log row commit or
// roll back together; the ledger itself never opens transactions and never
// retries.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Ledger appends txn rows and applies the matching balance deltas. It holds
// no database state of its own; everything flows through the domain.LedgerTx
// the caller passes in.
type Ledger struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
}

// RunTxn debits data.FromID and, when the destination is a user account,
// credits data.ToID, then appends the txn row. It fails without touching
// anything if the source account is missing or its balance is below the
// amount. Both the deltas and the row live in tx, so a later rollback undoes
// them together.
func (l *Ledger) RunTxn(ctx context.Context, tx domain.LedgerTx, data domain.TxnData) (domain.Txn, error) {
	if data.Amount <= 0 {
		return domain.Txn{}, fmt.Errorf("ledger: run txn: amount %v: %w", data.Amount, domain.ErrInvalidAmount)
	}

	from, err := tx.Accounts().GetByID(ctx, data.FromID)
	if err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: run txn: from account %q: %w", data.FromID, domain.ErrAccountNotFound)
	}
	if from.Balance < data.Amount {
		return domain.Txn{}, fmt.Errorf("ledger: run txn: account %q balance %v < amount %v: %w",
			data.FromID, from.Balance, data.Amount, domain.ErrInsufficientBalance)
	}

	if data.ToType == domain.PartyUser {
		if err := tx.Accounts().IncrementBalance(ctx, data.ToID, data.Amount, data.Amount); err != nil {
			return domain.Txn{}, fmt.Errorf("ledger: run txn: credit %q: %w", data.ToID, err)
		}
	}
	if err := tx.Accounts().IncrementBalance(ctx, data.FromID, -data.Amount, -data.Amount); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: run txn: debit %q: %w", data.FromID, err)
	}

	txn := l.buildTxn(data)
	if err := tx.Txns().Insert(ctx, txn); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: run txn: insert: %w", err)
	}

	l.logger.InfoContext(ctx, "txn recorded",
		slog.String("txn_id", txn.ID),
		slog.String("category", string(txn.Category)),
		slog.String("from", txn.FromID),
		slog.String("to", txn.ToID),
		slog.Float64("amount", txn.Amount),
	)
	return txn, nil
}

// RunContractPayoutTxn credits a user from a market's pool and appends the
// txn row. There is no debit: the implicit source is the contract itself,
// which is not a balance-tracked account. The payload's "deposit" field (if
// present) is applied to the destination's deposit counter.
func (l *Ledger) RunContractPayoutTxn(ctx context.Context, tx domain.LedgerTx, data domain.TxnData) (domain.Txn, error) {
	if data.FromType != domain.PartyContract || data.ToType != domain.PartyUser {
		return domain.Txn{}, fmt.Errorf("ledger: contract payout must go CONTRACT -> USER, got %s -> %s: %w",
			data.FromType, data.ToType, domain.ErrInvalidAmount)
	}

	if err := tx.Accounts().IncrementBalance(ctx, data.ToID, data.Amount, payloadDeposit(data.Data)); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: contract payout: credit %q: %w", data.ToID, err)
	}

	txn := l.buildTxn(data)
	if err := tx.Txns().Insert(ctx, txn); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: contract payout: insert: %w", err)
	}

	l.logger.InfoContext(ctx, "contract payout recorded",
		slog.String("txn_id", txn.ID),
		slog.String("contract", txn.FromID),
		slog.String("to", txn.ToID),
		slog.Float64("amount", txn.Amount),
	)
	return txn, nil
}

// UndoContractPayoutTxn reverses a contract payout: it applies the negated
// amount and deposit to the same destination account, appends an offsetting
// CONTRACT_UNDO_RESOLUTION_PAYOUT row so the reversal is itself auditable,
// and flags the original row as reverted. The original row's parties and
// amount are never altered.
func (l *Ledger) UndoContractPayoutTxn(ctx context.Context, tx domain.LedgerTx, original domain.Txn) (domain.Txn, error) {
	if original.Category != domain.CategoryPayout {
		return domain.Txn{}, fmt.Errorf("ledger: undo payout: txn %q has category %s: %w",
			original.ID, original.Category, domain.ErrNotFound)
	}
	if original.Reverted {
		return domain.Txn{}, fmt.Errorf("ledger: undo payout: txn %q already reverted: %w",
			original.ID, domain.ErrAlreadyExists)
	}

	if err := tx.Accounts().IncrementBalance(ctx, original.ToID, -original.Amount, -payloadDeposit(original.Data)); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: undo payout: debit %q: %w", original.ToID, err)
	}

	undo := l.buildTxn(domain.TxnData{
		FromID:   original.ToID,
		FromType: domain.PartyUser,
		ToID:     original.FromID,
		ToType:   domain.PartyContract,
		Amount:   original.Amount,
		Category: domain.CategoryUndoPayout,
		Token:    original.Token,
		Data:     map[string]any{"revertsTxnId": original.ID},
	})
	if err := tx.Txns().Insert(ctx, undo); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: undo payout: insert: %w", err)
	}

	if err := tx.Txns().MarkReverted(ctx, original.ID); err != nil {
		return domain.Txn{}, fmt.Errorf("ledger: undo payout: mark reverted %q: %w", original.ID, err)
	}

	l.logger.InfoContext(ctx, "contract payout reverted",
		slog.String("original_txn_id", original.ID),
		slog.String("undo_txn_id", undo.ID),
		slog.Float64("amount", original.Amount),
	)
	return undo, nil
}

func (l *Ledger) buildTxn(data domain.TxnData) domain.Txn {
	token := data.Token
	if token == "" {
		token = domain.TokenMana
	}
	return domain.Txn{
		ID:          uuid.New().String(),
		CreatedTime: l.now().UTC(),
		FromID:      data.FromID,
		FromType:    data.FromType,
		ToID:        data.ToID,
		ToType:      data.ToType,
		Amount:      data.Amount,
		Category:    data.Category,
		Token:       token,
		Data:        data.Data,
	}
}

func payloadDeposit(data map[string]any) float64 {
	if data == nil {
		return 0
	}
	switch v := data["deposit"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
