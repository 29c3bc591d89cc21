package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/settlecore/internal/amm"
	"github.com/alanyoungcy/settlecore/internal/domain"
)

// balanceTolerance absorbs accumulated float error when recomputing a
// balance from the txn log.
const balanceTolerance = 1e-6

// Discrepancy reports one account whose stored balance disagrees with the
// balance implied by the txn log, or one market whose pool no longer prices
// a coherent probability distribution.
type Discrepancy struct {
	Kind     string // "balance" or "pool"
	ID       string
	Expected float64
	Actual   float64
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("%s %s: expected %v, got %v", d.Kind, d.ID, d.Expected, d.Actual)
}

// Auditor verifies the ledger's core invariants against live data: every
// account balance equals its initial balance plus the signed sum of txn
// amounts naming it, and every open market's pool stays inside the pricing
// domain (positive balances, probabilities in (0,1)).
type Auditor struct {
	db             domain.TxRunner
	logger         *slog.Logger
	initialBalance float64
}

// NewAuditor creates an Auditor. initialBalance is the signup grant every
// account starts from before its first txn.
func NewAuditor(db domain.TxRunner, initialBalance float64, logger *slog.Logger) *Auditor {
	return &Auditor{
		db:             db,
		logger:         logger.With(slog.String("component", "auditor")),
		initialBalance: initialBalance,
	}
}

// Check recomputes the invariants inside one read transaction and returns
// every discrepancy found. An empty slice means the ledger is consistent.
func (a *Auditor) Check(ctx context.Context) ([]Discrepancy, error) {
	var found []Discrepancy

	err := a.db.RunTx(ctx, func(tx domain.SettleTx) error {
		accounts, err := tx.Accounts().List(ctx, domain.ListOpts{})
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		for _, acct := range accounts {
			net, err := tx.Txns().NetAmount(ctx, acct.ID)
			if err != nil {
				return fmt.Errorf("net amount for %q: %w", acct.ID, err)
			}
			expected := a.initialBalance + net
			if math.Abs(expected-acct.Balance) > balanceTolerance {
				found = append(found, Discrepancy{
					Kind:     "balance",
					ID:       acct.ID,
					Expected: expected,
					Actual:   acct.Balance,
				})
			}
		}

		markets, err := tx.Markets().ListOpen(ctx, domain.ListOpts{})
		if err != nil {
			return fmt.Errorf("list open markets: %w", err)
		}
		for _, m := range markets {
			// Positive finite balances are the pool's domain; once they hold,
			// outcome probabilities are well-formed and sum to 1.
			for o, b := range m.Pool {
				if b <= 0 || math.IsInf(b, 0) || math.IsNaN(b) {
					found = append(found, Discrepancy{Kind: "pool", ID: m.ID, Actual: b})
					break
				}
				p, err := amm.Probability(m.Pool, o)
				if err != nil {
					return fmt.Errorf("probability for market %q: %w", m.ID, err)
				}
				if p <= 0 || p >= 1 {
					found = append(found, Discrepancy{Kind: "pool", ID: m.ID, Expected: 1, Actual: p})
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: audit: %w", err)
	}

	for _, d := range found {
		a.logger.WarnContext(ctx, "ledger invariant violated",
			slog.String("kind", d.Kind),
			slog.String("id", d.ID),
			slog.Float64("expected", d.Expected),
			slog.Float64("actual", d.Actual),
		)
	}
	return found, nil
}
