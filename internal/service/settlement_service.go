package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/ledger"
	"github.com/alanyoungcy/settlecore/internal/queue"
)

const (
	// resolutionLockTTL bounds how long a crashed resolver can keep other
	// processes from settling the same market.
	resolutionLockTTL = 2 * time.Minute
)

// SettlementService resolves markets, pays out winners, and can reverse a
// mistaken resolution. Resolution work is admitted through the same queue
// as trades, keyed on the market id, so no trade and resolution of one
// market ever interleave in-process; a distributed lock covers processes
// that do not share the queue.
type SettlementService struct {
	db     domain.TxRunner
	led    *ledger.Ledger
	bets   *queue.Queue
	locks  domain.LockManager
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time
}

// NewSettlementService creates a SettlementService. locks and bus may be
// nil, disabling cross-process locking and post-commit events respectively.
func NewSettlementService(db domain.TxRunner, led *ledger.Ledger, bets *queue.Queue, locks domain.LockManager, bus domain.SignalBus, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		db:     db,
		led:    led,
		bets:   bets,
		locks:  locks,
		bus:    bus,
		logger: logger.With(slog.String("component", "settlement_service")),
		now:    time.Now,
	}
}

// Payout is one user's share of a resolution.
type Payout struct {
	UserID string
	Amount float64
}

// ResolveMarket settles a market on the given outcome. Holders of winning
// shares are paid one unit per share; resolving to ResolutionCancel refunds
// every bettor their net stake instead. Payouts and the resolution flag
// commit atomically.
func (s *SettlementService) ResolveMarket(ctx context.Context, marketID, outcome string) ([]Payout, error) {
	unlock, err := s.acquireLock(ctx, marketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payouts, err := queue.Do(ctx, s.bets, []string{marketID}, func(ctx context.Context) ([]Payout, error) {
		return s.settleResolution(ctx, marketID, outcome)
	})
	if err != nil {
		return nil, err
	}

	s.publishResolution(ctx, "market_resolved", marketID, outcome, len(payouts))
	return payouts, nil
}

func (s *SettlementService) settleResolution(ctx context.Context, marketID, outcome string) ([]Payout, error) {
	var payouts []Payout
	err := s.db.RunTx(ctx, func(tx domain.SettleTx) error {
		now := s.now().UTC()

		market, err := tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return fmt.Errorf("settlement_service: load market: %w", err)
		}
		if market.Resolved {
			return fmt.Errorf("settlement_service: market %q: %w", marketID, domain.ErrMarketResolved)
		}
		if _, ok := market.Pool[outcome]; !ok && outcome != domain.ResolutionCancel {
			return fmt.Errorf("settlement_service: resolution %q: %w", outcome, domain.ErrInvalidOutcome)
		}

		bets, err := tx.Bets().ListByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("settlement_service: list bets: %w", err)
		}

		payouts = computePayouts(bets, outcome)
		payoutTime := now.UnixMilli()
		for _, p := range payouts {
			if _, err := s.led.RunContractPayoutTxn(ctx, tx, domain.TxnData{
				FromID:   marketID,
				FromType: domain.PartyContract,
				ToID:     p.UserID,
				ToType:   domain.PartyUser,
				Amount:   p.Amount,
				Category: domain.CategoryPayout,
				Data: map[string]any{
					"deposit":         p.Amount,
					"payoutStartTime": payoutTime,
				},
			}); err != nil {
				return err
			}
		}

		if err := tx.Markets().SetResolution(ctx, marketID, outcome, now); err != nil {
			return fmt.Errorf("settlement_service: set resolution: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market", marketID),
		slog.String("outcome", outcome),
		slog.Int("payouts", len(payouts)),
	)
	return payouts, nil
}

// computePayouts aggregates bets into per-user payouts. A standard
// resolution pays winning shares one-for-one; CANCEL refunds each user's
// net stake across all outcomes. Users whose aggregate rounds to nothing
// (or who net out negative after sales) receive no payout txn.
func computePayouts(bets []domain.Bet, outcome string) []Payout {
	totals := map[string]float64{}
	var order []string
	add := func(userID string, amount float64) {
		if _, seen := totals[userID]; !seen {
			order = append(order, userID)
		}
		totals[userID] += amount
	}

	for _, b := range bets {
		if outcome == domain.ResolutionCancel {
			add(b.UserID, b.Amount)
		} else if b.Outcome == outcome {
			add(b.UserID, b.Shares)
		}
	}

	var payouts []Payout
	for _, userID := range order {
		if totals[userID] > 0 {
			payouts = append(payouts, Payout{UserID: userID, Amount: totals[userID]})
		}
	}
	return payouts
}

// UnresolveMarket reverses a resolution: every unreverted payout txn the
// market made is undone through the ledger and the market reopens with the
// given close time. The reversal is atomic and, like the payouts it undoes,
// fully recorded in the txn log.
func (s *SettlementService) UnresolveMarket(ctx context.Context, marketID string, closeTime time.Time) (int, error) {
	unlock, err := s.acquireLock(ctx, marketID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	reverted, err := queue.Do(ctx, s.bets, []string{marketID}, func(ctx context.Context) (int, error) {
		return s.settleUnresolution(ctx, marketID, closeTime)
	})
	if err != nil {
		return 0, err
	}

	s.publishResolution(ctx, "market_unresolved", marketID, "", reverted)
	return reverted, nil
}

func (s *SettlementService) settleUnresolution(ctx context.Context, marketID string, closeTime time.Time) (int, error) {
	var reverted int
	err := s.db.RunTx(ctx, func(tx domain.SettleTx) error {
		market, err := tx.Markets().GetForUpdate(ctx, marketID)
		if err != nil {
			return fmt.Errorf("settlement_service: load market: %w", err)
		}
		if !market.Resolved {
			return fmt.Errorf("settlement_service: market %q: %w", marketID, domain.ErrMarketNotResolved)
		}

		payoutTxns, err := tx.Txns().ListContractPayouts(ctx, marketID)
		if err != nil {
			return fmt.Errorf("settlement_service: list payouts: %w", err)
		}
		for _, txn := range payoutTxns {
			if _, err := s.led.UndoContractPayoutTxn(ctx, tx, txn); err != nil {
				return err
			}
		}
		reverted = len(payoutTxns)

		if err := tx.Markets().ClearResolution(ctx, marketID, closeTime); err != nil {
			return fmt.Errorf("settlement_service: clear resolution: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "market unresolved",
		slog.String("market", marketID),
		slog.Int("reverted_payouts", reverted),
	)
	return reverted, nil
}

func (s *SettlementService) acquireLock(ctx context.Context, marketID string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "resolve:"+marketID, resolutionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: lock market %q: %w", marketID, err)
	}
	return unlock, nil
}

func (s *SettlementService) publishResolution(ctx context.Context, event, marketID, outcome string, count int) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"event":   event,
		"market":  marketID,
		"outcome": outcome,
		"payouts": count,
	})
	if err := s.bus.Publish(ctx, domain.ChannelResolutions, payload); err != nil {
		s.logger.WarnContext(ctx, "publish resolution event failed",
			slog.String("event", event),
			slog.String("market", marketID),
			slog.String("error", err.Error()),
		)
	}
}
