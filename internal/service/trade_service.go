// Package service orchestrates the settlement core: it admits trades
// through the dependency-aware queue, prices them with the AMM, and commits
// them through the ledger inside one database transaction. Two layers
// protect every trade: the queue serializes conflicting in-process work,
// and the row-locked transaction serializes across processes.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/settlecore/internal/amm"
	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/ledger"
	"github.com/alanyoungcy/settlecore/internal/queue"
)

// TradeService prices and settles buys and sells against market pools.
type TradeService struct {
	db     domain.TxRunner
	led    *ledger.Ledger
	bets   *queue.Queue
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time
}

// NewTradeService creates a TradeService. bets is the admission queue trade
// work is scheduled on; bus may be nil to disable post-commit events.
func NewTradeService(db domain.TxRunner, led *ledger.Ledger, bets *queue.Queue, bus domain.SignalBus, logger *slog.Logger) *TradeService {
	return &TradeService{
		db:     db,
		led:    led,
		bets:   bets,
		bus:    bus,
		logger: logger.With(slog.String("component", "trade_service")),
		now:    time.Now,
	}
}

// PlaceBet admits, prices, and settles a buy. The queue keys are the market
// and the user, so two trades on the same market (or by the same user)
// execute in enqueue order while unrelated trades run in parallel.
func (s *TradeService) PlaceBet(ctx context.Context, req domain.BetRequest) (domain.BetResult, error) {
	if req.Amount <= 0 {
		return domain.BetResult{}, fmt.Errorf("trade_service: bet amount %v: %w", req.Amount, domain.ErrInvalidAmount)
	}

	result, err := queue.Do(ctx, s.bets, []string{req.MarketID, req.UserID}, func(ctx context.Context) (domain.BetResult, error) {
		return s.settleBet(ctx, req)
	})
	if err != nil {
		return domain.BetResult{}, err
	}

	s.publish(ctx, "bet_placed", result)
	return result, nil
}

func (s *TradeService) settleBet(ctx context.Context, req domain.BetRequest) (domain.BetResult, error) {
	var result domain.BetResult
	err := s.db.RunTx(ctx, func(tx domain.SettleTx) error {
		now := s.now().UTC()

		market, err := tx.Markets().GetForUpdate(ctx, req.MarketID)
		if err != nil {
			return fmt.Errorf("trade_service: load market: %w", err)
		}
		if !market.TradingAllowed(now) {
			return fmt.Errorf("trade_service: market %q: %w", market.ID, domain.ErrMarketClosed)
		}

		probBefore, err := amm.Probability(market.Pool, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
		}

		newPool, shares, err := amm.Buy(market.Pool, req.Amount, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: price bet: %w", err)
		}
		probAfter, err := amm.Probability(newPool, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
		}

		txn, err := s.led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   req.UserID,
			FromType: domain.PartyUser,
			ToID:     market.ID,
			ToType:   domain.PartyContract,
			Amount:   req.Amount,
			Category: domain.CategoryBet,
		})
		if err != nil {
			return err
		}

		if err := tx.Markets().UpdatePool(ctx, market.ID, newPool); err != nil {
			return fmt.Errorf("trade_service: write pool: %w", err)
		}

		bet := domain.Bet{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			MarketID:    market.ID,
			Outcome:     req.Outcome,
			Amount:      req.Amount,
			Shares:      shares,
			ProbBefore:  probBefore,
			ProbAfter:   probAfter,
			CreatedTime: now,
		}
		if err := tx.Bets().Insert(ctx, bet); err != nil {
			return fmt.Errorf("trade_service: record bet: %w", err)
		}

		result = domain.BetResult{Bet: bet, Txn: txn}
		return nil
	})
	if err != nil {
		return domain.BetResult{}, err
	}

	s.logger.InfoContext(ctx, "bet settled",
		slog.String("bet_id", result.Bet.ID),
		slog.String("market", result.Bet.MarketID),
		slog.String("outcome", result.Bet.Outcome),
		slog.Float64("amount", result.Bet.Amount),
		slog.Float64("shares", result.Bet.Shares),
	)
	return result, nil
}

// SellShares admits, prices, and settles a sale of previously bought
// shares. Proceeds flow back from the market's pool as a contract payout.
func (s *TradeService) SellShares(ctx context.Context, req domain.SellRequest) (domain.BetResult, error) {
	if req.Shares <= 0 {
		return domain.BetResult{}, fmt.Errorf("trade_service: sell shares %v: %w", req.Shares, domain.ErrInvalidAmount)
	}

	result, err := queue.Do(ctx, s.bets, []string{req.MarketID, req.UserID}, func(ctx context.Context) (domain.BetResult, error) {
		return s.settleSale(ctx, req)
	})
	if err != nil {
		return domain.BetResult{}, err
	}

	s.publish(ctx, "shares_sold", result)
	return result, nil
}

func (s *TradeService) settleSale(ctx context.Context, req domain.SellRequest) (domain.BetResult, error) {
	var result domain.BetResult
	err := s.db.RunTx(ctx, func(tx domain.SettleTx) error {
		now := s.now().UTC()

		market, err := tx.Markets().GetForUpdate(ctx, req.MarketID)
		if err != nil {
			return fmt.Errorf("trade_service: load market: %w", err)
		}
		if !market.TradingAllowed(now) {
			return fmt.Errorf("trade_service: market %q: %w", market.ID, domain.ErrMarketClosed)
		}

		owned, err := tx.Bets().SumShares(ctx, market.ID, req.UserID, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: position lookup: %w", err)
		}
		if owned < req.Shares {
			return fmt.Errorf("trade_service: own %v shares, selling %v: %w",
				owned, req.Shares, domain.ErrInsufficientShares)
		}

		probBefore, err := amm.Probability(market.Pool, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
		}

		newPool, sale, err := amm.Sell(market.Pool, req.Shares, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: price sale: %w", err)
		}
		probAfter, err := amm.Probability(newPool, req.Outcome)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
		}

		txn, err := s.led.RunContractPayoutTxn(ctx, tx, domain.TxnData{
			FromID:   market.ID,
			FromType: domain.PartyContract,
			ToID:     req.UserID,
			ToType:   domain.PartyUser,
			Amount:   sale,
			Category: domain.CategorySellShares,
		})
		if err != nil {
			return err
		}

		if err := tx.Markets().UpdatePool(ctx, market.ID, newPool); err != nil {
			return fmt.Errorf("trade_service: write pool: %w", err)
		}

		bet := domain.Bet{
			ID:          uuid.New().String(),
			UserID:      req.UserID,
			MarketID:    market.ID,
			Outcome:     req.Outcome,
			Amount:      -sale,
			Shares:      -req.Shares,
			ProbBefore:  probBefore,
			ProbAfter:   probAfter,
			CreatedTime: now,
		}
		if err := tx.Bets().Insert(ctx, bet); err != nil {
			return fmt.Errorf("trade_service: record sale: %w", err)
		}

		result = domain.BetResult{Bet: bet, Txn: txn}
		return nil
	})
	if err != nil {
		return domain.BetResult{}, err
	}

	s.logger.InfoContext(ctx, "sale settled",
		slog.String("bet_id", result.Bet.ID),
		slog.String("market", result.Bet.MarketID),
		slog.String("outcome", result.Bet.Outcome),
		slog.Float64("shares", -result.Bet.Shares),
		slog.Float64("proceeds", -result.Bet.Amount),
	)
	return result, nil
}

// publish hands the settled trade to the out-of-core broadcast layer. It is
// fire-and-forget: delivery failures are logged, never propagated, because
// the trade has already committed.
func (s *TradeService) publish(ctx context.Context, event string, result domain.BetResult) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"event":      event,
		"bet_id":     result.Bet.ID,
		"txn_id":     result.Txn.ID,
		"market":     result.Bet.MarketID,
		"user":       result.Bet.UserID,
		"outcome":    result.Bet.Outcome,
		"amount":     result.Bet.Amount,
		"shares":     result.Bet.Shares,
		"prob_after": result.Bet.ProbAfter,
	})
	if err := s.bus.Publish(ctx, domain.ChannelBets, payload); err != nil {
		s.logger.WarnContext(ctx, "publish trade event failed",
			slog.String("event", event),
			slog.String("bet_id", result.Bet.ID),
			slog.String("error", err.Error()),
		)
	}
}
