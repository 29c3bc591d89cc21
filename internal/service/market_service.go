package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/settlecore/internal/amm"
	"github.com/alanyoungcy/settlecore/internal/domain"
	"github.com/alanyoungcy/settlecore/internal/ledger"
)

// CreateMarketRequest describes a new market to open.
type CreateMarketRequest struct {
	Question  string
	CreatorID string
	Outcomes  []string
	Ante      float64
	CloseTime time.Time
}

// MarketService opens markets with ante-funded liquidity pools.
type MarketService struct {
	db     domain.TxRunner
	led    *ledger.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewMarketService creates a MarketService.
func NewMarketService(db domain.TxRunner, led *ledger.Ledger, logger *slog.Logger) *MarketService {
	return &MarketService{
		db:     db,
		led:    led,
		logger: logger.With(slog.String("component", "market_service")),
		now:    time.Now,
	}
}

// CreateMarket charges the creator the ante, seeds the pool uniformly with
// it, and persists the market, all in one transaction.
func (s *MarketService) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	pool, err := amm.NewPool(req.Outcomes, req.Ante)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: seed pool: %w", err)
	}

	now := s.now().UTC()
	if !req.CloseTime.After(now) {
		return domain.Market{}, fmt.Errorf("market_service: close time %s is in the past: %w",
			req.CloseTime, domain.ErrMarketClosed)
	}

	market := domain.Market{
		ID:          uuid.New().String(),
		Question:    req.Question,
		CreatorID:   req.CreatorID,
		Pool:        pool,
		CloseTime:   req.CloseTime,
		CreatedTime: now,
	}

	err = s.db.RunTx(ctx, func(tx domain.SettleTx) error {
		if _, err := s.led.RunTxn(ctx, tx, domain.TxnData{
			FromID:   req.CreatorID,
			FromType: domain.PartyUser,
			ToID:     market.ID,
			ToType:   domain.PartyContract,
			Amount:   req.Ante,
			Category: domain.CategoryAnte,
		}); err != nil {
			return err
		}
		if err := tx.Markets().Create(ctx, market); err != nil {
			return fmt.Errorf("market_service: create market: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.logger.InfoContext(ctx, "market created",
		slog.String("market", market.ID),
		slog.String("creator", market.CreatorID),
		slog.Int("outcomes", len(req.Outcomes)),
		slog.Float64("ante", req.Ante),
	)
	return market, nil
}
