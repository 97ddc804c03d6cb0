package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"lender/events"
	"lender/models"

	log "github.com/sirupsen/logrus"
)

// liquidationService implements the LiquidationService interface. Liquidation
// force-closes undercollateralized accounts: outstanding debt is written off
// and the account's collateral is seized into the pool. Seized collateral
// stays pooled; how it is split between the protocol and liquidators is still
// an open product decision.
type liquidationService struct {
	uowFactory UnitOfWorkFactory
	registry   *models.AssetRegistry
	oracle     PriceOracle
	operators  map[string]struct{}
	mu         *sync.Mutex
}

// NewLiquidationService creates a new liquidation service restricted to the
// given operator IDs
func NewLiquidationService(uowFactory UnitOfWorkFactory, registry *models.AssetRegistry, oracle PriceOracle, operatorIDs []string, mu *sync.Mutex) LiquidationService {
	operators := make(map[string]struct{}, len(operatorIDs))
	for _, id := range operatorIDs {
		operators[id] = struct{}{}
	}

	return &liquidationService{
		uowFactory: uowFactory,
		registry:   registry,
		oracle:     oracle,
		operators:  operators,
		mu:         mu,
	}
}

// Liquidate force-closes every undercollateralized account. Only configured
// operators may call it. Returns the IDs of liquidated users.
func (s *liquidationService) Liquidate(ctx context.Context, operatorID string) ([]string, error) {
	if _, ok := s.operators[operatorID]; !ok {
		return nil, models.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	positions := uow.PositionRepository()

	borrowers, err := positions.ListUsers(ctx, models.PositionBorrow)
	if err != nil {
		return nil, err
	}

	var liquidated []string
	for _, userID := range borrowers {
		supplyUSD, err := supplyValueUSD(ctx, positions, s.registry, s.oracle, userID)
		if err != nil {
			return nil, err
		}
		borrowUSD, err := borrowValueUSD(ctx, positions, s.registry, s.oracle, userID)
		if err != nil {
			return nil, err
		}
		if coversLoans(supplyUSD, borrowUSD) {
			continue
		}

		if err := s.closeAccount(ctx, uow, userID, operatorID); err != nil {
			return nil, err
		}
		liquidated = append(liquidated, userID)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit liquidation: %w", err)
	}

	if len(liquidated) > 0 {
		log.WithFields(log.Fields{
			"operatorID": operatorID,
			"liquidated": liquidated,
		}).Warn("Liquidated undercollateralized accounts")
	}

	return liquidated, nil
}

// closeAccount zeroes every position the user holds, recording a write-off per
// borrow and a seizure per supply. The pooled total supply is untouched: the
// seized collateral already sits in the pool, and the written-off debt was
// disbursed long ago.
func (s *liquidationService) closeAccount(ctx context.Context, uow UnitOfWork, userID, operatorID string) error {
	positions := uow.PositionRepository()
	metadata := map[string]any{"operator_id": operatorID}
	zero := big.NewInt(0)

	for _, closure := range []struct {
		kind      models.PositionKind
		entryType models.EntryType
	}{
		{models.PositionBorrow, models.EntryTypeDebtWriteOff},
		{models.PositionSupply, models.EntryTypeSeizure},
	} {
		assets, err := positions.ListUserAssets(ctx, closure.kind, userID)
		if err != nil {
			return err
		}
		for _, assetID := range assets {
			before, err := positions.GetBalance(ctx, closure.kind, assetID, userID)
			if err != nil {
				return err
			}
			if before == nil {
				continue
			}
			if err := positions.SetBalance(ctx, closure.kind, assetID, userID, zero); err != nil {
				return err
			}
			if err := recordPositionChange(ctx, uow, closure.kind, closure.entryType, assetID, userID, before, before, zero, metadata); err != nil {
				return err
			}
		}
	}

	uow.EventBus().Publish(events.LiquidationEvent{
		UserID:     userID,
		OperatorID: operatorID,
	})

	return nil
}
