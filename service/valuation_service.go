package service

import (
	"context"
	"fmt"
	"math/big"

	"lender/models"
)

// valuationService implements the ValuationService interface. Valuations are
// computed against a snapshot: each call reads position state inside a single
// rolled-back transaction.
type valuationService struct {
	uowFactory UnitOfWorkFactory
	registry   *models.AssetRegistry
	oracle     PriceOracle
}

// NewValuationService creates a new valuation service
func NewValuationService(uowFactory UnitOfWorkFactory, registry *models.AssetRegistry, oracle PriceOracle) ValuationService {
	return &valuationService{
		uowFactory: uowFactory,
		registry:   registry,
		oracle:     oracle,
	}
}

func (s *valuationService) snapshot(ctx context.Context, fn func(positions PositionRepository) (*big.Int, error)) (*big.Int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return fn(uow.PositionRepository())
}

// SupplyValueUSD returns the aggregate USD value of a user's supplies
func (s *valuationService) SupplyValueUSD(ctx context.Context, userID string) (*big.Int, error) {
	return s.snapshot(ctx, func(positions PositionRepository) (*big.Int, error) {
		return supplyValueUSD(ctx, positions, s.registry, s.oracle, userID)
	})
}

// BorrowValueUSD returns the aggregate USD value of a user's borrows
func (s *valuationService) BorrowValueUSD(ctx context.Context, userID string) (*big.Int, error) {
	return s.snapshot(ctx, func(positions PositionRepository) (*big.Int, error) {
		return borrowValueUSD(ctx, positions, s.registry, s.oracle, userID)
	})
}

// MaxAdditionalBorrowUSD returns the remaining USD borrow headroom under the
// 80% loan-to-value ceiling, floored at zero
func (s *valuationService) MaxAdditionalBorrowUSD(ctx context.Context, userID string) (*big.Int, error) {
	return s.snapshot(ctx, func(positions PositionRepository) (*big.Int, error) {
		return maxAdditionalBorrowUSD(ctx, positions, s.registry, s.oracle, userID)
	})
}

// MaxTokenBorrow converts the remaining headroom into units of the asset
func (s *valuationService) MaxTokenBorrow(ctx context.Context, assetID, userID string) (*big.Int, error) {
	asset, ok := s.registry.Get(assetID)
	if !ok {
		return nil, models.ErrAssetNotAllowed
	}

	return s.snapshot(ctx, func(positions PositionRepository) (*big.Int, error) {
		headroom, err := maxAdditionalBorrowUSD(ctx, positions, s.registry, s.oracle, userID)
		if err != nil {
			return nil, err
		}
		price, err := s.oracle.PriceUSD(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", assetID, err)
		}
		return tokensForUSD(headroom, price), nil
	})
}

// MaxWithdraw returns the largest withdrawable amount of the asset that keeps
// outstanding loans covered, capped at the current balance
func (s *valuationService) MaxWithdraw(ctx context.Context, assetID, userID string) (*big.Int, error) {
	if !s.registry.Contains(assetID) {
		return nil, models.ErrAssetNotAllowed
	}

	return s.snapshot(ctx, func(positions PositionRepository) (*big.Int, error) {
		return maxWithdrawable(ctx, positions, s.registry, s.oracle, assetID, userID)
	})
}
