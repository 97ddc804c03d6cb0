package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"lender/models"

	log "github.com/sirupsen/logrus"
)

// ledgerService implements the LedgerService interface. All mutations run
// under a shared process-wide mutex and a single database transaction, so
// concurrent calls observe each other's effects fully or not at all.
type ledgerService struct {
	uowFactory UnitOfWorkFactory
	registry   *models.AssetRegistry
	oracle     PriceOracle
	mu         *sync.Mutex
}

// NewLedgerService creates a new ledger service. The mutex is shared with the
// accrual and liquidation services so all ledger mutations serialize.
func NewLedgerService(uowFactory UnitOfWorkFactory, registry *models.AssetRegistry, oracle PriceOracle, mu *sync.Mutex) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
		registry:   registry,
		oracle:     oracle,
		mu:         mu,
	}
}

// Supply deposits amount of asset from the caller's wallet as collateral
func (s *ledgerService) Supply(ctx context.Context, assetID, userID string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return models.ErrInvalidAmount
	}
	if !s.registry.Contains(assetID) {
		return models.ErrAssetNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	// Pull the funds from the caller's wallet first; an underfunded caller
	// aborts before any ledger state changes
	if err := uow.WalletRepository().Debit(ctx, userID, assetID, amount); err != nil {
		return err
	}

	before, err := uow.PositionRepository().GetBalance(ctx, models.PositionSupply, assetID, userID)
	if err != nil {
		return err
	}
	if before == nil {
		before = big.NewInt(0)
	}
	after := new(big.Int).Add(before, amount)

	if err := uow.PositionRepository().SetBalance(ctx, models.PositionSupply, assetID, userID, after); err != nil {
		return err
	}
	if err := uow.MarketRepository().AdjustTotalSupply(ctx, assetID, amount); err != nil {
		return err
	}
	if err := recordPositionChange(ctx, uow, models.PositionSupply, models.EntryTypeSupply, assetID, userID, amount, before, after, nil); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit supply: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":  userID,
		"assetID": assetID,
		"amount":  amount.String(),
	}).Info("Supply completed")

	return nil
}

// Withdraw returns supplied collateral to the caller's wallet, subject to the
// collateral ratio of any outstanding loans
func (s *ledgerService) Withdraw(ctx context.Context, assetID, userID string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return models.ErrInvalidAmount
	}
	if !s.registry.Contains(assetID) {
		return models.ErrAssetNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	positions := uow.PositionRepository()

	before, err := positions.GetBalance(ctx, models.PositionSupply, assetID, userID)
	if err != nil {
		return err
	}
	if before == nil {
		return models.ErrNotSupplied
	}
	if amount.Cmp(before) > 0 {
		return models.ErrWithdrawExceedsSupply
	}

	borrowUSD, err := borrowValueUSD(ctx, positions, s.registry, s.oracle, userID)
	if err != nil {
		return err
	}
	if borrowUSD.Sign() > 0 {
		asset, _ := s.registry.Get(assetID)
		price, err := s.oracle.PriceUSD(ctx, asset)
		if err != nil {
			return fmt.Errorf("failed to price %s: %w", assetID, err)
		}
		supplyUSD, err := supplyValueUSD(ctx, positions, s.registry, s.oracle, userID)
		if err != nil {
			return err
		}

		remaining := new(big.Int).Sub(supplyUSD, usdValue(amount, price))
		if !coversLoans(remaining, borrowUSD) {
			return models.ErrLoanBlocksWithdrawal
		}
	}

	after := new(big.Int).Sub(before, amount)

	if err := positions.SetBalance(ctx, models.PositionSupply, assetID, userID, after); err != nil {
		return err
	}
	if err := uow.MarketRepository().AdjustTotalSupply(ctx, assetID, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := uow.WalletRepository().Credit(ctx, userID, assetID, amount); err != nil {
		return err
	}
	if err := recordPositionChange(ctx, uow, models.PositionSupply, models.EntryTypeWithdraw, assetID, userID, amount, before, after, nil); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit withdraw: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":  userID,
		"assetID": assetID,
		"amount":  amount.String(),
	}).Info("Withdraw completed")

	return nil
}

// Borrow lends amount of asset against the caller's pooled collateral
func (s *ledgerService) Borrow(ctx context.Context, assetID, userID string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return models.ErrInvalidAmount
	}
	if !s.registry.Contains(assetID) {
		return models.ErrAssetNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	market, err := uow.MarketRepository().Get(ctx, assetID)
	if err != nil {
		return err
	}
	if market == nil {
		return fmt.Errorf("no market for asset %s", assetID)
	}
	if amount.Cmp(market.TotalSupply) > 0 {
		return models.ErrInsufficientLiquidity
	}

	positions := uow.PositionRepository()

	headroomUSD, err := maxAdditionalBorrowUSD(ctx, positions, s.registry, s.oracle, userID)
	if err != nil {
		return err
	}
	asset, _ := s.registry.Get(assetID)
	price, err := s.oracle.PriceUSD(ctx, asset)
	if err != nil {
		return fmt.Errorf("failed to price %s: %w", assetID, err)
	}
	if amount.Cmp(tokensForUSD(headroomUSD, price)) > 0 {
		return models.ErrExceedsCollateralRatio
	}

	before, err := positions.GetBalance(ctx, models.PositionBorrow, assetID, userID)
	if err != nil {
		return err
	}
	if before == nil {
		before = big.NewInt(0)
	}
	after := new(big.Int).Add(before, amount)

	if err := positions.SetBalance(ctx, models.PositionBorrow, assetID, userID, after); err != nil {
		return err
	}
	if err := uow.MarketRepository().AdjustTotalSupply(ctx, assetID, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := uow.WalletRepository().Credit(ctx, userID, assetID, amount); err != nil {
		return err
	}
	if err := recordPositionChange(ctx, uow, models.PositionBorrow, models.EntryTypeBorrow, assetID, userID, amount, before, after, nil); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit borrow: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":  userID,
		"assetID": assetID,
		"amount":  amount.String(),
	}).Info("Borrow completed")

	return nil
}

// Repay pays down the caller's outstanding borrow balance
func (s *ledgerService) Repay(ctx context.Context, assetID, userID string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return models.ErrInvalidAmount
	}
	if !s.registry.Contains(assetID) {
		return models.ErrAssetNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	positions := uow.PositionRepository()

	before, err := positions.GetBalance(ctx, models.PositionBorrow, assetID, userID)
	if err != nil {
		return err
	}
	if before == nil {
		return models.ErrNothingToRepay
	}
	if amount.Cmp(before) > 0 {
		return models.ErrRepayExceedsDebt
	}

	if err := uow.WalletRepository().Debit(ctx, userID, assetID, amount); err != nil {
		return err
	}

	after := new(big.Int).Sub(before, amount)

	if err := positions.SetBalance(ctx, models.PositionBorrow, assetID, userID, after); err != nil {
		return err
	}
	if err := uow.MarketRepository().AdjustTotalSupply(ctx, assetID, amount); err != nil {
		return err
	}
	if err := recordPositionChange(ctx, uow, models.PositionBorrow, models.EntryTypeRepay, assetID, userID, amount, before, after, nil); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit repay: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":  userID,
		"assetID": assetID,
		"amount":  amount.String(),
	}).Info("Repay completed")

	return nil
}

// readOnly runs fn inside a unit of work that is always rolled back
func (s *ledgerService) readOnly(ctx context.Context, fn func(uow UnitOfWork) error) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return fn(uow)
}

// SupplyBalance returns the caller's supplied balance of the asset (zero if none)
func (s *ledgerService) SupplyBalance(ctx context.Context, assetID, userID string) (*big.Int, error) {
	return s.positionBalance(ctx, models.PositionSupply, assetID, userID)
}

// BorrowBalance returns the caller's borrowed balance of the asset (zero if none)
func (s *ledgerService) BorrowBalance(ctx context.Context, assetID, userID string) (*big.Int, error) {
	return s.positionBalance(ctx, models.PositionBorrow, assetID, userID)
}

func (s *ledgerService) positionBalance(ctx context.Context, kind models.PositionKind, assetID, userID string) (*big.Int, error) {
	var balance *big.Int
	err := s.readOnly(ctx, func(uow UnitOfWork) error {
		b, err := uow.PositionRepository().GetBalance(ctx, kind, assetID, userID)
		if err != nil {
			return err
		}
		if b == nil {
			b = big.NewInt(0)
		}
		balance = b
		return nil
	})
	return balance, err
}

// TotalSupply returns the pooled total supply of the asset
func (s *ledgerService) TotalSupply(ctx context.Context, assetID string) (*big.Int, error) {
	var total *big.Int
	err := s.readOnly(ctx, func(uow UnitOfWork) error {
		market, err := uow.MarketRepository().Get(ctx, assetID)
		if err != nil {
			return err
		}
		if market == nil {
			return models.ErrAssetNotAllowed
		}
		total = market.TotalSupply
		return nil
	})
	return total, err
}

// Suppliers returns all users with a nonzero supply balance, in first supply order
func (s *ledgerService) Suppliers(ctx context.Context) ([]string, error) {
	return s.positionUsers(ctx, models.PositionSupply)
}

// Borrowers returns all users with a nonzero borrow balance, in first borrow order
func (s *ledgerService) Borrowers(ctx context.Context) ([]string, error) {
	return s.positionUsers(ctx, models.PositionBorrow)
}

func (s *ledgerService) positionUsers(ctx context.Context, kind models.PositionKind) ([]string, error) {
	var users []string
	err := s.readOnly(ctx, func(uow UnitOfWork) error {
		u, err := uow.PositionRepository().ListUsers(ctx, kind)
		if err != nil {
			return err
		}
		users = u
		return nil
	})
	return users, err
}

// SuppliedAssets returns the assets a user currently supplies
func (s *ledgerService) SuppliedAssets(ctx context.Context, userID string) ([]string, error) {
	return s.positionAssets(ctx, models.PositionSupply, userID)
}

// BorrowedAssets returns the assets a user currently borrows
func (s *ledgerService) BorrowedAssets(ctx context.Context, userID string) ([]string, error) {
	return s.positionAssets(ctx, models.PositionBorrow, userID)
}

func (s *ledgerService) positionAssets(ctx context.Context, kind models.PositionKind, userID string) ([]string, error) {
	var assets []string
	err := s.readOnly(ctx, func(uow UnitOfWork) error {
		a, err := uow.PositionRepository().ListUserAssets(ctx, kind, userID)
		if err != nil {
			return err
		}
		assets = a
		return nil
	})
	return assets, err
}

// History returns a user's most recent ledger entries
func (s *ledgerService) History(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := s.readOnly(ctx, func(uow UnitOfWork) error {
		e, err := uow.LedgerEntryRepository().GetByUser(ctx, userID, limit)
		if err != nil {
			return err
		}
		entries = e
		return nil
	})
	return entries, err
}
