package repository

import (
	"context"
	"fmt"

	"lender/database"
	"lender/events"
	"lender/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	marketRepo       service.MarketRepository
	positionRepo     service.PositionRepository
	ledgerEntryRepo  service.LedgerEntryRepository
	accrualRepo      service.AccrualRepository
	walletRepo       service.WalletRepository
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories bound to the transaction
	u.marketRepo = newMarketRepositoryWithTx(tx)
	u.positionRepo = newPositionRepositoryWithTx(tx)
	u.ledgerEntryRepo = newLedgerEntryRepositoryWithTx(tx)
	u.accrualRepo = newAccrualRepositoryWithTx(tx)
	u.walletRepo = newWalletRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events only after a successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// MarketRepository returns the market repository for this unit of work
func (u *unitOfWork) MarketRepository() service.MarketRepository {
	if u.marketRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.marketRepo
}

// PositionRepository returns the position repository for this unit of work
func (u *unitOfWork) PositionRepository() service.PositionRepository {
	if u.positionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.positionRepo
}

// LedgerEntryRepository returns the ledger entry repository for this unit of work
func (u *unitOfWork) LedgerEntryRepository() service.LedgerEntryRepository {
	if u.ledgerEntryRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.ledgerEntryRepo
}

// AccrualRepository returns the accrual repository for this unit of work
func (u *unitOfWork) AccrualRepository() service.AccrualRepository {
	if u.accrualRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.accrualRepo
}

// WalletRepository returns the wallet repository for this unit of work
func (u *unitOfWork) WalletRepository() service.WalletRepository {
	if u.walletRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.walletRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
