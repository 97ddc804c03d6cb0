package service

import (
	"context"
	"math/big"
	"time"

	"lender/events"
	"lender/models"
)

// MarketRepository defines the interface for per-asset pooled state
type MarketRepository interface {
	// Ensure inserts a market row for the asset if one does not exist yet
	Ensure(ctx context.Context, asset models.Asset) error

	// Get retrieves a market by asset ID, nil if unknown
	Get(ctx context.Context, assetID string) (*models.Market, error)

	// List returns all markets in creation order
	List(ctx context.Context) ([]*models.Market, error)

	// AdjustTotalSupply atomically adds delta (possibly negative) to the
	// asset's pooled total supply, failing if the result would be negative
	AdjustTotalSupply(ctx context.Context, assetID string, delta *big.Int) error
}

// PositionRepository defines the interface for supply/borrow balance state
type PositionRepository interface {
	// GetBalance returns the balance for (kind, asset, user), nil if absent
	GetBalance(ctx context.Context, kind models.PositionKind, assetID, userID string) (*big.Int, error)

	// SetBalance upserts the balance, deleting the row when balance is zero.
	// Updates keep the original row ID so membership ordering is preserved.
	SetBalance(ctx context.Context, kind models.PositionKind, assetID, userID string, balance *big.Int) error

	// ListUsers returns the users holding at least one position of the kind,
	// ordered by first insertion
	ListUsers(ctx context.Context, kind models.PositionKind) ([]string, error)

	// ListUserAssets returns the assets a user holds positions of the kind
	// in, ordered by insertion
	ListUserAssets(ctx context.Context, kind models.PositionKind, userID string) ([]string, error)

	// ListByKind returns every position of the kind in insertion order
	ListByKind(ctx context.Context, kind models.PositionKind) ([]*models.Position, error)

	// HasAny reports whether any position exists at all
	HasAny(ctx context.Context) (bool, error)

	// SumBalances returns the sum of all balances for (kind, asset)
	SumBalances(ctx context.Context, kind models.PositionKind, assetID string) (*big.Int, error)
}

// LedgerEntryRepository defines the interface for the mutation history
type LedgerEntryRepository interface {
	// Record creates a new ledger entry
	Record(ctx context.Context, entry *models.LedgerEntry) error

	// GetByUser returns a user's most recent entries
	GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)
}

// AccrualRepository defines the interface for accrual scheduling state
type AccrualRepository interface {
	// LastAccrualAt returns the timestamp of the last accrual pass
	LastAccrualAt(ctx context.Context) (time.Time, error)

	// SetLastAccrualAt updates the last accrual timestamp
	SetLastAccrualAt(ctx context.Context, t time.Time) error

	// InitState inserts the state row if missing, leaving an existing row
	// untouched
	InitState(ctx context.Context, t time.Time) error

	// CreateRun records a completed accrual pass
	CreateRun(ctx context.Context, run *models.AccrualRun) error

	// GetLatestRun returns the most recent accrual run, nil if none
	GetLatestRun(ctx context.Context) (*models.AccrualRun, error)
}

// WalletRepository is the in-process rendering of the external asset transfer
// primitive: users' balances outside the ledger, moved all-or-nothing within
// the same transaction as the ledger mutation they fund.
type WalletRepository interface {
	// GetBalance returns the user's external balance of the asset
	GetBalance(ctx context.Context, userID, assetID string) (*big.Int, error)

	// Credit adds to the user's external balance
	Credit(ctx context.Context, userID, assetID string, amount *big.Int) error

	// Debit removes from the user's external balance, failing with
	// models.ErrInsufficientFunds when it exceeds what is held
	Debit(ctx context.Context, userID, assetID string, amount *big.Int) error
}

// PriceOracle supplies the current USD price of an asset in 18-decimal fixed
// point. Implementations must fail rather than return stale or non-positive
// values.
type PriceOracle interface {
	PriceUSD(ctx context.Context, asset models.Asset) (*big.Int, error)
}

// LedgerService defines the mutation and query surface of the ledger
type LedgerService interface {
	// Supply deposits amount of asset from the caller's wallet as collateral
	Supply(ctx context.Context, assetID, userID string, amount *big.Int) error

	// Withdraw returns supplied collateral to the caller's wallet, subject to
	// the collateral ratio of any outstanding loans
	Withdraw(ctx context.Context, assetID, userID string, amount *big.Int) error

	// Borrow lends amount of asset against the caller's pooled collateral
	Borrow(ctx context.Context, assetID, userID string, amount *big.Int) error

	// Repay pays down the caller's outstanding borrow balance
	Repay(ctx context.Context, assetID, userID string, amount *big.Int) error

	// SupplyBalance returns the caller's supplied balance of the asset (zero
	// if none)
	SupplyBalance(ctx context.Context, assetID, userID string) (*big.Int, error)

	// BorrowBalance returns the caller's borrowed balance of the asset (zero
	// if none)
	BorrowBalance(ctx context.Context, assetID, userID string) (*big.Int, error)

	// TotalSupply returns the pooled total supply of the asset
	TotalSupply(ctx context.Context, assetID string) (*big.Int, error)

	// Suppliers returns all users with a nonzero supply balance, in first
	// supply order
	Suppliers(ctx context.Context) ([]string, error)

	// Borrowers returns all users with a nonzero borrow balance, in first
	// borrow order
	Borrowers(ctx context.Context) ([]string, error)

	// SuppliedAssets returns the assets a user currently supplies
	SuppliedAssets(ctx context.Context, userID string) ([]string, error)

	// BorrowedAssets returns the assets a user currently borrows
	BorrowedAssets(ctx context.Context, userID string) ([]string, error)

	// History returns a user's most recent ledger entries
	History(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)
}

// ValuationService defines the read-only USD valuation surface
type ValuationService interface {
	// SupplyValueUSD returns the aggregate USD value of a user's supplies
	SupplyValueUSD(ctx context.Context, userID string) (*big.Int, error)

	// BorrowValueUSD returns the aggregate USD value of a user's borrows
	BorrowValueUSD(ctx context.Context, userID string) (*big.Int, error)

	// MaxAdditionalBorrowUSD returns the remaining USD borrow headroom under
	// the 80% loan-to-value ceiling, floored at zero
	MaxAdditionalBorrowUSD(ctx context.Context, userID string) (*big.Int, error)

	// MaxTokenBorrow converts the remaining headroom into units of the asset
	MaxTokenBorrow(ctx context.Context, assetID, userID string) (*big.Int, error)

	// MaxWithdraw returns the largest withdrawable amount of the asset that
	// keeps outstanding loans covered, capped at the current balance
	MaxWithdraw(ctx context.Context, assetID, userID string) (*big.Int, error)
}

// AccrualService defines the externally polled interest scheduler
type AccrualService interface {
	// CheckDue reports whether an accrual pass is due at the supplied time.
	// Pure: no side effects.
	CheckDue(ctx context.Context, now time.Time) (bool, error)

	// PerformAccrual applies interest to every active position in one atomic
	// pass, failing with models.ErrAccrualNotDue if CheckDue is false
	PerformAccrual(ctx context.Context, now time.Time) error

	// Interval returns the configured accrual interval
	Interval() time.Duration

	// LastAccrualAt returns when interest was last applied
	LastAccrualAt(ctx context.Context) (time.Time, error)
}

// LiquidationService defines the privileged close-out operation
type LiquidationService interface {
	// Liquidate force-closes every undercollateralized account. Only
	// configured operators may call it. Returns the IDs of liquidated users.
	Liquidate(ctx context.Context, operatorID string) ([]string, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	MarketRepository() MarketRepository
	PositionRepository() PositionRepository
	LedgerEntryRepository() LedgerEntryRepository
	AccrualRepository() AccrualRepository
	WalletRepository() WalletRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
