package models

import "errors"

// Domain errors surfaced by ledger operations. Every mutation validates all of
// its preconditions before touching state and fails with one of these on the
// first violation; callers match with errors.Is.
var (
	// ErrInvalidAmount rejects zero amounts on any mutation.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrAssetNotAllowed rejects assets outside the registry.
	ErrAssetNotAllowed = errors.New("asset is not in the allowed set")

	// ErrNotSupplied rejects a withdraw by a user with no supply balance on
	// the asset.
	ErrNotSupplied = errors.New("nothing supplied for this asset")

	// ErrWithdrawExceedsSupply rejects a withdraw larger than the supplied
	// balance.
	ErrWithdrawExceedsSupply = errors.New("cannot withdraw more than supplied")

	// ErrLoanBlocksWithdrawal rejects a withdraw that would leave outstanding
	// loans undercollateralized.
	ErrLoanBlocksWithdrawal = errors.New("outstanding loan blocks withdrawal")

	// ErrInsufficientLiquidity rejects a borrow larger than the asset's pooled
	// total supply.
	ErrInsufficientLiquidity = errors.New("insufficient pooled liquidity")

	// ErrExceedsCollateralRatio rejects a borrow past the 80% loan-to-value
	// ceiling.
	ErrExceedsCollateralRatio = errors.New("borrow exceeds 80% of collateral value")

	// ErrNothingToRepay rejects a repay by a user with no borrow balance on
	// the asset.
	ErrNothingToRepay = errors.New("no outstanding borrow for this asset")

	// ErrRepayExceedsDebt rejects a repay larger than the outstanding balance.
	ErrRepayExceedsDebt = errors.New("cannot repay more than owed")

	// ErrAccrualNotDue rejects an accrual pass before the interval elapsed or
	// when no active position exists.
	ErrAccrualNotDue = errors.New("accrual is not due")

	// ErrPriceUnavailable is returned when a price feed cannot be read, is
	// stale, or reports a non-positive value. Operations that cannot value
	// collateral refuse to proceed.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrUnauthorized rejects privileged operations from non-operators.
	ErrUnauthorized = errors.New("caller is not an operator")

	// ErrInsufficientFunds is returned by the external wallet when a debit
	// exceeds the held balance.
	ErrInsufficientFunds = errors.New("insufficient wallet funds")
)
