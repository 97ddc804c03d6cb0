package models

import (
	"math/big"
	"time"
)

// AccrualRun represents one completed interest accrual pass
type AccrualRun struct {
	ID               int64          `db:"id"`
	RunAt            time.Time      `db:"run_at"`
	BorrowersCharged int            `db:"borrowers_charged"`
	SuppliersPaid    int            `db:"suppliers_paid"`
	InterestCharged  *big.Int       `db:"interest_charged"`
	YieldPaid        *big.Int       `db:"yield_paid"`
	ExecutionSummary map[string]any `db:"execution_summary"`
	CreatedAt        time.Time      `db:"created_at"`
}
