package models

import (
	"math/big"
	"time"
)

// EntryType represents the kind of ledger mutation an entry records
type EntryType string

const (
	EntryTypeSupply         EntryType = "supply"
	EntryTypeWithdraw       EntryType = "withdraw"
	EntryTypeBorrow         EntryType = "borrow"
	EntryTypeRepay          EntryType = "repay"
	EntryTypeBorrowInterest EntryType = "borrow_interest"
	EntryTypeSupplyYield    EntryType = "supply_yield"
	EntryTypeDebtWriteOff   EntryType = "debt_write_off"
	EntryTypeSeizure        EntryType = "seizure"
)

// LedgerEntry is a historical record of a single position change
type LedgerEntry struct {
	ID            int64          `db:"id"`
	UserID        string         `db:"user_id"`
	AssetID       string         `db:"asset_id"`
	EntryType     EntryType      `db:"entry_type"`
	Amount        *big.Int       `db:"amount"`
	BalanceBefore *big.Int       `db:"balance_before"`
	BalanceAfter  *big.Int       `db:"balance_after"`
	Metadata      map[string]any `db:"metadata"`
	CreatedAt     time.Time      `db:"created_at"`
}
