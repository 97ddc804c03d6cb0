package testutil

import (
	"math/big"
	"time"

	"lender/models"
)

// TestAssets returns the assets registered in integration tests
func TestAssets() []models.Asset {
	return []models.Asset{
		{ID: "ETH", FeedID: "eth-usd"},
		{ID: "USDC", FeedID: "usdc-usd"},
	}
}

// Tokens converts n thousandths of a token into 18-decimal fixed point, so
// Tokens(1500) is 1.5 tokens
func Tokens(n int64) *big.Int {
	milli := new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	return milli.Mul(milli, big.NewInt(n))
}

// CreateTestLedgerEntry creates a ledger entry with default balances
func CreateTestLedgerEntry(userID, assetID string, entryType models.EntryType) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:        userID,
		AssetID:       assetID,
		EntryType:     entryType,
		Amount:        Tokens(500),
		BalanceBefore: big.NewInt(0),
		BalanceAfter:  Tokens(500),
		Metadata: map[string]any{
			"test": true,
		},
	}
}

// CreateTestAccrualRun creates an accrual run record
func CreateTestAccrualRun(runAt time.Time) *models.AccrualRun {
	return &models.AccrualRun{
		RunAt:            runAt,
		BorrowersCharged: 2,
		SuppliersPaid:    3,
		InterestCharged:  big.NewInt(12345),
		YieldPaid:        big.NewInt(678),
		ExecutionSummary: map[string]any{
			"borrowers_charged": 2,
			"suppliers_paid":    3,
		},
	}
}
