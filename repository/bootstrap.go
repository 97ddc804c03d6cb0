package repository

import (
	"context"
	"fmt"
	"time"

	"lender/database"
	"lender/models"

	"github.com/jackc/pgx/v5"
)

// EnsureLedgerState brings persistent state in line with the configured asset
// registry at startup: one market row per registered asset and the accrual
// state row, all in a single transaction. Existing rows are left untouched, so
// restarts and registry extensions are safe.
func EnsureLedgerState(ctx context.Context, db *database.DB, registry *models.AssetRegistry, now time.Time) error {
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		markets := newMarketRepositoryWithTx(tx)
		for _, asset := range registry.List() {
			if err := markets.Ensure(ctx, asset); err != nil {
				return fmt.Errorf("failed to ensure market for %s: %w", asset.ID, err)
			}
		}

		return newAccrualRepositoryWithTx(tx).InitState(ctx, now)
	})
}
