package repository

import (
	"context"
	"fmt"
	"math/big"

	"lender/database"
	"lender/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// WalletRepository implements the WalletRepository interface. It stands in for
// the host environment's asset transfer primitive: balances held by users
// outside the ledger.
type WalletRepository struct {
	q queryable
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{q: db.Pool}
}

// newWalletRepositoryWithTx creates a new wallet repository with a transaction
func newWalletRepositoryWithTx(tx queryable) *WalletRepository {
	return &WalletRepository{q: tx}
}

// GetBalance returns the user's external balance of the asset (zero if the
// wallet has never been funded)
func (r *WalletRepository) GetBalance(ctx context.Context, userID, assetID string) (*big.Int, error) {
	query := `
		SELECT balance
		FROM wallets
		WHERE user_id = $1 AND asset_id = $2
	`

	var balance pgtype.Numeric
	err := r.q.QueryRow(ctx, query, userID, assetID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance of %s for user %s: %w", assetID, userID, err)
	}

	return numericToBig(balance)
}

// Credit adds to the user's external balance
func (r *WalletRepository) Credit(ctx context.Context, userID, assetID string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive")
	}

	query := `
		INSERT INTO wallets (user_id, asset_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, asset_id)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, userID, assetID, bigToNumeric(amount)); err != nil {
		return fmt.Errorf("failed to credit %s wallet for user %s: %w", assetID, userID, err)
	}

	return nil
}

// Debit removes from the user's external balance, failing if it exceeds what
// is held. The conditional update makes the check-and-take atomic.
func (r *WalletRepository) Debit(ctx context.Context, userID, assetID string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("debit amount must be positive")
	}

	query := `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND asset_id = $3 AND balance >= $1
	`

	result, err := r.q.Exec(ctx, query, bigToNumeric(amount), userID, assetID)
	if err != nil {
		return fmt.Errorf("failed to debit %s wallet for user %s: %w", assetID, userID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("debit %s of %s for user %s: %w", amount.String(), assetID, userID, models.ErrInsufficientFunds)
	}

	return nil
}
