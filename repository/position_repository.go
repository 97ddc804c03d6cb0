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

// PositionRepository implements the PositionRepository interface
type PositionRepository struct {
	q queryable
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *database.DB) *PositionRepository {
	return &PositionRepository{q: db.Pool}
}

// newPositionRepositoryWithTx creates a new position repository with a transaction
func newPositionRepositoryWithTx(tx queryable) *PositionRepository {
	return &PositionRepository{q: tx}
}

// GetBalance returns the balance for (kind, asset, user), nil if absent
func (r *PositionRepository) GetBalance(ctx context.Context, kind models.PositionKind, assetID, userID string) (*big.Int, error) {
	query := `
		SELECT balance
		FROM positions
		WHERE kind = $1 AND asset_id = $2 AND user_id = $3
	`

	var balance pgtype.Numeric
	err := r.q.QueryRow(ctx, query, kind, assetID, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s balance of %s for user %s: %w", kind, assetID, userID, err)
	}

	return numericToBig(balance)
}

// SetBalance upserts the balance for (kind, asset, user). A zero balance
// deletes the row: positions are pruned to absence, never stored as zero.
// Updates keep the original row ID so membership ordering is preserved.
func (r *PositionRepository) SetBalance(ctx context.Context, kind models.PositionKind, assetID, userID string, balance *big.Int) error {
	if balance.Sign() < 0 {
		return fmt.Errorf("negative balance for %s position of %s", kind, userID)
	}

	if balance.Sign() == 0 {
		query := `
			DELETE FROM positions
			WHERE kind = $1 AND asset_id = $2 AND user_id = $3
		`
		if _, err := r.q.Exec(ctx, query, kind, assetID, userID); err != nil {
			return fmt.Errorf("failed to prune %s position of %s for user %s: %w", kind, assetID, userID, err)
		}
		return nil
	}

	query := `
		INSERT INTO positions (kind, asset_id, user_id, balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, asset_id, user_id)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, kind, assetID, userID, bigToNumeric(balance)); err != nil {
		return fmt.Errorf("failed to set %s balance of %s for user %s: %w", kind, assetID, userID, err)
	}

	return nil
}

// ListUsers returns the users holding at least one position of the kind,
// ordered by the ID of their earliest surviving position
func (r *PositionRepository) ListUsers(ctx context.Context, kind models.PositionKind) ([]string, error) {
	query := `
		SELECT user_id
		FROM positions
		WHERE kind = $1
		GROUP BY user_id
		ORDER BY MIN(id)
	`

	rows, err := r.q.Query(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s users: %w", kind, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s users: %w", kind, err)
	}

	return users, nil
}

// ListUserAssets returns the assets a user holds positions of the kind in,
// in insertion order
func (r *PositionRepository) ListUserAssets(ctx context.Context, kind models.PositionKind, userID string) ([]string, error) {
	query := `
		SELECT asset_id
		FROM positions
		WHERE kind = $1 AND user_id = $2
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s assets for user %s: %w", kind, userID, err)
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var assetID string
		if err := rows.Scan(&assetID); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, assetID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s assets for user %s: %w", kind, userID, err)
	}

	return assets, nil
}

// ListByKind returns every position of the kind in insertion order
func (r *PositionRepository) ListByKind(ctx context.Context, kind models.PositionKind) ([]*models.Position, error) {
	query := `
		SELECT id, kind, asset_id, user_id, balance, created_at, updated_at
		FROM positions
		WHERE kind = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s positions: %w", kind, err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var position models.Position
		var balance pgtype.Numeric

		err := rows.Scan(
			&position.ID,
			&position.Kind,
			&position.AssetID,
			&position.UserID,
			&balance,
			&position.CreatedAt,
			&position.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		position.Balance, err = numericToBig(balance)
		if err != nil {
			return nil, fmt.Errorf("failed to decode position balance: %w", err)
		}

		positions = append(positions, &position)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s positions: %w", kind, err)
	}

	return positions, nil
}

// HasAny reports whether any position exists at all
func (r *PositionRepository) HasAny(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM positions)`

	var exists bool
	if err := r.q.QueryRow(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for positions: %w", err)
	}

	return exists, nil
}

// SumBalances returns the sum of all balances for (kind, asset)
func (r *PositionRepository) SumBalances(ctx context.Context, kind models.PositionKind, assetID string) (*big.Int, error) {
	query := `
		SELECT COALESCE(SUM(balance), 0)
		FROM positions
		WHERE kind = $1 AND asset_id = $2
	`

	var sum pgtype.Numeric
	if err := r.q.QueryRow(ctx, query, kind, assetID).Scan(&sum); err != nil {
		return nil, fmt.Errorf("failed to sum %s balances of %s: %w", kind, assetID, err)
	}

	return numericToBig(sum)
}
