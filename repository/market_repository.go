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

// MarketRepository implements the MarketRepository interface
type MarketRepository struct {
	q queryable
}

// NewMarketRepository creates a new market repository
func NewMarketRepository(db *database.DB) *MarketRepository {
	return &MarketRepository{q: db.Pool}
}

// newMarketRepositoryWithTx creates a new market repository with a transaction
func newMarketRepositoryWithTx(tx queryable) *MarketRepository {
	return &MarketRepository{q: tx}
}

// Ensure inserts a market row for the asset if one does not exist yet
func (r *MarketRepository) Ensure(ctx context.Context, asset models.Asset) error {
	query := `
		INSERT INTO markets (asset_id, feed_id)
		VALUES ($1, $2)
		ON CONFLICT (asset_id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, asset.ID, asset.FeedID); err != nil {
		return fmt.Errorf("failed to ensure market %s: %w", asset.ID, err)
	}

	return nil
}

// Get retrieves a market by asset ID, nil if unknown
func (r *MarketRepository) Get(ctx context.Context, assetID string) (*models.Market, error) {
	query := `
		SELECT asset_id, feed_id, total_supply, created_at, updated_at
		FROM markets
		WHERE asset_id = $1
	`

	market, err := scanMarket(r.q.QueryRow(ctx, query, assetID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market %s: %w", assetID, err)
	}

	return market, nil
}

// List returns all markets in creation order
func (r *MarketRepository) List(ctx context.Context) ([]*models.Market, error) {
	query := `
		SELECT asset_id, feed_id, total_supply, created_at, updated_at
		FROM markets
		ORDER BY created_at, asset_id
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	defer rows.Close()

	var markets []*models.Market
	for rows.Next() {
		market, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, market)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate markets: %w", err)
	}

	return markets, nil
}

// AdjustTotalSupply atomically adds delta to the asset's pooled total supply.
// The column's CHECK constraint rejects a result below zero; that failure is
// surfaced to the caller so the enclosing transaction rolls back.
func (r *MarketRepository) AdjustTotalSupply(ctx context.Context, assetID string, delta *big.Int) error {
	query := `
		UPDATE markets
		SET total_supply = total_supply + $1, updated_at = NOW()
		WHERE asset_id = $2
	`

	result, err := r.q.Exec(ctx, query, bigToNumeric(delta), assetID)
	if err != nil {
		return fmt.Errorf("failed to adjust total supply for %s: %w", assetID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("market %s not found", assetID)
	}

	return nil
}

func scanMarket(row pgx.Row) (*models.Market, error) {
	var market models.Market
	var totalSupply pgtype.Numeric

	err := row.Scan(
		&market.AssetID,
		&market.FeedID,
		&totalSupply,
		&market.CreatedAt,
		&market.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	market.TotalSupply, err = numericToBig(totalSupply)
	if err != nil {
		return nil, err
	}

	return &market, nil
}
