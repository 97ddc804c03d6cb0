package models

import (
	"fmt"
	"math/big"
	"time"
)

// Asset is an allowed collateral/borrow asset together with the identifier of
// its USD price feed.
type Asset struct {
	ID     string
	FeedID string
}

// Market represents the pooled state of a single asset in the database
type Market struct {
	AssetID     string    `db:"asset_id"`
	FeedID      string    `db:"feed_id"`
	TotalSupply *big.Int  `db:"total_supply"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// AssetRegistry is the immutable set of assets the ledger accepts. It is fixed
// at construction; there is no runtime add or remove.
type AssetRegistry struct {
	assets []Asset
	byID   map[string]Asset
}

// NewAssetRegistry builds a registry from the configured asset list. Order is
// preserved; duplicate IDs are rejected.
func NewAssetRegistry(assets []Asset) (*AssetRegistry, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("asset registry requires at least one asset")
	}

	byID := make(map[string]Asset, len(assets))
	for _, asset := range assets {
		if asset.ID == "" {
			return nil, fmt.Errorf("asset with empty ID")
		}
		if asset.FeedID == "" {
			return nil, fmt.Errorf("asset %s has no price feed", asset.ID)
		}
		if _, exists := byID[asset.ID]; exists {
			return nil, fmt.Errorf("duplicate asset %s", asset.ID)
		}
		byID[asset.ID] = asset
	}

	registry := &AssetRegistry{
		assets: make([]Asset, len(assets)),
		byID:   byID,
	}
	copy(registry.assets, assets)
	return registry, nil
}

// Contains reports whether the asset is allowed.
func (r *AssetRegistry) Contains(assetID string) bool {
	_, ok := r.byID[assetID]
	return ok
}

// Get returns the asset definition for an ID.
func (r *AssetRegistry) Get(assetID string) (Asset, bool) {
	asset, ok := r.byID[assetID]
	return asset, ok
}

// List returns all allowed assets in configuration order.
func (r *AssetRegistry) List() []Asset {
	out := make([]Asset, len(r.assets))
	copy(out, r.assets)
	return out
}
