package oracle

import (
	"context"
	"fmt"
	"math/big"

	"lender/models"
)

// StaticOracle serves fixed 18-decimal USD prices from memory. Used in tests
// and development environments without a live feed.
type StaticOracle struct {
	prices map[string]*big.Int
}

// NewStaticOracle creates a static oracle keyed by asset ID
func NewStaticOracle(prices map[string]*big.Int) *StaticOracle {
	copied := make(map[string]*big.Int, len(prices))
	for id, price := range prices {
		copied[id] = new(big.Int).Set(price)
	}
	return &StaticOracle{prices: copied}
}

// SetPrice replaces the price for an asset
func (o *StaticOracle) SetPrice(assetID string, price *big.Int) {
	o.prices[assetID] = new(big.Int).Set(price)
}

// PriceUSD returns the configured price, failing for unknown assets and
// non-positive prices just as a live feed would
func (o *StaticOracle) PriceUSD(_ context.Context, asset models.Asset) (*big.Int, error) {
	price, ok := o.prices[asset.ID]
	if !ok {
		return nil, fmt.Errorf("no price configured for %s: %w", asset.ID, models.ErrPriceUnavailable)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("price for %s is non-positive: %w", asset.ID, models.ErrPriceUnavailable)
	}
	return new(big.Int).Set(price), nil
}
