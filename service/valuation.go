package service

import (
	"context"
	"fmt"
	"math/big"

	"lender/models"
)

// wad is the 18-decimal fixed-point scale shared by balances and prices.
var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Maximum loan-to-value ratio, fixed system-wide. Applied to the aggregate
// USD value of all of a user's supplies against all of their borrows;
// collateral and debt are pooled across assets, not tracked per pair.
const (
	maxLTVNumerator   = 80
	maxLTVDenominator = 100
)

// usdValue converts an asset amount to 18-decimal USD: amount * price / 1e18.
func usdValue(amount, price *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, wad)
}

// tokensForUSD converts a USD value to asset units: usd * 1e18 / price.
func tokensForUSD(usd, price *big.Int) *big.Int {
	v := new(big.Int).Mul(usd, wad)
	return v.Quo(v, price)
}

// coversLoans reports whether a collateral value keeps a borrow value within
// the LTV ceiling: supplyUSD * 80 >= borrowUSD * 100.
func coversLoans(supplyUSD, borrowUSD *big.Int) bool {
	lhs := new(big.Int).Mul(supplyUSD, big.NewInt(maxLTVNumerator))
	rhs := new(big.Int).Mul(borrowUSD, big.NewInt(maxLTVDenominator))
	return lhs.Cmp(rhs) >= 0
}

// positionValueUSD sums the USD value of a user's positions of one kind,
// pricing every asset through the oracle at call time. Any unreadable feed
// aborts the whole computation.
func positionValueUSD(ctx context.Context, positions PositionRepository, registry *models.AssetRegistry, oracle PriceOracle, kind models.PositionKind, userID string) (*big.Int, error) {
	assets, err := positions.ListUserAssets(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s assets: %w", kind, err)
	}

	total := big.NewInt(0)
	for _, assetID := range assets {
		asset, ok := registry.Get(assetID)
		if !ok {
			return nil, fmt.Errorf("position references asset %s missing from registry", assetID)
		}

		balance, err := positions.GetBalance(ctx, kind, assetID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s balance of %s: %w", kind, assetID, err)
		}
		if balance == nil {
			continue
		}

		price, err := oracle.PriceUSD(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", assetID, err)
		}

		total.Add(total, usdValue(balance, price))
	}

	return total, nil
}

// supplyValueUSD returns the aggregate USD value of a user's supplied
// collateral.
func supplyValueUSD(ctx context.Context, positions PositionRepository, registry *models.AssetRegistry, oracle PriceOracle, userID string) (*big.Int, error) {
	return positionValueUSD(ctx, positions, registry, oracle, models.PositionSupply, userID)
}

// borrowValueUSD returns the aggregate USD value of a user's outstanding
// borrows.
func borrowValueUSD(ctx context.Context, positions PositionRepository, registry *models.AssetRegistry, oracle PriceOracle, userID string) (*big.Int, error) {
	return positionValueUSD(ctx, positions, registry, oracle, models.PositionBorrow, userID)
}

// maxAdditionalBorrowUSD returns the remaining USD borrow headroom:
// max(0, supplyValueUSD * 80/100 - borrowValueUSD).
func maxAdditionalBorrowUSD(ctx context.Context, positions PositionRepository, registry *models.AssetRegistry, oracle PriceOracle, userID string) (*big.Int, error) {
	supplyUSD, err := supplyValueUSD(ctx, positions, registry, oracle, userID)
	if err != nil {
		return nil, err
	}
	borrowUSD, err := borrowValueUSD(ctx, positions, registry, oracle, userID)
	if err != nil {
		return nil, err
	}

	headroom := new(big.Int).Mul(supplyUSD, big.NewInt(maxLTVNumerator))
	headroom.Quo(headroom, big.NewInt(maxLTVDenominator))
	headroom.Sub(headroom, borrowUSD)
	if headroom.Sign() < 0 {
		headroom.SetInt64(0)
	}
	return headroom, nil
}

// maxWithdrawable returns the largest amount of the asset the user can
// withdraw while keeping outstanding loans covered, capped at the current
// balance. With no borrows the whole balance is withdrawable.
func maxWithdrawable(ctx context.Context, positions PositionRepository, registry *models.AssetRegistry, oracle PriceOracle, assetID, userID string) (*big.Int, error) {
	balance, err := positions.GetBalance(ctx, models.PositionSupply, assetID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get supply balance of %s: %w", assetID, err)
	}
	if balance == nil {
		return big.NewInt(0), nil
	}

	borrowUSD, err := borrowValueUSD(ctx, positions, registry, oracle, userID)
	if err != nil {
		return nil, err
	}
	if borrowUSD.Sign() == 0 {
		return new(big.Int).Set(balance), nil
	}

	supplyUSD, err := supplyValueUSD(ctx, positions, registry, oracle, userID)
	if err != nil {
		return nil, err
	}

	// Largest removable USD value w satisfying
	// (supplyUSD - w) * 80 >= borrowUSD * 100.
	headroom := new(big.Int).Mul(supplyUSD, big.NewInt(maxLTVNumerator))
	headroom.Sub(headroom, new(big.Int).Mul(borrowUSD, big.NewInt(maxLTVDenominator)))
	if headroom.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	maxUSD := headroom.Quo(headroom, big.NewInt(maxLTVNumerator))

	asset, ok := registry.Get(assetID)
	if !ok {
		return nil, fmt.Errorf("asset %s missing from registry", assetID)
	}
	price, err := oracle.PriceUSD(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to price %s: %w", assetID, err)
	}

	tokens := tokensForUSD(maxUSD, price)
	if tokens.Cmp(balance) > 0 {
		return new(big.Int).Set(balance), nil
	}
	return tokens, nil
}
