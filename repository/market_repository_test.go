package repository

import (
	"context"
	"math/big"
	"testing"

	"lender/models"
	"lender/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketRepository_EnsureAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMarketRepository(testDB.DB)
	ctx := context.Background()

	t.Run("unknown market is nil", func(t *testing.T) {
		market, err := repo.Get(ctx, "ETH")
		require.NoError(t, err)
		assert.Nil(t, market)
	})

	t.Run("ensure creates with zero supply", func(t *testing.T) {
		err := repo.Ensure(ctx, models.Asset{ID: "ETH", FeedID: "eth-usd"})
		require.NoError(t, err)

		market, err := repo.Get(ctx, "ETH")
		require.NoError(t, err)
		require.NotNil(t, market)
		assert.Equal(t, "ETH", market.AssetID)
		assert.Equal(t, "eth-usd", market.FeedID)
		assert.Zero(t, market.TotalSupply.Sign())
	})

	t.Run("ensure is idempotent", func(t *testing.T) {
		require.NoError(t, repo.AdjustTotalSupply(ctx, "ETH", testutil.Tokens(500)))
		require.NoError(t, repo.Ensure(ctx, models.Asset{ID: "ETH", FeedID: "eth-usd"}))

		market, err := repo.Get(ctx, "ETH")
		require.NoError(t, err)
		assert.Equal(t, testutil.Tokens(500).String(), market.TotalSupply.String())
	})

	t.Run("list in creation order", func(t *testing.T) {
		require.NoError(t, repo.Ensure(ctx, models.Asset{ID: "USDC", FeedID: "usdc-usd"}))

		markets, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, markets, 2)
		assert.Equal(t, "ETH", markets[0].AssetID)
		assert.Equal(t, "USDC", markets[1].AssetID)
	})
}

func TestMarketRepository_AdjustTotalSupply(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewMarketRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, repo.Ensure(ctx, models.Asset{ID: "ETH", FeedID: "eth-usd"}))
	require.NoError(t, repo.AdjustTotalSupply(ctx, "ETH", testutil.Tokens(1000)))

	t.Run("negative delta subtracts", func(t *testing.T) {
		err := repo.AdjustTotalSupply(ctx, "ETH", new(big.Int).Neg(testutil.Tokens(400)))
		require.NoError(t, err)

		market, err := repo.Get(ctx, "ETH")
		require.NoError(t, err)
		assert.Equal(t, testutil.Tokens(600).String(), market.TotalSupply.String())
	})

	t.Run("underflow rejected by constraint", func(t *testing.T) {
		err := repo.AdjustTotalSupply(ctx, "ETH", new(big.Int).Neg(testutil.Tokens(601)))
		assert.Error(t, err)

		market, err := repo.Get(ctx, "ETH")
		require.NoError(t, err)
		assert.Equal(t, testutil.Tokens(600).String(), market.TotalSupply.String())
	})

	t.Run("unknown asset errors", func(t *testing.T) {
		err := repo.AdjustTotalSupply(ctx, "DOGE", testutil.Tokens(1))
		assert.Error(t, err)
	})
}
