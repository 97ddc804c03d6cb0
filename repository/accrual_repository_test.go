package repository

import (
	"context"
	"testing"
	"time"

	"lender/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccrualRepository_State(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccrualRepository(testDB.DB)
	ctx := context.Background()

	t.Run("uninitialized state errors", func(t *testing.T) {
		_, err := repo.LastAccrualAt(ctx)
		assert.Error(t, err)
	})

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("init then read", func(t *testing.T) {
		require.NoError(t, repo.InitState(ctx, start))

		last, err := repo.LastAccrualAt(ctx)
		require.NoError(t, err)
		assert.True(t, last.Equal(start))
	})

	t.Run("init leaves existing state alone", func(t *testing.T) {
		require.NoError(t, repo.InitState(ctx, start.Add(time.Hour)))

		last, err := repo.LastAccrualAt(ctx)
		require.NoError(t, err)
		assert.True(t, last.Equal(start))
	})

	t.Run("set advances the timestamp", func(t *testing.T) {
		next := start.Add(30 * time.Second)
		require.NoError(t, repo.SetLastAccrualAt(ctx, next))

		last, err := repo.LastAccrualAt(ctx)
		require.NoError(t, err)
		assert.True(t, last.Equal(next))
	})
}

func TestAccrualRepository_Runs(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewAccrualRepository(testDB.DB)
	ctx := context.Background()

	t.Run("no runs yet", func(t *testing.T) {
		run, err := repo.GetLatestRun(ctx)
		require.NoError(t, err)
		assert.Nil(t, run)
	})

	t.Run("create and read back", func(t *testing.T) {
		runAt := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
		original := testutil.CreateTestAccrualRun(runAt)
		require.NoError(t, repo.CreateRun(ctx, original))
		assert.NotZero(t, original.ID)

		run, err := repo.GetLatestRun(ctx)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.True(t, run.RunAt.Equal(runAt))
		assert.Equal(t, original.BorrowersCharged, run.BorrowersCharged)
		assert.Equal(t, original.SuppliersPaid, run.SuppliersPaid)
		assert.Equal(t, original.InterestCharged.String(), run.InterestCharged.String())
		assert.Equal(t, original.YieldPaid.String(), run.YieldPaid.String())
		assert.NotNil(t, run.ExecutionSummary)
	})

	t.Run("latest wins", func(t *testing.T) {
		later := testutil.CreateTestAccrualRun(time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC))
		later.BorrowersCharged = 9
		require.NoError(t, repo.CreateRun(ctx, later))

		run, err := repo.GetLatestRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, run.BorrowersCharged)
	})
}
