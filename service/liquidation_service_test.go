package service

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"lender/events"
	"lender/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLiquidationService(t *testing.T, m *ledgerMocks, operators ...string) LiquidationService {
	return NewLiquidationService(m.factory, testRegistry(t), m.oracle, operators, &sync.Mutex{})
}

func TestLiquidationService_Unauthorized(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()

	svc := newLiquidationService(t, m, "operator-1")
	_, err := svc.Liquidate(ctx, "mallory")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	m.factory.AssertNotCalled(t, "Create")
}

func TestLiquidationService_SkipsHealthyAccounts(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()
	m.expectTransaction(ctx, true)

	ethAsset := models.Asset{ID: "ETH", FeedID: "eth-usd"}

	// 0.4 borrowed against 0.5 supplied sits exactly at the ceiling
	m.positions.On("ListUsers", ctx, models.PositionBorrow).Return([]string{"alice"}, nil)
	m.positions.On("ListUserAssets", ctx, models.PositionSupply, "alice").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionSupply, "ETH", "alice").Return(eth(500), nil)
	m.positions.On("ListUserAssets", ctx, models.PositionBorrow, "alice").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionBorrow, "ETH", "alice").Return(eth(400), nil)
	m.oracle.On("PriceUSD", ctx, ethAsset).Return(oneDollar, nil)

	svc := newLiquidationService(t, m, "operator-1")
	liquidated, err := svc.Liquidate(ctx, "operator-1")
	require.NoError(t, err)
	assert.Empty(t, liquidated)

	m.positions.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, m.uow.PublishedEvents())
}

func TestLiquidationService_ClosesUndercollateralizedAccount(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()
	m.expectTransaction(ctx, true)

	ethAsset := models.Asset{ID: "ETH", FeedID: "eth-usd"}

	// Interest pushed the borrow past 80% of the collateral
	m.positions.On("ListUsers", ctx, models.PositionBorrow).Return([]string{"alice"}, nil)
	m.positions.On("ListUserAssets", ctx, models.PositionSupply, "alice").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionSupply, "ETH", "alice").Return(eth(500), nil)
	m.positions.On("ListUserAssets", ctx, models.PositionBorrow, "alice").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionBorrow, "ETH", "alice").Return(eth(450), nil)
	m.oracle.On("PriceUSD", ctx, ethAsset).Return(oneDollar, nil)

	m.positions.On("SetBalance", ctx, models.PositionBorrow, "ETH", "alice", big.NewInt(0)).Return(nil)
	m.positions.On("SetBalance", ctx, models.PositionSupply, "ETH", "alice", big.NewInt(0)).Return(nil)

	m.entries.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.EntryType == models.EntryTypeDebtWriteOff &&
			e.UserID == "alice" &&
			e.Amount.Cmp(eth(450)) == 0 &&
			e.BalanceAfter.Sign() == 0 &&
			e.Metadata["operator_id"] == "operator-1"
	})).Return(nil)
	m.entries.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.EntryType == models.EntryTypeSeizure &&
			e.UserID == "alice" &&
			e.Amount.Cmp(eth(500)) == 0 &&
			e.BalanceAfter.Sign() == 0
	})).Return(nil)

	svc := newLiquidationService(t, m, "operator-1")
	liquidated, err := svc.Liquidate(ctx, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, liquidated)

	// Pool totals are untouched: the seized collateral already sits in the
	// pool and the written-off debt left it long ago
	m.markets.AssertNotCalled(t, "AdjustTotalSupply", mock.Anything, mock.Anything, mock.Anything)

	var liquidationEvents []events.LiquidationEvent
	for _, ev := range m.uow.PublishedEvents() {
		if e, ok := ev.(events.LiquidationEvent); ok {
			liquidationEvents = append(liquidationEvents, e)
		}
	}
	require.Len(t, liquidationEvents, 1)
	assert.Equal(t, "alice", liquidationEvents[0].UserID)
	assert.Equal(t, "operator-1", liquidationEvents[0].OperatorID)

	m.uow.AssertExpectations(t)
	m.positions.AssertExpectations(t)
	m.entries.AssertExpectations(t)
}

func TestLiquidationService_MixedAccounts(t *testing.T) {
	ctx := context.Background()
	m := newLedgerMocks()
	m.expectTransaction(ctx, true)

	ethAsset := models.Asset{ID: "ETH", FeedID: "eth-usd"}

	m.positions.On("ListUsers", ctx, models.PositionBorrow).Return([]string{"alice", "bob"}, nil)

	// alice is healthy
	m.positions.On("ListUserAssets", ctx, models.PositionSupply, "alice").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionSupply, "ETH", "alice").Return(eth(500), nil)
	m.positions.On("ListUserAssets", ctx, models.PositionBorrow, "alice").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionBorrow, "ETH", "alice").Return(eth(100), nil)

	// bob is under water
	m.positions.On("ListUserAssets", ctx, models.PositionSupply, "bob").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionSupply, "ETH", "bob").Return(eth(100), nil)
	m.positions.On("ListUserAssets", ctx, models.PositionBorrow, "bob").Return([]string{"ETH"}, nil)
	m.positions.On("GetBalance", ctx, models.PositionBorrow, "ETH", "bob").Return(eth(90), nil)

	m.oracle.On("PriceUSD", ctx, ethAsset).Return(oneDollar, nil)

	m.positions.On("SetBalance", ctx, models.PositionBorrow, "ETH", "bob", big.NewInt(0)).Return(nil)
	m.positions.On("SetBalance", ctx, models.PositionSupply, "ETH", "bob", big.NewInt(0)).Return(nil)
	m.entries.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.UserID == "bob"
	})).Return(nil)

	svc := newLiquidationService(t, m, "operator-1")
	liquidated, err := svc.Liquidate(ctx, "operator-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, liquidated)
}
