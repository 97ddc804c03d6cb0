package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"lender/events"
	"lender/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAccrualMocks() *ledgerMocks {
	return newLedgerMocks()
}

func TestAccrualService_CheckDue(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		now     time.Time
		hasAny  bool
		wantDue bool
	}{
		{"interval elapsed with positions", last.Add(31 * time.Second), true, true},
		{"exactly at interval", last.Add(30 * time.Second), true, true},
		{"interval not elapsed", last.Add(29 * time.Second), true, false},
		{"no positions", last.Add(31 * time.Second), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newAccrualMocks()
			m.expectTransaction(ctx, false)

			m.accrual.On("LastAccrualAt", ctx).Return(last, nil)
			if !tt.now.Before(last.Add(30 * time.Second)) {
				m.positions.On("HasAny", ctx).Return(tt.hasAny, nil)
			}

			svc := NewAccrualService(m.factory, 30*time.Second, &sync.Mutex{})
			due, err := svc.CheckDue(ctx, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDue, due)
		})
	}
}

func TestAccrualService_PerformAccrual_NotDue(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := newAccrualMocks()
	m.expectTransaction(ctx, false)
	m.accrual.On("LastAccrualAt", ctx).Return(last, nil)

	svc := NewAccrualService(m.factory, 30*time.Second, &sync.Mutex{})
	err := svc.PerformAccrual(ctx, last.Add(10*time.Second))
	assert.ErrorIs(t, err, models.ErrAccrualNotDue)

	m.uow.AssertNotCalled(t, "Commit")
	m.accrual.AssertNotCalled(t, "SetLastAccrualAt", mock.Anything, mock.Anything)
}

func TestAccrualService_PerformAccrual_AppliesFloorInterest(t *testing.T) {
	ctx := context.Background()
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := last.Add(time.Minute)

	m := newAccrualMocks()
	m.expectTransaction(ctx, true)

	m.accrual.On("LastAccrualAt", ctx).Return(last, nil)
	m.positions.On("HasAny", ctx).Return(true, nil)

	// Borrowers: 101 wei yields floor(101/50) = 2; 49 wei yields 0 and is
	// left untouched
	m.positions.On("ListByKind", ctx, models.PositionBorrow).Return([]*models.Position{
		{Kind: models.PositionBorrow, AssetID: "ETH", UserID: "alice", Balance: big.NewInt(101)},
		{Kind: models.PositionBorrow, AssetID: "USDC", UserID: "bob", Balance: big.NewInt(49)},
	}, nil)
	m.positions.On("SetBalance", ctx, models.PositionBorrow, "ETH", "alice", big.NewInt(103)).Return(nil)

	// Suppliers: 250 wei yields floor(250/100) = 2; 99 wei yields 0
	m.positions.On("ListByKind", ctx, models.PositionSupply).Return([]*models.Position{
		{Kind: models.PositionSupply, AssetID: "ETH", UserID: "carol", Balance: big.NewInt(250)},
		{Kind: models.PositionSupply, AssetID: "ETH", UserID: "dave", Balance: big.NewInt(99)},
	}, nil)
	m.positions.On("SetBalance", ctx, models.PositionSupply, "ETH", "carol", big.NewInt(252)).Return(nil)

	m.entries.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.UserID == "alice" &&
			e.EntryType == models.EntryTypeBorrowInterest &&
			e.Amount.Cmp(big.NewInt(2)) == 0 &&
			e.BalanceBefore.Cmp(big.NewInt(101)) == 0 &&
			e.BalanceAfter.Cmp(big.NewInt(103)) == 0
	})).Return(nil)
	m.entries.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.UserID == "carol" &&
			e.EntryType == models.EntryTypeSupplyYield &&
			e.Amount.Cmp(big.NewInt(2)) == 0
	})).Return(nil)

	m.accrual.On("SetLastAccrualAt", ctx, now).Return(nil)
	m.accrual.On("CreateRun", ctx, mock.MatchedBy(func(run *models.AccrualRun) bool {
		return run.RunAt.Equal(now) &&
			run.BorrowersCharged == 1 &&
			run.SuppliersPaid == 1 &&
			run.InterestCharged.Cmp(big.NewInt(2)) == 0 &&
			run.YieldPaid.Cmp(big.NewInt(2)) == 0
	})).Return(nil)

	svc := NewAccrualService(m.factory, 30*time.Second, &sync.Mutex{})
	err := svc.PerformAccrual(ctx, now)
	require.NoError(t, err)

	published := m.uow.PublishedEvents()
	var completed *events.AccrualCompletedEvent
	for _, ev := range published {
		if e, ok := ev.(events.AccrualCompletedEvent); ok {
			completed = &e
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, 1, completed.BorrowersCharged)
	assert.Equal(t, 1, completed.SuppliersPaid)

	m.uow.AssertExpectations(t)
	m.accrual.AssertExpectations(t)
	m.positions.AssertExpectations(t)
}

func TestAccrualService_Interval(t *testing.T) {
	svc := NewAccrualService(new(MockUnitOfWorkFactory), 45*time.Second, &sync.Mutex{})
	assert.Equal(t, 45*time.Second, svc.Interval())
}
