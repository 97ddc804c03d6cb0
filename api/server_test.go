package api

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lender/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLedgerService struct {
	mock.Mock
}

func (m *mockLedgerService) Supply(ctx context.Context, assetID, userID string, amount *big.Int) error {
	args := m.Called(ctx, assetID, userID, amount)
	return args.Error(0)
}

func (m *mockLedgerService) Withdraw(ctx context.Context, assetID, userID string, amount *big.Int) error {
	args := m.Called(ctx, assetID, userID, amount)
	return args.Error(0)
}

func (m *mockLedgerService) Borrow(ctx context.Context, assetID, userID string, amount *big.Int) error {
	args := m.Called(ctx, assetID, userID, amount)
	return args.Error(0)
}

func (m *mockLedgerService) Repay(ctx context.Context, assetID, userID string, amount *big.Int) error {
	args := m.Called(ctx, assetID, userID, amount)
	return args.Error(0)
}

func (m *mockLedgerService) SupplyBalance(ctx context.Context, assetID, userID string) (*big.Int, error) {
	args := m.Called(ctx, assetID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockLedgerService) BorrowBalance(ctx context.Context, assetID, userID string) (*big.Int, error) {
	args := m.Called(ctx, assetID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockLedgerService) TotalSupply(ctx context.Context, assetID string) (*big.Int, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockLedgerService) Suppliers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedgerService) Borrowers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedgerService) SuppliedAssets(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedgerService) BorrowedAssets(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLedgerService) History(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

type mockValuationService struct {
	mock.Mock
}

func (m *mockValuationService) SupplyValueUSD(ctx context.Context, userID string) (*big.Int, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockValuationService) BorrowValueUSD(ctx context.Context, userID string) (*big.Int, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockValuationService) MaxAdditionalBorrowUSD(ctx context.Context, userID string) (*big.Int, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockValuationService) MaxTokenBorrow(ctx context.Context, assetID, userID string) (*big.Int, error) {
	args := m.Called(ctx, assetID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockValuationService) MaxWithdraw(ctx context.Context, assetID, userID string) (*big.Int, error) {
	args := m.Called(ctx, assetID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

type mockAccrualService struct {
	mock.Mock
}

func (m *mockAccrualService) CheckDue(ctx context.Context, now time.Time) (bool, error) {
	args := m.Called(ctx, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockAccrualService) PerformAccrual(ctx context.Context, now time.Time) error {
	args := m.Called(ctx, now)
	return args.Error(0)
}

func (m *mockAccrualService) Interval() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *mockAccrualService) LastAccrualAt(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

type mockLiquidationService struct {
	mock.Mock
}

func (m *mockLiquidationService) Liquidate(ctx context.Context, operatorID string) ([]string, error) {
	args := m.Called(ctx, operatorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type serverMocks struct {
	ledger      *mockLedgerService
	valuation   *mockValuationService
	accrual     *mockAccrualService
	liquidation *mockLiquidationService
	server      *Server
}

func newServerMocks(t *testing.T) *serverMocks {
	registry, err := models.NewAssetRegistry([]models.Asset{
		{ID: "ETH", FeedID: "eth-usd"},
		{ID: "USDC", FeedID: "usdc-usd"},
	})
	require.NoError(t, err)

	m := &serverMocks{
		ledger:      new(mockLedgerService),
		valuation:   new(mockValuationService),
		accrual:     new(mockAccrualService),
		liquidation: new(mockLiquidationService),
	}
	m.server = NewServer(m.ledger, m.valuation, m.accrual, m.liquidation, registry)
	return m
}

func (m *serverMocks) do(req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	m.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestServer_Supply(t *testing.T) {
	m := newServerMocks(t)
	m.ledger.On("Supply", mock.Anything, "ETH", "alice", big.NewInt(500)).Return(nil)

	req := httptest.NewRequest("POST", "/api/v1/supply", strings.NewReader(`{"asset":"ETH","amount":"500"}`))
	req.Header.Set("X-Account", "alice")

	resp := m.do(req)
	assert.Equal(t, http.StatusOK, resp.Code)
	m.ledger.AssertExpectations(t)
}

func TestServer_Supply_MissingAccount(t *testing.T) {
	m := newServerMocks(t)

	req := httptest.NewRequest("POST", "/api/v1/supply", strings.NewReader(`{"asset":"ETH","amount":"500"}`))
	resp := m.do(req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "MISSING_ACCOUNT")
	m.ledger.AssertNotCalled(t, "Supply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestServer_Supply_BadAmount(t *testing.T) {
	m := newServerMocks(t)

	for _, amount := range []string{`"1.5"`, `"abc"`, `""`} {
		req := httptest.NewRequest("POST", "/api/v1/supply", strings.NewReader(`{"asset":"ETH","amount":`+amount+`}`))
		req.Header.Set("X-Account", "alice")
		resp := m.do(req)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Body.String(), "INVALID_INPUT")
	}
}

func TestServer_Borrow_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrExceedsCollateralRatio, http.StatusConflict, "COLLATERAL_RATIO_EXCEEDED"},
		{models.ErrInsufficientLiquidity, http.StatusConflict, "INSUFFICIENT_LIQUIDITY"},
		{models.ErrAssetNotAllowed, http.StatusBadRequest, "ASSET_NOT_ALLOWED"},
		{models.ErrPriceUnavailable, http.StatusServiceUnavailable, "PRICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		m := newServerMocks(t)
		m.ledger.On("Borrow", mock.Anything, "ETH", "alice", big.NewInt(10)).Return(tt.err)

		req := httptest.NewRequest("POST", "/api/v1/borrow", strings.NewReader(`{"asset":"ETH","amount":"10"}`))
		req.Header.Set("X-Account", "alice")
		resp := m.do(req)

		assert.Equal(t, tt.status, resp.Code)
		assert.Contains(t, resp.Body.String(), tt.code)
	}
}

func TestServer_ListAssets(t *testing.T) {
	m := newServerMocks(t)

	resp := m.do(httptest.NewRequest("GET", "/api/v1/assets", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"ETH"`)
	assert.Contains(t, resp.Body.String(), `"usdc-usd"`)
}

func TestServer_GetMarket(t *testing.T) {
	m := newServerMocks(t)
	m.ledger.On("TotalSupply", mock.Anything, "ETH").Return(big.NewInt(12345), nil)

	resp := m.do(httptest.NewRequest("GET", "/api/v1/markets/ETH", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"12345"`)
}

func TestServer_GetPositions(t *testing.T) {
	m := newServerMocks(t)
	m.ledger.On("SuppliedAssets", mock.Anything, "alice").Return([]string{"ETH"}, nil)
	m.ledger.On("SupplyBalance", mock.Anything, "ETH", "alice").Return(big.NewInt(700), nil)
	m.ledger.On("BorrowedAssets", mock.Anything, "alice").Return([]string{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/positions", nil)
	req.Header.Set("X-Account", "alice")
	resp := m.do(req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"700"`)
	assert.Contains(t, resp.Body.String(), `"borrows":[]`)
}

func TestServer_Liquidate(t *testing.T) {
	m := newServerMocks(t)
	m.liquidation.On("Liquidate", mock.Anything, "operator-1").Return([]string{"bob"}, nil)

	req := httptest.NewRequest("POST", "/api/v1/liquidate", nil)
	req.Header.Set("X-Account", "operator-1")
	resp := m.do(req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"bob"`)
}

func TestServer_Liquidate_Unauthorized(t *testing.T) {
	m := newServerMocks(t)
	m.liquidation.On("Liquidate", mock.Anything, "mallory").Return(nil, models.ErrUnauthorized)

	req := httptest.NewRequest("POST", "/api/v1/liquidate", nil)
	req.Header.Set("X-Account", "mallory")
	resp := m.do(req)

	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Body.String(), "UNAUTHORIZED")
}

func TestServer_GetAccrual(t *testing.T) {
	m := newServerMocks(t)
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.accrual.On("LastAccrualAt", mock.Anything).Return(last, nil)
	m.accrual.On("CheckDue", mock.Anything, mock.AnythingOfType("time.Time")).Return(true, nil)
	m.accrual.On("Interval").Return(30 * time.Second)

	resp := m.do(httptest.NewRequest("GET", "/api/v1/accrual", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"due":true`)
	assert.Contains(t, resp.Body.String(), `"intervalSeconds":30`)
}

func TestServer_Health(t *testing.T) {
	m := newServerMocks(t)
	resp := m.do(httptest.NewRequest("GET", "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}
