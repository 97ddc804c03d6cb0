package service

import (
	"context"
	"math/big"
	"time"

	"lender/events"
	"lender/models"

	"github.com/stretchr/testify/mock"
)

// MockMarketRepository is a mock implementation of MarketRepository
type MockMarketRepository struct {
	mock.Mock
}

func (m *MockMarketRepository) Ensure(ctx context.Context, asset models.Asset) error {
	args := m.Called(ctx, asset)
	return args.Error(0)
}

func (m *MockMarketRepository) Get(ctx context.Context, assetID string) (*models.Market, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Market), args.Error(1)
}

func (m *MockMarketRepository) List(ctx context.Context) ([]*models.Market, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Market), args.Error(1)
}

func (m *MockMarketRepository) AdjustTotalSupply(ctx context.Context, assetID string, delta *big.Int) error {
	args := m.Called(ctx, assetID, delta)
	return args.Error(0)
}

// MockPositionRepository is a mock implementation of PositionRepository
type MockPositionRepository struct {
	mock.Mock
}

func (m *MockPositionRepository) GetBalance(ctx context.Context, kind models.PositionKind, assetID, userID string) (*big.Int, error) {
	args := m.Called(ctx, kind, assetID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockPositionRepository) SetBalance(ctx context.Context, kind models.PositionKind, assetID, userID string, balance *big.Int) error {
	args := m.Called(ctx, kind, assetID, userID, balance)
	return args.Error(0)
}

func (m *MockPositionRepository) ListUsers(ctx context.Context, kind models.PositionKind) ([]string, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPositionRepository) ListUserAssets(ctx context.Context, kind models.PositionKind, userID string) ([]string, error) {
	args := m.Called(ctx, kind, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPositionRepository) ListByKind(ctx context.Context, kind models.PositionKind) ([]*models.Position, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Position), args.Error(1)
}

func (m *MockPositionRepository) HasAny(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockPositionRepository) SumBalances(ctx context.Context, kind models.PositionKind, assetID string) (*big.Int, error) {
	args := m.Called(ctx, kind, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

// MockLedgerEntryRepository is a mock implementation of LedgerEntryRepository
type MockLedgerEntryRepository struct {
	mock.Mock
}

func (m *MockLedgerEntryRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerEntryRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

// MockAccrualRepository is a mock implementation of AccrualRepository
type MockAccrualRepository struct {
	mock.Mock
}

func (m *MockAccrualRepository) LastAccrualAt(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockAccrualRepository) SetLastAccrualAt(ctx context.Context, t time.Time) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockAccrualRepository) InitState(ctx context.Context, t time.Time) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockAccrualRepository) CreateRun(ctx context.Context, run *models.AccrualRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockAccrualRepository) GetLatestRun(ctx context.Context) (*models.AccrualRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccrualRun), args.Error(1)
}

// MockWalletRepository is a mock implementation of WalletRepository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) GetBalance(ctx context.Context, userID, assetID string) (*big.Int, error) {
	args := m.Called(ctx, userID, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockWalletRepository) Credit(ctx context.Context, userID, assetID string, amount *big.Int) error {
	args := m.Called(ctx, userID, assetID, amount)
	return args.Error(0)
}

func (m *MockWalletRepository) Debit(ctx context.Context, userID, assetID string, amount *big.Int) error {
	args := m.Called(ctx, userID, assetID, amount)
	return args.Error(0)
}

// MockPriceOracle is a mock implementation of PriceOracle
type MockPriceOracle struct {
	mock.Mock
}

func (m *MockPriceOracle) PriceUSD(ctx context.Context, asset models.Asset) (*big.Int, error) {
	args := m.Called(ctx, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

// RecordingPublisher collects published events for assertions
type RecordingPublisher struct {
	Events []events.Event
}

func (p *RecordingPublisher) Publish(e events.Event) {
	p.Events = append(p.Events, e)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repositories are
// plain fields set via SetRepositories; Begin/Commit/Rollback go through the
// mock so tests can assert transaction behavior.
type MockUnitOfWork struct {
	mock.Mock
	marketRepo      MarketRepository
	positionRepo    PositionRepository
	ledgerEntryRepo LedgerEntryRepository
	accrualRepo     AccrualRepository
	walletRepo      WalletRepository
	publisher       *RecordingPublisher
}

// SetRepositories wires the mock repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(markets MarketRepository, positions PositionRepository, entries LedgerEntryRepository, accrual AccrualRepository, wallets WalletRepository) {
	m.marketRepo = markets
	m.positionRepo = positions
	m.ledgerEntryRepo = entries
	m.accrualRepo = accrual
	m.walletRepo = wallets
	m.publisher = &RecordingPublisher{}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) MarketRepository() MarketRepository {
	return m.marketRepo
}

func (m *MockUnitOfWork) PositionRepository() PositionRepository {
	return m.positionRepo
}

func (m *MockUnitOfWork) LedgerEntryRepository() LedgerEntryRepository {
	return m.ledgerEntryRepo
}

func (m *MockUnitOfWork) AccrualRepository() AccrualRepository {
	return m.accrualRepo
}

func (m *MockUnitOfWork) WalletRepository() WalletRepository {
	return m.walletRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.publisher
}

// PublishedEvents returns the events published through this unit of work
func (m *MockUnitOfWork) PublishedEvents() []events.Event {
	return m.publisher.Events
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
