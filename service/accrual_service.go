package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"lender/events"
	"lender/models"

	log "github.com/sirupsen/logrus"
)

// Interest divisors. Each due pass charges borrowers floor(balance/50) and
// pays suppliers floor(balance/100), rounding down independently per position.
var (
	borrowInterestDivisor = big.NewInt(50)
	supplyYieldDivisor    = big.NewInt(100)
)

// accrualService implements the AccrualService interface. The service holds no
// timer of its own: an external poller calls CheckDue and PerformAccrual, and
// due-ness is re-verified inside the accrual transaction so concurrent pollers
// cannot double-apply interest.
type accrualService struct {
	uowFactory UnitOfWorkFactory
	interval   time.Duration
	mu         *sync.Mutex
}

// NewAccrualService creates a new accrual service
func NewAccrualService(uowFactory UnitOfWorkFactory, interval time.Duration, mu *sync.Mutex) AccrualService {
	return &accrualService{
		uowFactory: uowFactory,
		interval:   interval,
		mu:         mu,
	}
}

// Interval returns the configured accrual interval
func (s *accrualService) Interval() time.Duration {
	return s.interval
}

// LastAccrualAt returns when interest was last applied
func (s *accrualService) LastAccrualAt(ctx context.Context) (time.Time, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.AccrualRepository().LastAccrualAt(ctx)
}

// CheckDue reports whether an accrual pass is due at the supplied time. Due
// means the interval has elapsed since the last pass and at least one position
// exists. Pure: no side effects.
func (s *accrualService) CheckDue(ctx context.Context, now time.Time) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return s.checkDue(ctx, uow, now)
}

func (s *accrualService) checkDue(ctx context.Context, uow UnitOfWork, now time.Time) (bool, error) {
	last, err := uow.AccrualRepository().LastAccrualAt(ctx)
	if err != nil {
		return false, err
	}
	if now.Sub(last) < s.interval {
		return false, nil
	}

	hasAny, err := uow.PositionRepository().HasAny(ctx)
	if err != nil {
		return false, err
	}
	return hasAny, nil
}

// PerformAccrual applies interest to every active position in one atomic pass,
// failing with models.ErrAccrualNotDue if no pass is due at now
func (s *accrualService) PerformAccrual(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	due, err := s.checkDue(ctx, uow, now)
	if err != nil {
		return err
	}
	if !due {
		return models.ErrAccrualNotDue
	}

	interestCharged, borrowersCharged, err := s.applyKind(ctx, uow, models.PositionBorrow, now)
	if err != nil {
		return err
	}
	yieldPaid, suppliersPaid, err := s.applyKind(ctx, uow, models.PositionSupply, now)
	if err != nil {
		return err
	}

	if err := uow.AccrualRepository().SetLastAccrualAt(ctx, now); err != nil {
		return err
	}

	run := &models.AccrualRun{
		RunAt:            now,
		BorrowersCharged: borrowersCharged,
		SuppliersPaid:    suppliersPaid,
		InterestCharged:  interestCharged,
		YieldPaid:        yieldPaid,
		ExecutionSummary: map[string]any{
			"borrowers_charged": borrowersCharged,
			"suppliers_paid":    suppliersPaid,
			"interest_charged":  interestCharged.String(),
			"yield_paid":        yieldPaid.String(),
		},
	}
	if err := uow.AccrualRepository().CreateRun(ctx, run); err != nil {
		return err
	}

	uow.EventBus().Publish(events.AccrualCompletedEvent{
		RunAt:            now,
		BorrowersCharged: borrowersCharged,
		SuppliersPaid:    suppliersPaid,
		InterestCharged:  interestCharged,
		YieldPaid:        yieldPaid,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit accrual: %w", err)
	}

	log.WithFields(log.Fields{
		"runAt":            now.Format(time.RFC3339),
		"borrowersCharged": borrowersCharged,
		"suppliersPaid":    suppliersPaid,
		"interestCharged":  interestCharged.String(),
		"yieldPaid":        yieldPaid.String(),
	}).Info("Accrual pass completed")

	return nil
}

// applyKind grows every position of the kind by its interest increment and
// returns the total applied and the number of distinct users affected.
// Positions too small to yield a nonzero increment are left untouched.
func (s *accrualService) applyKind(ctx context.Context, uow UnitOfWork, kind models.PositionKind, now time.Time) (*big.Int, int, error) {
	divisor := supplyYieldDivisor
	entryType := models.EntryTypeSupplyYield
	if kind == models.PositionBorrow {
		divisor = borrowInterestDivisor
		entryType = models.EntryTypeBorrowInterest
	}

	positions, err := uow.PositionRepository().ListByKind(ctx, kind)
	if err != nil {
		return nil, 0, err
	}

	total := big.NewInt(0)
	users := make(map[string]struct{})

	for _, p := range positions {
		increment := new(big.Int).Quo(p.Balance, divisor)
		if increment.Sign() == 0 {
			continue
		}

		after := new(big.Int).Add(p.Balance, increment)
		if err := uow.PositionRepository().SetBalance(ctx, kind, p.AssetID, p.UserID, after); err != nil {
			return nil, 0, err
		}

		metadata := map[string]any{"run_at": now.Format(time.RFC3339Nano)}
		if err := recordPositionChange(ctx, uow, kind, entryType, p.AssetID, p.UserID, increment, p.Balance, after, metadata); err != nil {
			return nil, 0, err
		}

		total.Add(total, increment)
		users[p.UserID] = struct{}{}
	}

	return total, len(users), nil
}
