package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lender/database"
	"lender/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// AccrualRepository implements the AccrualRepository interface
type AccrualRepository struct {
	q queryable
}

// NewAccrualRepository creates a new accrual repository
func NewAccrualRepository(db *database.DB) *AccrualRepository {
	return &AccrualRepository{q: db.Pool}
}

// newAccrualRepositoryWithTx creates a new accrual repository with a transaction
func newAccrualRepositoryWithTx(tx queryable) *AccrualRepository {
	return &AccrualRepository{q: tx}
}

// InitState inserts the state row if missing, leaving an existing row untouched
func (r *AccrualRepository) InitState(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO accrual_state (id, last_accrual_at)
		VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.q.Exec(ctx, query, t); err != nil {
		return fmt.Errorf("failed to init accrual state: %w", err)
	}

	return nil
}

// LastAccrualAt returns the timestamp of the last accrual pass
func (r *AccrualRepository) LastAccrualAt(ctx context.Context) (time.Time, error) {
	query := `SELECT last_accrual_at FROM accrual_state WHERE id = 1`

	var t time.Time
	err := r.q.QueryRow(ctx, query).Scan(&t)
	if err == pgx.ErrNoRows {
		return time.Time{}, fmt.Errorf("accrual state not initialized")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last accrual timestamp: %w", err)
	}

	return t, nil
}

// SetLastAccrualAt updates the last accrual timestamp
func (r *AccrualRepository) SetLastAccrualAt(ctx context.Context, t time.Time) error {
	query := `UPDATE accrual_state SET last_accrual_at = $1 WHERE id = 1`

	result, err := r.q.Exec(ctx, query, t)
	if err != nil {
		return fmt.Errorf("failed to set last accrual timestamp: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("accrual state not initialized")
	}

	return nil
}

// CreateRun records a completed accrual pass
func (r *AccrualRepository) CreateRun(ctx context.Context, run *models.AccrualRun) error {
	summaryJSON, err := json.Marshal(run.ExecutionSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal execution summary: %w", err)
	}

	query := `
		INSERT INTO accrual_runs
		(run_at, borrowers_charged, suppliers_paid, interest_charged, yield_paid, execution_summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		run.RunAt,
		run.BorrowersCharged,
		run.SuppliersPaid,
		bigToNumeric(run.InterestCharged),
		bigToNumeric(run.YieldPaid),
		summaryJSON,
	).Scan(&run.ID, &run.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create accrual run at %s: %w", run.RunAt.Format(time.RFC3339), err)
	}

	return nil
}

// GetLatestRun returns the most recent accrual run, nil if none
func (r *AccrualRepository) GetLatestRun(ctx context.Context) (*models.AccrualRun, error) {
	query := `
		SELECT id, run_at, borrowers_charged, suppliers_paid, interest_charged, yield_paid, execution_summary, created_at
		FROM accrual_runs
		ORDER BY run_at DESC, id DESC
		LIMIT 1
	`

	var run models.AccrualRun
	var interest, yield pgtype.Numeric
	var summaryJSON []byte

	err := r.q.QueryRow(ctx, query).Scan(
		&run.ID,
		&run.RunAt,
		&run.BorrowersCharged,
		&run.SuppliersPaid,
		&interest,
		&yield,
		&summaryJSON,
		&run.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest accrual run: %w", err)
	}

	if run.InterestCharged, err = numericToBig(interest); err != nil {
		return nil, fmt.Errorf("failed to decode interest charged: %w", err)
	}
	if run.YieldPaid, err = numericToBig(yield); err != nil {
		return nil, fmt.Errorf("failed to decode yield paid: %w", err)
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &run.ExecutionSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution summary: %w", err)
		}
	}

	return &run, nil
}
