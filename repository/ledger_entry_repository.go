package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"lender/database"
	"lender/models"

	"github.com/jackc/pgx/v5/pgtype"
)

// LedgerEntryRepository implements the LedgerEntryRepository interface
type LedgerEntryRepository struct {
	q queryable
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db *database.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: db.Pool}
}

// newLedgerEntryRepositoryWithTx creates a new ledger entry repository with a transaction
func newLedgerEntryRepositoryWithTx(tx queryable) *LedgerEntryRepository {
	return &LedgerEntryRepository{q: tx}
}

// Record creates a new ledger entry
func (r *LedgerEntryRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries
		(user_id, asset_id, entry_type, amount, balance_before, balance_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.UserID,
		entry.AssetID,
		entry.EntryType,
		bigToNumeric(entry.Amount),
		bigToNumeric(entry.BalanceBefore),
		bigToNumeric(entry.BalanceAfter),
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record %s entry for user %s: %w", entry.EntryType, entry.UserID, err)
	}

	return nil
}

// GetByUser returns a user's most recent entries
func (r *LedgerEntryRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, user_id, asset_id, entry_type, amount, balance_before, balance_after, metadata, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var amount, before, after pgtype.Numeric
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.AssetID,
			&entry.EntryType,
			&amount,
			&before,
			&after,
			&metadataJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		if entry.Amount, err = numericToBig(amount); err != nil {
			return nil, fmt.Errorf("failed to decode entry amount: %w", err)
		}
		if entry.BalanceBefore, err = numericToBig(before); err != nil {
			return nil, fmt.Errorf("failed to decode entry balance before: %w", err)
		}
		if entry.BalanceAfter, err = numericToBig(after); err != nil {
			return nil, fmt.Errorf("failed to decode entry balance after: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}
