package service

import (
	"context"
	"fmt"
	"math/big"

	"lender/events"
	"lender/models"
)

// recordPositionChange writes a ledger entry for a position balance change and
// queues the matching event on the unit of work's transactional bus. Every
// balance mutation in the system goes through here so the history and the
// event stream can never disagree.
func recordPositionChange(ctx context.Context, uow UnitOfWork, kind models.PositionKind, entryType models.EntryType, assetID, userID string, amount, before, after *big.Int, metadata map[string]any) error {
	entry := &models.LedgerEntry{
		UserID:        userID,
		AssetID:       assetID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Metadata:      metadata,
	}

	if err := uow.LedgerEntryRepository().Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s entry: %w", entryType, err)
	}

	uow.EventBus().Publish(events.PositionChangeEvent{
		UserID:        userID,
		AssetID:       assetID,
		Kind:          kind,
		EntryType:     entryType,
		BalanceBefore: before,
		BalanceAfter:  after,
	})

	return nil
}
