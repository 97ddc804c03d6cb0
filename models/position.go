package models

import (
	"math/big"
	"time"
)

// PositionKind distinguishes the two sides of the ledger.
type PositionKind string

const (
	PositionSupply PositionKind = "supply"
	PositionBorrow PositionKind = "borrow"
)

// Position is a single (kind, asset, user) balance. Balances are 18-decimal
// fixed point and always positive: a balance that returns to zero is deleted,
// not stored. Row IDs double as insertion order for the membership sets.
type Position struct {
	ID        int64        `db:"id"`
	Kind      PositionKind `db:"kind"`
	AssetID   string       `db:"asset_id"`
	UserID    string       `db:"user_id"`
	Balance   *big.Int     `db:"balance"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}
