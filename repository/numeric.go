package repository

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Balances are stored as NUMERIC(78,0) and carried as *big.Int in Go. These
// helpers convert at the scan/exec boundary.

func bigToNumeric(v *big.Int) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

func numericToBig(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid {
		return nil, fmt.Errorf("unexpected NULL numeric")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("non-finite numeric")
	}

	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil)
		v.Mul(v, scale)
	case n.Exp < 0:
		// Columns are declared with scale 0; a fractional value means the
		// schema and code disagree.
		return nil, fmt.Errorf("unexpected fractional numeric (exp %d)", n.Exp)
	}
	return v, nil
}
