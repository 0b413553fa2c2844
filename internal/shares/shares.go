// Package shares converts between underlying pool amounts and pool shares.
package shares

import (
	"fmt"

	"lending/internal/errs"

	"github.com/holiman/uint256"
)

// Rounding selects the direction applied to a non-exact quotient.
type Rounding int

const (
	// Down truncates. Used when minting deposit shares and paying out withdrawals.
	Down Rounding = iota
	// Up rounds away from zero. Used for shares burned on a requested withdrawal.
	Up
)

func (r Rounding) String() string {
	if r == Up {
		return "up"
	}
	return "down"
}

// ToShares converts amount to shares at totalShares/totalUnderlying.
// An empty side converts 1:1.
func ToShares(amount, totalUnderlying, totalShares uint64, rounding Rounding) (uint64, error) {
	if totalShares == 0 {
		return amount, nil
	}
	if totalUnderlying == 0 {
		return 0, fmt.Errorf("to shares: %d shares over zero underlying: %w", totalShares, errs.ErrZeroShareDivision)
	}
	return mulDiv(amount, totalShares, totalUnderlying, rounding)
}

// ToUnderlying converts shares to an amount at totalUnderlying/totalShares.
func ToUnderlying(shares, totalUnderlying, totalShares uint64, rounding Rounding) (uint64, error) {
	if totalShares == 0 {
		return shares, nil
	}
	if totalUnderlying == 0 {
		return 0, fmt.Errorf("to underlying: %d shares over zero underlying: %w", totalShares, errs.ErrZeroShareDivision)
	}
	return mulDiv(shares, totalUnderlying, totalShares, rounding)
}

func mulDiv(x, y, d uint64, rounding Rounding) (uint64, error) {
	prod := new(uint256.Int).Mul(uint256.NewInt(x), uint256.NewInt(y))
	rem := new(uint256.Int)
	quo, rem := new(uint256.Int).DivMod(prod, uint256.NewInt(d), rem)
	if rounding == Up && !rem.IsZero() {
		quo.Add(quo, uint256.NewInt(1))
	}
	if !quo.IsUint64() {
		return 0, fmt.Errorf("%d*%d/%d: %w", x, y, d, errs.ErrArithmeticOverflow)
	}
	return quo.Uint64(), nil
}

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%d+%d: %w", a, b, errs.ErrArithmeticOverflow)
	}
	return sum, nil
}

// Sub returns a-b or ErrArithmeticOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%d-%d: %w", a, b, errs.ErrArithmeticOverflow)
	}
	return a - b, nil
}
