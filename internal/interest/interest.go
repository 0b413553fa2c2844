// Package interest applies linear interest to pool totals.
package interest

import (
	"fmt"
	"math/big"
	"time"

	"lending/internal/errs"
	"lending/internal/models"
	"lending/internal/shares"

	"github.com/shopspring/decimal"
)

// DefaultPeriod is the time unit an interest rate is quoted in.
const DefaultPeriod = time.Hour

// Engine accrues interest on both sides of a pool. The pool's single
// InterestRate applies to deposits and borrows alike.
type Engine struct {
	Period time.Duration
}

func NewEngine(period time.Duration) Engine {
	if period <= 0 {
		period = DefaultPeriod
	}
	return Engine{Period: period}
}

// Accrue grows each side by total*rate*elapsed/period, rounded down, and
// moves both timestamps to now. Share counts are left untouched.
// A now earlier than the stored timestamp accrues nothing.
func (e Engine) Accrue(pool models.Pool, now time.Time) (models.Pool, error) {
	ts := now.Unix()
	deposited, depositedAt, err := e.accrueSide(pool.TotalDeposited, pool.InterestRate, pool.LastUpdatedDeposit, ts)
	if err != nil {
		return pool, fmt.Errorf("accrue deposits of %s: %w", pool.AssetID, err)
	}
	borrowed, borrowedAt, err := e.accrueSide(pool.TotalBorrowed, pool.InterestRate, pool.LastUpdatedBorrow, ts)
	if err != nil {
		return pool, fmt.Errorf("accrue borrows of %s: %w", pool.AssetID, err)
	}
	pool.TotalDeposited, pool.LastUpdatedDeposit = deposited, depositedAt
	pool.TotalBorrowed, pool.LastUpdatedBorrow = borrowed, borrowedAt
	return pool, nil
}

func (e Engine) accrueSide(total uint64, rate decimal.Decimal, last, now int64) (uint64, int64, error) {
	if now <= last {
		return total, last, nil
	}
	if total == 0 || rate.IsZero() {
		return total, now, nil
	}
	growth, err := e.Interest(total, rate, time.Duration(now-last)*time.Second)
	if err != nil {
		return 0, 0, err
	}
	next, err := shares.Add(total, growth)
	if err != nil {
		return 0, 0, err
	}
	return next, now, nil
}

// Interest returns floor(total*rate*elapsed/period).
func (e Engine) Interest(total uint64, rate decimal.Decimal, elapsed time.Duration) (uint64, error) {
	if rate.IsNegative() {
		return 0, fmt.Errorf("negative rate %s: %w", rate, errs.ErrInvalidConfig)
	}
	period := e.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	if elapsed <= 0 {
		return 0, nil
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(total), 0).
		Mul(rate).
		Mul(decimal.NewFromInt(elapsed.Nanoseconds()))
	quo, _ := num.QuoRem(decimal.NewFromInt(period.Nanoseconds()), 0)
	value := quo.BigInt()
	if !value.IsUint64() {
		return 0, fmt.Errorf("interest on %d: %w", total, errs.ErrArithmeticOverflow)
	}
	return value.Uint64(), nil
}
