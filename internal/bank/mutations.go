package bank

import (
	"fmt"
	"time"

	"lending/internal/errs"
	"lending/internal/models"
	"lending/internal/shares"
)

// Deposit accrues the pool and mints deposit shares for amount, rounding
// down. The pool and balance are only written when every step succeeds.
func (r Registry) Deposit(pool *models.Pool, bal *models.Balance, amount uint64, now time.Time) (Receipt, error) {
	if amount == 0 {
		return Receipt{}, fmt.Errorf("deposit: zero amount: %w", errs.ErrInvalidAmount)
	}
	next := *pool
	if err := r.Accrue(&next, now); err != nil {
		return Receipt{}, err
	}
	minted, err := shares.ToShares(amount, next.TotalDeposited, next.TotalDepositShares, shares.Down)
	if err != nil {
		return Receipt{}, err
	}
	if minted == 0 {
		return Receipt{}, fmt.Errorf("deposit %d mints no shares: %w", amount, errs.ErrInvalidAmount)
	}
	if next.TotalDeposited, err = shares.Add(next.TotalDeposited, amount); err != nil {
		return Receipt{}, err
	}
	if next.TotalDepositShares, err = shares.Add(next.TotalDepositShares, minted); err != nil {
		return Receipt{}, err
	}
	record := *bal
	if record.DepositedShares, err = shares.Add(record.DepositedShares, minted); err != nil {
		return Receipt{}, err
	}
	record.LastUpdatedDeposit = now.Unix()
	if err := commit(pool, bal, next, record); err != nil {
		return Receipt{}, err
	}
	return Receipt{Amount: amount, Shares: minted}, nil
}

// Withdraw burns shares covering amount, rounding up. Burning the last
// shares of the pool pays out the whole remaining deposit total.
func (r Registry) Withdraw(pool *models.Pool, bal *models.Balance, amount uint64, now time.Time) (Receipt, error) {
	if amount == 0 {
		return Receipt{}, fmt.Errorf("withdraw: zero amount: %w", errs.ErrInvalidAmount)
	}
	next := *pool
	if err := r.Accrue(&next, now); err != nil {
		return Receipt{}, err
	}
	available, err := shares.ToUnderlying(bal.DepositedShares, next.TotalDeposited, next.TotalDepositShares, shares.Down)
	if err != nil {
		return Receipt{}, err
	}
	if amount > available {
		return Receipt{}, fmt.Errorf("withdraw %d of %d available: %w", amount, available, errs.ErrInsufficientBalance)
	}
	burned, err := shares.ToShares(amount, next.TotalDeposited, next.TotalDepositShares, shares.Up)
	if err != nil {
		return Receipt{}, err
	}
	if burned > bal.DepositedShares {
		return Receipt{}, fmt.Errorf("withdraw burns %d of %d shares: %w", burned, bal.DepositedShares, errs.ErrInsufficientBalance)
	}
	payout := amount
	if burned == next.TotalDepositShares {
		payout = next.TotalDeposited
	}
	if next.TotalDeposited, err = shares.Sub(next.TotalDeposited, payout); err != nil {
		return Receipt{}, err
	}
	next.TotalDepositShares -= burned
	if next.TotalDeposited < next.TotalBorrowed {
		return Receipt{}, fmt.Errorf("withdraw %d leaves %d against %d borrowed: %w", payout, next.TotalDeposited, next.TotalBorrowed, errs.ErrInsufficientLiquidity)
	}
	record := *bal
	record.DepositedShares -= burned
	record.LastUpdatedDeposit = now.Unix()
	if err := commit(pool, bal, next, record); err != nil {
		return Receipt{}, err
	}
	return Receipt{Amount: payout, Shares: burned}, nil
}

// Borrow mints debt shares for amount, rounding up so debt never
// undercounts. The pool may not lend more than it holds.
func (r Registry) Borrow(pool *models.Pool, bal *models.Balance, amount uint64, now time.Time) (Receipt, error) {
	if amount == 0 {
		return Receipt{}, fmt.Errorf("borrow: zero amount: %w", errs.ErrInvalidAmount)
	}
	next := *pool
	if err := r.Accrue(&next, now); err != nil {
		return Receipt{}, err
	}
	minted, err := shares.ToShares(amount, next.TotalBorrowed, next.TotalBorrowShares, shares.Up)
	if err != nil {
		return Receipt{}, err
	}
	if next.TotalBorrowed, err = shares.Add(next.TotalBorrowed, amount); err != nil {
		return Receipt{}, err
	}
	if next.TotalBorrowed > next.TotalDeposited {
		return Receipt{}, fmt.Errorf("borrow %d with %d deposited: %w", amount, next.TotalDeposited, errs.ErrInsufficientLiquidity)
	}
	if next.TotalBorrowShares, err = shares.Add(next.TotalBorrowShares, minted); err != nil {
		return Receipt{}, err
	}
	record := *bal
	if record.BorrowedShares, err = shares.Add(record.BorrowedShares, minted); err != nil {
		return Receipt{}, err
	}
	record.LastUpdatedBorrow = now.Unix()
	if err := commit(pool, bal, next, record); err != nil {
		return Receipt{}, err
	}
	return Receipt{Amount: amount, Shares: minted}, nil
}

// Repay burns debt shares for amount, rounding down. Paying more than is
// owed fails with errs.ErrOverRepayment; paying exactly the debt clears it.
func (r Registry) Repay(pool *models.Pool, bal *models.Balance, amount uint64, now time.Time) (Receipt, error) {
	if amount == 0 {
		return Receipt{}, fmt.Errorf("repay: zero amount: %w", errs.ErrInvalidAmount)
	}
	next := *pool
	if err := r.Accrue(&next, now); err != nil {
		return Receipt{}, err
	}
	owed, err := Owed(next, *bal)
	if err != nil {
		return Receipt{}, err
	}
	if amount > owed {
		return Receipt{}, fmt.Errorf("repay %d of %d owed: %w", amount, owed, errs.ErrOverRepayment)
	}
	burned := bal.BorrowedShares
	if amount < owed {
		if burned, err = shares.ToShares(amount, next.TotalBorrowed, next.TotalBorrowShares, shares.Down); err != nil {
			return Receipt{}, err
		}
		if burned == 0 {
			return Receipt{}, fmt.Errorf("repay %d burns no shares: %w", amount, errs.ErrInvalidAmount)
		}
	}
	settled := amount
	if burned == next.TotalBorrowShares {
		settled = next.TotalBorrowed
	}
	if next.TotalBorrowed, err = shares.Sub(next.TotalBorrowed, settled); err != nil {
		return Receipt{}, err
	}
	next.TotalBorrowShares -= burned
	record := *bal
	record.BorrowedShares -= burned
	record.LastUpdatedBorrow = now.Unix()
	if err := commit(pool, bal, next, record); err != nil {
		return Receipt{}, err
	}
	return Receipt{Amount: amount, Shares: burned}, nil
}

// Owed is the user's debt in the pool, rounded up.
func Owed(pool models.Pool, bal models.Balance) (uint64, error) {
	return shares.ToUnderlying(bal.BorrowedShares, pool.TotalBorrowed, pool.TotalBorrowShares, shares.Up)
}

// Supplied is the value of the user's deposit shares, rounded down.
func Supplied(pool models.Pool, bal models.Balance) (uint64, error) {
	return shares.ToUnderlying(bal.DepositedShares, pool.TotalDeposited, pool.TotalDepositShares, shares.Down)
}

// commit checks the pool invariants, marks the record to market and only
// then writes both back.
func commit(pool *models.Pool, bal *models.Balance, next models.Pool, record models.Balance) error {
	if (next.TotalDepositShares == 0) != (next.TotalDeposited == 0) {
		return fmt.Errorf("pool %s deposits %d over %d shares: %w", next.AssetID, next.TotalDeposited, next.TotalDepositShares, errs.ErrZeroShareDivision)
	}
	if (next.TotalBorrowShares == 0) != (next.TotalBorrowed == 0) {
		return fmt.Errorf("pool %s borrows %d over %d shares: %w", next.AssetID, next.TotalBorrowed, next.TotalBorrowShares, errs.ErrZeroShareDivision)
	}
	if next.TotalDeposited < next.TotalBorrowed {
		return fmt.Errorf("pool %s lends %d of %d: %w", next.AssetID, next.TotalBorrowed, next.TotalDeposited, errs.ErrInsufficientLiquidity)
	}
	var err error
	if record.Deposited, err = Supplied(next, record); err != nil {
		return err
	}
	if record.Borrowed, err = Owed(next, record); err != nil {
		return err
	}
	*pool = next
	*bal = record
	return nil
}
