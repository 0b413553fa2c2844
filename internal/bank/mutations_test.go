package bank

import (
	"testing"
	"time"

	"lending/internal/errs"
	"lending/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func emptyPool(rate string) models.Pool {
	return models.Pool{
		Address:      PoolAddress("usdc"),
		AssetID:      "usdc",
		InterestRate: decimal.RequireFromString(rate),
	}
}

var t0 = time.Unix(1_700_000_000, 0)

func TestFirstDepositorBaseline(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	var bal models.Balance

	receipt, err := reg.Deposit(&pool, &bal, 1000, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), receipt.Shares)
	require.Equal(t, uint64(1000), bal.DepositedShares)
	require.Equal(t, uint64(1000), bal.Deposited)
	require.Equal(t, uint64(1000), pool.TotalDepositShares)
	require.Equal(t, uint64(1000), pool.TotalDeposited)
}

func TestRepeatDeposit(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	var bal models.Balance

	_, err := reg.Deposit(&pool, &bal, 1000, t0)
	require.NoError(t, err)
	_, err = reg.Deposit(&pool, &bal, 1000, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), pool.TotalDeposited)
	require.Equal(t, uint64(2000), pool.TotalDepositShares)
	require.Equal(t, uint64(2000), bal.Deposited)
}

func TestWithdrawRoundTripIsExact(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0.05")
	var bal models.Balance

	_, err := reg.Deposit(&pool, &bal, 12_345, t0)
	require.NoError(t, err)
	receipt, err := reg.Withdraw(&pool, &bal, 12_345, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(12_345), receipt.Amount)
	require.Zero(t, pool.TotalDeposited)
	require.Zero(t, pool.TotalDepositShares)
	require.Equal(t, models.Balance{LastUpdatedDeposit: t0.Unix()}, bal)
}

func TestWithdrawMoreThanOwnedFails(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	var alice, bob models.Balance
	_, err := reg.Deposit(&pool, &alice, 500, t0)
	require.NoError(t, err)
	_, err = reg.Deposit(&pool, &bob, 500, t0)
	require.NoError(t, err)

	before := pool
	_, err = reg.Withdraw(&pool, &alice, 501, t0)
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)
	require.Equal(t, before, pool)
	require.Equal(t, uint64(500), alice.DepositedShares)
}

func TestZeroAmountsRejected(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	var bal models.Balance
	_, err := reg.Deposit(&pool, &bal, 0, t0)
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = reg.Withdraw(&pool, &bal, 0, t0)
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = reg.Borrow(&pool, &bal, 0, t0)
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = reg.Repay(&pool, &bal, 0, t0)
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestAccruedPoolMintsFewerShares(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0.10")
	var early, late models.Balance

	_, err := reg.Deposit(&pool, &early, 1000, t0)
	require.NoError(t, err)

	later := t0.Add(time.Hour)
	receipt, err := reg.Deposit(&pool, &late, 1100, later)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), receipt.Shares)
	require.Equal(t, uint64(2200), pool.TotalDeposited)

	// early depositor earned the hour of interest
	available, err := Supplied(pool, early)
	require.NoError(t, err)
	require.Equal(t, uint64(1100), available)
}

func TestRoundingCannotExtractValue(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	var whale, attacker models.Balance

	// skew the exchange rate so conversions are inexact
	_, err := reg.Deposit(&pool, &whale, 1_000_003, t0)
	require.NoError(t, err)
	pool.TotalDeposited += 777_777

	var paidIn, paidOut uint64
	for i := 0; i < 200; i++ {
		amount := uint64(3 + 2*i)
		receipt, err := reg.Deposit(&pool, &attacker, amount, t0)
		if err != nil {
			require.ErrorIs(t, err, errs.ErrInvalidAmount)
			continue
		}
		paidIn += receipt.Amount
		available, err := Supplied(pool, attacker)
		require.NoError(t, err)
		if available == 0 {
			continue
		}
		out, err := reg.Withdraw(&pool, &attacker, available/2+1, t0)
		require.NoError(t, err)
		paidOut += out.Amount
	}
	remaining, err := Supplied(pool, attacker)
	require.NoError(t, err)
	require.LessOrEqual(t, paidOut+remaining, paidIn)
}

func TestBorrowLimitedByLiquidity(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	var lender, borrower models.Balance
	_, err := reg.Deposit(&pool, &lender, 100, t0)
	require.NoError(t, err)

	_, err = reg.Borrow(&pool, &borrower, 101, t0)
	require.ErrorIs(t, err, errs.ErrInsufficientLiquidity)

	receipt, err := reg.Borrow(&pool, &borrower, 100, t0)
	require.NoError(t, err)
	require.Equal(t, uint64(100), receipt.Shares)
	require.Equal(t, uint64(100), borrower.Borrowed)

	_, err = reg.Withdraw(&pool, &lender, 1, t0)
	require.ErrorIs(t, err, errs.ErrInsufficientLiquidity)
}

func TestRepayPolicy(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0.10")
	var lender, borrower models.Balance
	_, err := reg.Deposit(&pool, &lender, 10_000, t0)
	require.NoError(t, err)
	_, err = reg.Borrow(&pool, &borrower, 1_000, t0)
	require.NoError(t, err)

	later := t0.Add(time.Hour)
	_, err = reg.Repay(&pool, &borrower, 1_101, later)
	require.ErrorIs(t, err, errs.ErrOverRepayment)

	partial, err := reg.Repay(&pool, &borrower, 550, later)
	require.NoError(t, err)
	require.Equal(t, uint64(500), partial.Shares)
	require.Equal(t, uint64(550), borrower.Borrowed)

	_, err = reg.Repay(&pool, &borrower, 550, later)
	require.NoError(t, err)
	require.Zero(t, borrower.BorrowedShares)
	require.Zero(t, borrower.Borrowed)
	require.Zero(t, pool.TotalBorrowed)
	require.Zero(t, pool.TotalBorrowShares)
}

func TestConservationWithoutAccrual(t *testing.T) {
	reg := newRegistry()
	pool := emptyPool("0")
	balances := make([]models.Balance, 4)
	steps := []struct {
		user     int
		withdraw bool
		amount   uint64
	}{
		{0, false, 700}, {1, false, 333}, {2, false, 91}, {0, true, 250},
		{3, false, 12}, {1, true, 333}, {2, true, 90}, {3, false, 5}, {0, true, 450},
	}
	for _, step := range steps {
		var err error
		if step.withdraw {
			_, err = reg.Withdraw(&pool, &balances[step.user], step.amount, t0)
		} else {
			_, err = reg.Deposit(&pool, &balances[step.user], step.amount, t0)
		}
		require.NoError(t, err)
		var sum uint64
		for _, bal := range balances {
			sum += bal.Deposited
		}
		require.Equal(t, pool.TotalDeposited, sum)
	}
}
