package interest

import (
	"math"
	"testing"
	"time"

	"lending/internal/errs"
	"lending/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testPool(rate string, deposited, borrowed uint64, at int64) models.Pool {
	return models.Pool{
		AssetID:            "usdc",
		TotalDeposited:     deposited,
		TotalDepositShares: deposited,
		TotalBorrowed:      borrowed,
		TotalBorrowShares:  borrowed,
		InterestRate:       decimal.RequireFromString(rate),
		LastUpdatedDeposit: at,
		LastUpdatedBorrow:  at,
	}
}

func TestAccrueLinearBothSides(t *testing.T) {
	engine := NewEngine(time.Hour)
	start := int64(1_700_000_000)
	pool := testPool("0.05", 10_000, 4_000, start)

	got, err := engine.Accrue(pool, time.Unix(start+2*3600, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(11_000), got.TotalDeposited)
	require.Equal(t, uint64(4_400), got.TotalBorrowed)
	require.Equal(t, pool.TotalDepositShares, got.TotalDepositShares)
	require.Equal(t, pool.TotalBorrowShares, got.TotalBorrowShares)
	require.Equal(t, start+7200, got.LastUpdatedDeposit)
	require.Equal(t, start+7200, got.LastUpdatedBorrow)
}

func TestAccrueIsIdempotentForSameInstant(t *testing.T) {
	engine := NewEngine(time.Hour)
	start := int64(1_700_000_000)
	now := time.Unix(start+1800, 0)

	once, err := engine.Accrue(testPool("0.05", 10_000, 0, start), now)
	require.NoError(t, err)
	twice, err := engine.Accrue(once, now)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestAccrueSidesTrackedIndependently(t *testing.T) {
	engine := NewEngine(time.Hour)
	pool := testPool("0.10", 1_000, 1_000, 0)
	pool.LastUpdatedDeposit = 3600

	got, err := engine.Accrue(pool, time.Unix(7200, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(1_100), got.TotalDeposited)
	require.Equal(t, uint64(1_200), got.TotalBorrowed)
}

func TestAccrueRoundsDown(t *testing.T) {
	engine := NewEngine(time.Hour)
	got, err := engine.Accrue(testPool("0.05", 999, 0, 0), time.Unix(60, 0))
	require.NoError(t, err)
	// 999*0.05/60 = 0.8325
	require.Equal(t, uint64(999), got.TotalDeposited)
	require.Equal(t, int64(60), got.LastUpdatedDeposit)
}

func TestAccrueClockBehindStoredTimestamp(t *testing.T) {
	engine := NewEngine(time.Hour)
	pool := testPool("0.05", 1_000, 0, 10_000)

	got, err := engine.Accrue(pool, time.Unix(5_000, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), got.TotalDeposited)
	require.Equal(t, int64(10_000), got.LastUpdatedDeposit)
}

func TestAccrueOverflow(t *testing.T) {
	engine := NewEngine(time.Hour)
	_, err := engine.Accrue(testPool("1", math.MaxUint64-1, 0, 0), time.Unix(3600, 0))
	require.ErrorIs(t, err, errs.ErrArithmeticOverflow)
}

func TestAccruePreservesDepositCoverage(t *testing.T) {
	engine := NewEngine(time.Hour)
	pool := testPool("0.0137", 5_003, 5_003, 0)
	for step := int64(1); step <= 50; step++ {
		var err error
		pool, err = engine.Accrue(pool, time.Unix(step*997, 0))
		require.NoError(t, err)
		require.GreaterOrEqual(t, pool.TotalDeposited, pool.TotalBorrowed)
	}
}

func TestInterestSubSecondPeriod(t *testing.T) {
	engine := Engine{Period: 500 * time.Millisecond}
	got, err := engine.Interest(1_000, decimal.RequireFromString("0.01"), time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(20), got)

	got, err = Engine{}.Interest(1_000, decimal.RequireFromString("0.01"), time.Hour)
	require.NoError(t, err)
	require.Equal(t, uint64(10), got)

	got, err = engine.Interest(1_000, decimal.RequireFromString("0.01"), 0)
	require.NoError(t, err)
	require.Zero(t, got)
}
