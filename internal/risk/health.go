package risk

import (
	"context"
	"fmt"
	"time"

	"lending/internal/bank"
	"lending/internal/errs"
	"lending/internal/models"

	"github.com/shopspring/decimal"
)

// Position is one balance record valued at the current price.
type Position struct {
	AssetID          string          `json:"asset_id"`
	Supplied         uint64          `json:"supplied,string"`
	Owed             uint64          `json:"owed,string"`
	Price            decimal.Decimal `json:"price"`
	SuppliedValue    decimal.Decimal `json:"supplied_value"`
	OwedValue        decimal.Decimal `json:"owed_value"`
	MaxLiquidatable  uint64          `json:"max_liquidatable,string"`
	LiquidationBonus decimal.Decimal `json:"liquidation_bonus"`
}

// HealthReport aggregates a user's positions. HealthFactor is zero when the
// user has no debt.
type HealthReport struct {
	Owner           string          `json:"owner"`
	Positions       []Position      `json:"positions"`
	CollateralValue decimal.Decimal `json:"collateral_value"`
	BorrowCapacity  decimal.Decimal `json:"borrow_capacity"`
	LiquidationLine decimal.Decimal `json:"liquidation_line"`
	BorrowedValue   decimal.Decimal `json:"borrowed_value"`
	HealthFactor    decimal.Decimal `json:"health_factor"`
	Liquidatable    bool            `json:"liquidatable"`
}

// Health values every position of user. pools must hold the pool for each
// of the user's balance records, keyed by address. Pools are accrued in place.
// A position is liquidatable once borrowed value exceeds collateral value
// weighted by each pool's liquidation threshold.
func (e *Engine) Health(ctx context.Context, user models.User, pools map[string]*models.Pool, now time.Time) (HealthReport, error) {
	report := HealthReport{
		Owner:           user.Owner,
		Positions:       make([]Position, 0, len(user.Balances)),
		CollateralValue: decimal.Zero,
		BorrowCapacity:  decimal.Zero,
		LiquidationLine: decimal.Zero,
		BorrowedValue:   decimal.Zero,
		HealthFactor:    decimal.Zero,
	}
	for _, bal := range user.Balances {
		if bal.DepositedShares == 0 && bal.BorrowedShares == 0 {
			continue
		}
		pool, ok := pools[bal.BankAddress]
		if !ok {
			return HealthReport{}, fmt.Errorf("pool %s for %s: %w", bal.BankAddress, user.Owner, errs.ErrNotFound)
		}
		if err := e.registry.Accrue(pool, now); err != nil {
			return HealthReport{}, err
		}
		quote, err := e.prices.GetPrice(ctx, pool.Config.FeedID, e.maxAge)
		if err != nil {
			return HealthReport{}, fmt.Errorf("price %s: %w", pool.AssetID, err)
		}
		supplied, err := bank.Supplied(*pool, bal)
		if err != nil {
			return HealthReport{}, err
		}
		owed, err := bank.Owed(*pool, bal)
		if err != nil {
			return HealthReport{}, err
		}
		pos := Position{
			AssetID:          pool.AssetID,
			Supplied:         supplied,
			Owed:             owed,
			Price:            quote.Price,
			SuppliedValue:    value(supplied, quote.Price),
			OwedValue:        value(owed, quote.Price),
			MaxLiquidatable:  units(owed).Mul(pool.CloseFactor).Floor().BigInt().Uint64(),
			LiquidationBonus: pool.LiquidationBonus,
		}
		report.Positions = append(report.Positions, pos)
		report.CollateralValue = report.CollateralValue.Add(pos.SuppliedValue)
		report.BorrowCapacity = report.BorrowCapacity.Add(pos.SuppliedValue.Mul(pool.MaxLTV))
		report.LiquidationLine = report.LiquidationLine.Add(pos.SuppliedValue.Mul(pool.LiquidationThreshold))
		report.BorrowedValue = report.BorrowedValue.Add(pos.OwedValue)
	}
	if report.BorrowedValue.IsPositive() {
		report.HealthFactor = report.LiquidationLine.DivRound(report.BorrowedValue, 18)
		report.Liquidatable = report.BorrowedValue.GreaterThan(report.LiquidationLine)
	}
	return report, nil
}

// CheckSolvent fails with errs.ErrInsufficientCollateral when the user's
// debt is worth more than the max-LTV weighted value of their deposits.
// Users without debt are always solvent and need no prices.
func (e *Engine) CheckSolvent(ctx context.Context, user models.User, pools map[string]*models.Pool, now time.Time) error {
	indebted := false
	for _, bal := range user.Balances {
		if bal.BorrowedShares > 0 {
			indebted = true
			break
		}
	}
	if !indebted {
		return nil
	}
	report, err := e.Health(ctx, user, pools, now)
	if err != nil {
		return err
	}
	if report.BorrowedValue.GreaterThan(report.BorrowCapacity) {
		return fmt.Errorf("debt %s exceeds capacity %s: %w", report.BorrowedValue, report.BorrowCapacity, errs.ErrInsufficientCollateral)
	}
	return nil
}
