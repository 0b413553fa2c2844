// Package risk values positions with oracle prices and decides whether a
// borrow or withdrawal keeps the position collateralized.
package risk

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"lending/internal/bank"
	"lending/internal/errs"
	"lending/internal/models"
	"lending/internal/oracle"

	"github.com/shopspring/decimal"
)

// Prices is satisfied by *oracle.Gateway.
type Prices interface {
	GetPrice(ctx context.Context, feed oracle.FeedID, maxStaleness time.Duration) (oracle.Quote, error)
}

type Engine struct {
	prices   Prices
	registry bank.Registry
	maxAge   time.Duration
}

func NewEngine(prices Prices, registry bank.Registry, maxAge time.Duration) *Engine {
	if maxAge <= 0 {
		maxAge = oracle.DefaultMaxAge
	}
	return &Engine{prices: prices, registry: registry, maxAge: maxAge}
}

func (e *Engine) MaxAge() time.Duration {
	return e.maxAge
}

// Decision is the outcome of a borrow assessment. Reason is set when the
// borrow is denied and wraps errs.ErrInsufficientCollateral.
type Decision struct {
	Allowed         bool            `json:"allowed"`
	Reason          error           `json:"-"`
	CollateralValue decimal.Decimal `json:"collateral_value"`
	MaxBorrowValue  decimal.Decimal `json:"max_borrow_value"`
	RequestedValue  decimal.Decimal `json:"requested_value"`
	CollateralPrice decimal.Decimal `json:"collateral_price"`
	BorrowPrice     decimal.Decimal `json:"borrow_price"`
}

// Err returns Reason for a denied decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// AssessBorrow accrues both pools in place, prices them and checks that the
// user's debt in borrowPool plus amount stays within the collateral pool's
// max LTV. Only this pair is considered.
func (e *Engine) AssessBorrow(ctx context.Context, user models.User, collateral, borrow *models.Pool, amount uint64, now time.Time) (Decision, error) {
	if err := e.registry.Accrue(collateral, now); err != nil {
		return Decision{}, err
	}
	if collateral.Address == borrow.Address {
		*borrow = *collateral
	} else if err := e.registry.Accrue(borrow, now); err != nil {
		return Decision{}, err
	}
	collateralQuote, err := e.prices.GetPrice(ctx, collateral.Config.FeedID, e.maxAge)
	if err != nil {
		return Decision{}, fmt.Errorf("price %s: %w", collateral.AssetID, err)
	}
	borrowQuote, err := e.prices.GetPrice(ctx, borrow.Config.FeedID, e.maxAge)
	if err != nil {
		return Decision{}, fmt.Errorf("price %s: %w", borrow.AssetID, err)
	}

	var supplied, owed uint64
	if bal := user.Balance(collateral.Address); bal != nil {
		if supplied, err = bank.Supplied(*collateral, *bal); err != nil {
			return Decision{}, err
		}
	}
	if bal := user.Balance(borrow.Address); bal != nil {
		if owed, err = bank.Owed(*borrow, *bal); err != nil {
			return Decision{}, err
		}
	}

	decision := Decision{
		CollateralPrice: collateralQuote.Price,
		BorrowPrice:     borrowQuote.Price,
		CollateralValue: value(supplied, collateralQuote.Price),
		RequestedValue:  value(amount, borrowQuote.Price).Add(value(owed, borrowQuote.Price)),
	}
	decision.MaxBorrowValue = decision.CollateralValue.Mul(collateral.MaxLTV)
	if decision.RequestedValue.GreaterThan(decision.MaxBorrowValue) {
		decision.Reason = fmt.Errorf("borrow value %s exceeds %s: %w", decision.RequestedValue, decision.MaxBorrowValue, errs.ErrInsufficientCollateral)
		return decision, nil
	}
	decision.Allowed = true
	return decision, nil
}

func value(amount uint64, price decimal.Decimal) decimal.Decimal {
	return units(amount).Mul(price)
}

func units(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
}
