// Package bank owns pool entities: creation, closure and the
// deposit/withdraw/borrow/repay mutations against a user's balance record.
package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lending/internal/errs"
	"lending/internal/interest"
	"lending/internal/models"
	"lending/internal/oracle"
	"lending/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var poolNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:lending:pool"))

// PoolAddress derives the key a pool is stored under from its asset id.
func PoolAddress(assetID string) string {
	return uuid.NewSHA1(poolNamespace, []byte(assetID)).String()
}

// Pools is the slice of the store the registry needs.
type Pools interface {
	LockPool(ctx context.Context, address string) (models.Pool, error)
	InsertPool(ctx context.Context, pool models.Pool) error
	DeletePool(ctx context.Context, address string) error
}

type CreateParams struct {
	Authority            string
	AssetID              string
	LiquidationThreshold decimal.Decimal
	LiquidationBonus     decimal.Decimal
	CloseFactor          decimal.Decimal
	MaxLTV               decimal.Decimal
	FeedID               oracle.FeedID
	Ticker               string
	InterestRate         decimal.Decimal
}

// MaxParamDecimals is the scale pool parameters are stored with. Values
// that would round at that scale are rejected so every store keeps them
// exactly.
const MaxParamDecimals = 9

var maxInterestRate = decimal.New(1, 15)

func checkScale(name string, value decimal.Decimal) error {
	if !value.Truncate(MaxParamDecimals).Equal(value) {
		return fmt.Errorf("%s %s has more than %d decimals: %w", name, value, MaxParamDecimals, errs.ErrInvalidConfig)
	}
	return nil
}

func (p CreateParams) validate() error {
	if p.Authority == "" {
		return fmt.Errorf("missing authority: %w", errs.ErrInvalidConfig)
	}
	if err := validator.ValidateAssetID(p.AssetID); err != nil {
		return fmt.Errorf("asset %q: %v: %w", p.AssetID, err, errs.ErrInvalidConfig)
	}
	if err := validator.ValidateTicker(p.Ticker); err != nil {
		return fmt.Errorf("ticker %q: %v: %w", p.Ticker, err, errs.ErrInvalidConfig)
	}
	if p.FeedID.IsZero() {
		return fmt.Errorf("missing oracle feed id: %w", errs.ErrInvalidConfig)
	}
	fractions := []struct {
		name  string
		value decimal.Decimal
	}{
		{"liquidation_threshold", p.LiquidationThreshold},
		{"liquidation_bonus", p.LiquidationBonus},
		{"close_factor", p.CloseFactor},
		{"max_ltv", p.MaxLTV},
	}
	for _, f := range fractions {
		if f.value.IsNegative() || f.value.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s %s outside [0,1]: %w", f.name, f.value, errs.ErrInvalidConfig)
		}
		if err := checkScale(f.name, f.value); err != nil {
			return err
		}
	}
	if p.InterestRate.IsNegative() {
		return fmt.Errorf("interest_rate %s is negative: %w", p.InterestRate, errs.ErrInvalidConfig)
	}
	if !p.InterestRate.LessThan(maxInterestRate) {
		return fmt.Errorf("interest_rate %s exceeds %s: %w", p.InterestRate, maxInterestRate, errs.ErrInvalidConfig)
	}
	return checkScale("interest_rate", p.InterestRate)
}

// Receipt is the outcome of one mutation: the underlying amount moved and
// the shares minted or burned for it.
type Receipt struct {
	Amount uint64
	Shares uint64
}

type Registry struct {
	accrual interest.Engine
}

func NewRegistry(accrual interest.Engine) Registry {
	return Registry{accrual: accrual}
}

func (r Registry) CreatePool(ctx context.Context, pools Pools, params CreateParams, now time.Time) (models.Pool, error) {
	if err := params.validate(); err != nil {
		return models.Pool{}, err
	}
	address := PoolAddress(params.AssetID)
	_, err := pools.LockPool(ctx, address)
	switch {
	case err == nil:
		return models.Pool{}, fmt.Errorf("pool for %s: %w: %w", params.AssetID, errs.ErrAlreadyExists, errs.ErrInvalidConfig)
	case !errors.Is(err, errs.ErrNotFound):
		return models.Pool{}, err
	}
	ts := now.Unix()
	pool := models.Pool{
		Address:              address,
		AssetID:              params.AssetID,
		Authority:            params.Authority,
		Config:               models.PoolConfig{FeedID: params.FeedID, Ticker: params.Ticker},
		LiquidationThreshold: params.LiquidationThreshold,
		LiquidationBonus:     params.LiquidationBonus,
		CloseFactor:          params.CloseFactor,
		MaxLTV:               params.MaxLTV,
		InterestRate:         params.InterestRate,
		LastUpdatedDeposit:   ts,
		LastUpdatedBorrow:    ts,
		CreatedAt:            now.UTC(),
	}
	if err := pools.InsertPool(ctx, pool); err != nil {
		return models.Pool{}, err
	}
	return pool, nil
}

// ClosePool removes an empty pool. Only the pool authority may close it.
func (r Registry) ClosePool(ctx context.Context, pools Pools, authority, assetID string) (models.Pool, error) {
	pool, err := pools.LockPool(ctx, PoolAddress(assetID))
	if err != nil {
		return models.Pool{}, err
	}
	if pool.Authority != authority {
		return models.Pool{}, fmt.Errorf("close %s: %w", assetID, errs.ErrUnauthorized)
	}
	if pool.TotalDeposited > 0 || pool.TotalBorrowed > 0 {
		return models.Pool{}, fmt.Errorf("close %s: deposited %d borrowed %d: %w", assetID, pool.TotalDeposited, pool.TotalBorrowed, errs.ErrPoolNotEmpty)
	}
	if err := pools.DeletePool(ctx, pool.Address); err != nil {
		return models.Pool{}, err
	}
	return pool, nil
}

// Accrue brings the pool's totals up to now.
func (r Registry) Accrue(pool *models.Pool, now time.Time) error {
	accrued, err := r.accrual.Accrue(*pool, now)
	if err != nil {
		return err
	}
	*pool = accrued
	return nil
}
