package handlers

import (
	"fmt"

	"lending/internal/bank"
	"lending/internal/errs"
	"lending/internal/money"
	"lending/internal/oracle"

	"github.com/shopspring/decimal"
)

func parseAmount(raw string) (uint64, error) {
	amount, err := money.ParseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %v: %w", raw, err, errs.ErrInvalidAmount)
	}
	return amount, nil
}

type createPoolRequest struct {
	AssetID              string `json:"asset_id"`
	Ticker               string `json:"ticker"`
	OracleFeedID         string `json:"oracle_feed_id"`
	LiquidationThreshold string `json:"liquidation_threshold"`
	LiquidationBonus     string `json:"liquidation_bonus"`
	CloseFactor          string `json:"close_factor"`
	MaxLTV               string `json:"max_ltv"`
	InterestRate         string `json:"interest_rate"`
}

// params converts the request text into pool parameters. Range checks
// beyond parsing belong to the registry.
func (req createPoolRequest) params(authority string) (bank.CreateParams, error) {
	feed, err := oracle.ParseFeedID(req.OracleFeedID)
	if err != nil {
		return bank.CreateParams{}, err
	}
	params := bank.CreateParams{
		Authority: authority,
		AssetID:   req.AssetID,
		Ticker:    req.Ticker,
		FeedID:    feed,
	}
	fractions := []struct {
		name  string
		raw   string
		dst   *decimal.Decimal
		parse func(string) (decimal.Decimal, error)
	}{
		{"liquidation_threshold", req.LiquidationThreshold, &params.LiquidationThreshold, money.ParseFraction},
		{"liquidation_bonus", req.LiquidationBonus, &params.LiquidationBonus, money.ParseFraction},
		{"close_factor", req.CloseFactor, &params.CloseFactor, money.ParseFraction},
		{"max_ltv", req.MaxLTV, &params.MaxLTV, money.ParseFraction},
		{"interest_rate", req.InterestRate, &params.InterestRate, money.ParseRate},
	}
	for _, f := range fractions {
		value, err := f.parse(f.raw)
		if err != nil {
			return bank.CreateParams{}, fmt.Errorf("%s %q: %v: %w", f.name, f.raw, err, errs.ErrInvalidConfig)
		}
		*f.dst = value
	}
	return params, nil
}
