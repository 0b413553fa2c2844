// Package money parses token amounts and risk fractions from request text.
package money

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountTooLarge  = errors.New("amount exceeds 64 bits")
	ErrInvalidFraction = errors.New("invalid fraction")
	ErrTooManyDecimals = errors.New("fraction has too many decimal places")
)

// MaxFractionDecimals bounds the precision accepted for ratios and rates.
const MaxFractionDecimals = 9

// ParseAmount reads a positive integer count of base units. Underscores
// may group digits ("1_000_000").
func ParseAmount(input string) (uint64, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(input), "_", "")
	trimmed = strings.TrimPrefix(trimmed, "+")
	if trimmed == "" || !isDigits(trimmed) {
		return 0, ErrInvalidAmount
	}
	value, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, ErrAmountTooLarge
		}
		return 0, ErrInvalidAmount
	}
	if value == 0 {
		return 0, ErrInvalidAmount
	}
	return value, nil
}

// ParseFraction reads a decimal ratio in [0, 1].
func ParseFraction(input string) (decimal.Decimal, error) {
	value, err := parseDecimal(input)
	if err != nil {
		return decimal.Zero, err
	}
	if value.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, ErrInvalidFraction
	}
	return value, nil
}

// ParseRate reads a non-negative per-period interest rate.
func ParseRate(input string) (decimal.Decimal, error) {
	return parseDecimal(input)
}

func parseDecimal(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || value.IsNegative() {
		return decimal.Zero, ErrInvalidFraction
	}
	if value.Exponent() < -MaxFractionDecimals {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
