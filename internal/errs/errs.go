// Package errs holds the error kinds shared by the lending core.
//
// Every kind is a sentinel matched with errors.Is; callers wrap them with
// fmt.Errorf("...: %w", err) to add context.
package errs

import "errors"

var (
	ErrInvalidConfig          = errors.New("invalid config")
	ErrAlreadyExists          = errors.New("already exists")
	ErrPoolNotEmpty           = errors.New("pool not empty")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrStalePrice             = errors.New("stale price")
	ErrFeedNotFound           = errors.New("feed not found")
	ErrBalanceSlotFull        = errors.New("balance slot full")
	ErrOverRepayment          = errors.New("over repayment")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
	ErrZeroShareDivision      = errors.New("zero share division")

	ErrNotFound              = errors.New("not found")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidPrice          = errors.New("invalid price")
)

// Class groups error kinds by what a caller can do about them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassTransient may succeed when retried with fresher inputs.
	ClassTransient
	// ClassPermanent will not succeed without changing the request.
	ClassPermanent
	// ClassConfig is a programming or configuration error.
	ClassConfig
	// ClassInvariant means pool state broke an accounting invariant.
	ClassInvariant
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassConfig:
		return "config"
	case ClassInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

var classes = []struct {
	err   error
	class Class
}{
	{ErrAlreadyExists, ClassPermanent},
	{ErrStalePrice, ClassTransient},
	{ErrInvalidConfig, ClassConfig},
	{ErrUnauthorized, ClassConfig},
	{ErrArithmeticOverflow, ClassInvariant},
	{ErrZeroShareDivision, ClassInvariant},
	{ErrPoolNotEmpty, ClassPermanent},
	{ErrInsufficientBalance, ClassPermanent},
	{ErrInsufficientCollateral, ClassPermanent},
	{ErrFeedNotFound, ClassPermanent},
	{ErrBalanceSlotFull, ClassPermanent},
	{ErrOverRepayment, ClassPermanent},
	{ErrNotFound, ClassPermanent},
	{ErrInvalidAmount, ClassPermanent},
	{ErrInsufficientLiquidity, ClassPermanent},
	{ErrInvalidPrice, ClassPermanent},
}

// Classify reports the class of the first known kind found in err's chain.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.class
		}
	}
	return ClassUnknown
}

func IsTransient(err error) bool { return Classify(err) == ClassTransient }

func IsConfig(err error) bool { return Classify(err) == ClassConfig }

func IsInvariant(err error) bool { return Classify(err) == ClassInvariant }

// Code returns a stable snake_case identifier for err, or "internal_error".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrPoolNotEmpty):
		return "pool_not_empty"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrStalePrice):
		return "stale_price"
	case errors.Is(err, ErrFeedNotFound):
		return "feed_not_found"
	case errors.Is(err, ErrBalanceSlotFull):
		return "balance_slot_full"
	case errors.Is(err, ErrOverRepayment):
		return "over_repayment"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrZeroShareDivision):
		return "zero_share_division"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	default:
		return "internal_error"
	}
}
