// Package validator checks identifiers that arrive from request bodies.
package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidTicker   = errors.New("invalid ticker symbol")
	ErrInvalidAssetID  = errors.New("invalid asset id")
)

// bcrypt ignores input past 72 bytes.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

type pattern struct {
	re  *regexp.Regexp
	err error
}

func (p pattern) check(value string) error {
	if !p.re.MatchString(value) {
		return p.err
	}
	return nil
}

var (
	email    = pattern{regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`), ErrInvalidEmail}
	username = pattern{regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`), ErrInvalidUsername}
	ticker   = pattern{regexp.MustCompile(`^[A-Za-z0-9]{1,5}$`), ErrInvalidTicker}
	assetID  = pattern{regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`), ErrInvalidAssetID}
)

func ValidateEmail(value string) error    { return email.check(value) }
func ValidateUsername(value string) error { return username.check(value) }

// ValidateTicker accepts 1 to 5 alphanumeric characters.
func ValidateTicker(value string) error { return ticker.check(value) }

// ValidateAssetID accepts mint addresses and symbolic ids up to 64 characters.
func ValidateAssetID(value string) error { return assetID.check(value) }

func ValidatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}
