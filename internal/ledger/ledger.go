// Package ledger owns user entities and their per-pool balance records.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lending/internal/errs"
	"lending/internal/models"
)

// DefaultCapacity is the number of pools a user may hold positions in.
const DefaultCapacity = 3

// Users is the slice of the store the ledger needs to create users.
type Users interface {
	LockUser(ctx context.Context, owner string) (models.User, error)
	InsertUser(ctx context.Context, user models.User) error
}

type Ledger struct {
	capacity int
}

func New(capacity int) Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Ledger{capacity: capacity}
}

func (l Ledger) Capacity() int {
	return l.capacity
}

// InitUser creates the user for owner. A second call for the same owner
// fails with errs.ErrAlreadyExists.
func (l Ledger) InitUser(ctx context.Context, users Users, owner string, now time.Time) (models.User, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return models.User{}, fmt.Errorf("empty owner: %w", errs.ErrInvalidConfig)
	}
	_, err := users.LockUser(ctx, owner)
	switch {
	case err == nil:
		return models.User{}, fmt.Errorf("user %s: %w", owner, errs.ErrAlreadyExists)
	case !errors.Is(err, errs.ErrNotFound):
		return models.User{}, err
	}
	user := models.User{
		Owner:     owner,
		Balances:  make([]models.Balance, 0, l.capacity),
		CreatedAt: now.UTC(),
	}
	if err := users.InsertUser(ctx, user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetOrCreateBalance returns the record for bankAddress, appending a zeroed
// one when the user has none. Records are never evicted.
func (l Ledger) GetOrCreateBalance(user *models.User, bankAddress string) (*models.Balance, error) {
	if existing := user.Balance(bankAddress); existing != nil {
		return existing, nil
	}
	if len(user.Balances) >= l.capacity {
		return nil, fmt.Errorf("user %s holds %d of %d records: %w", user.Owner, len(user.Balances), l.capacity, errs.ErrBalanceSlotFull)
	}
	user.Balances = append(user.Balances, models.Balance{BankAddress: bankAddress})
	return &user.Balances[len(user.Balances)-1], nil
}
