package store

import (
	"context"

	"lending/internal/models"
)

// UnitOfWork is the view of the store inside one atomic mutation. Lock
// methods return errs.ErrNotFound for a missing key and hold the row until
// the unit ends. Insert methods return errs.ErrAlreadyExists on a duplicate.
type UnitOfWork interface {
	LockPool(ctx context.Context, address string) (models.Pool, error)
	InsertPool(ctx context.Context, pool models.Pool) error
	UpdatePool(ctx context.Context, pool models.Pool) error
	DeletePool(ctx context.Context, address string) error

	LockUser(ctx context.Context, owner string) (models.User, error)
	InsertUser(ctx context.Context, user models.User) error
	UpdateUser(ctx context.Context, user models.User) error

	RecordOperation(ctx context.Context, op models.Operation) error
}

// Runner executes fn as one unit: every write commits or none does.
type Runner interface {
	Atomically(ctx context.Context, fn func(UnitOfWork) error) error
}

// Reader serves snapshots outside a unit of work.
type Reader interface {
	GetPool(ctx context.Context, address string) (models.Pool, error)
	ListPools(ctx context.Context) ([]models.Pool, error)
	GetUser(ctx context.Context, owner string) (models.User, error)
	ListOperations(ctx context.Context, owner string, limit, offset int) ([]models.Operation, error)
}

// Lending is a store that can both run units and serve reads.
type Lending interface {
	Runner
	Reader
}
