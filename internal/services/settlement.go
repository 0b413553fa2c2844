package services

import (
	"context"

	"lending/internal/models"
)

// Direction says which way underlying tokens move relative to the pool.
type Direction string

const (
	IntoPool  Direction = "into_pool"
	OutOfPool Direction = "out_of_pool"
)

// Transfer describes the token movement backing one ledger mutation.
type Transfer struct {
	OperationID string
	Kind        models.OperationKind
	Owner       string
	AssetID     string
	Direction   Direction
	Amount      uint64
}

// Settlement moves underlying tokens. It runs inside the mutation's atomic
// unit after every ledger check has passed; an error aborts the mutation.
// A unit may be retried, so Settle must be idempotent per OperationID.
type Settlement interface {
	Settle(ctx context.Context, transfer Transfer) error
}

// NoopSettlement accepts every transfer. Used when token custody lives
// outside this service.
type NoopSettlement struct{}

func (NoopSettlement) Settle(context.Context, Transfer) error { return nil }
