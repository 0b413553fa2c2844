package handlers

import (
	"context"

	"lending/internal/bank"
	"lending/internal/models"
	"lending/internal/risk"
	"lending/internal/services"
	"lending/internal/store"
)

type IdentityStore interface {
	Create(ctx context.Context, tx store.Execer, identity store.Identity) error
	GetByEmail(ctx context.Context, email string) (store.Identity, error)
	GetByUsername(ctx context.Context, username string) (store.Identity, error)
	GetByID(ctx context.Context, id string) (store.Identity, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	Roles(ctx context.Context, userID string) ([]string, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context, q store.Getter) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID string, data any) error
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

// LendingService is the ledger surface exposed over HTTP. Owners are the
// authenticated identity ids.
type LendingService interface {
	InitUser(ctx context.Context, owner string) (models.User, error)
	CreatePool(ctx context.Context, params bank.CreateParams) (models.Pool, error)
	ClosePool(ctx context.Context, authority, assetID string) error
	Deposit(ctx context.Context, owner, assetID string, amount uint64) (services.Result, error)
	Withdraw(ctx context.Context, owner, assetID string, amount uint64) (services.Result, error)
	Borrow(ctx context.Context, req services.BorrowRequest) (services.Result, error)
	Repay(ctx context.Context, owner, assetID string, amount uint64) (services.Result, error)
	AssessBorrow(ctx context.Context, req services.BorrowRequest) (risk.Decision, error)
	Health(ctx context.Context, owner string) (risk.HealthReport, error)
	Pool(ctx context.Context, assetID string) (models.Pool, error)
	Pools(ctx context.Context) ([]models.Pool, error)
	User(ctx context.Context, owner string) (models.User, error)
	Operations(ctx context.Context, owner string, limit, offset int) ([]models.Operation, error)
}
