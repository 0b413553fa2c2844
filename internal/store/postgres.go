package store

import (
	"context"

	"lending/internal/db"
	"lending/internal/models"

	"github.com/jmoiron/sqlx"
)

// Postgres is the Lending store backed by sqlx. Every unit runs in one
// serializable transaction through db.TxRunner, which retries on
// serialization failures, so fn may run more than once.
type Postgres struct {
	txRunner     db.TxRunner
	pools        *PoolStore
	participants *ParticipantStore
	operations   *OperationStore
}

func NewPostgres(database DB, txRunner db.TxRunner) *Postgres {
	return &Postgres{
		txRunner:     txRunner,
		pools:        NewPoolStore(database),
		participants: NewParticipantStore(database),
		operations:   NewOperationStore(database),
	}
}

func (p *Postgres) Atomically(ctx context.Context, fn func(UnitOfWork) error) error {
	return p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(p.unit(tx))
	})
}

func (p *Postgres) unit(tx Tx) *pgUnit {
	return &pgUnit{tx: tx, store: p}
}

func (p *Postgres) GetPool(ctx context.Context, address string) (models.Pool, error) {
	return p.pools.Get(ctx, address)
}

func (p *Postgres) ListPools(ctx context.Context) ([]models.Pool, error) {
	return p.pools.List(ctx)
}

func (p *Postgres) GetUser(ctx context.Context, owner string) (models.User, error) {
	return p.participants.Get(ctx, owner)
}

func (p *Postgres) ListOperations(ctx context.Context, owner string, limit, offset int) ([]models.Operation, error) {
	return p.operations.ListByOwner(ctx, owner, limit, offset)
}

type pgUnit struct {
	tx    Tx
	store *Postgres
}

func (u *pgUnit) LockPool(ctx context.Context, address string) (models.Pool, error) {
	return u.store.pools.GetForUpdate(ctx, u.tx, address)
}

func (u *pgUnit) InsertPool(ctx context.Context, pool models.Pool) error {
	return u.store.pools.Create(ctx, u.tx, pool)
}

func (u *pgUnit) UpdatePool(ctx context.Context, pool models.Pool) error {
	return u.store.pools.Update(ctx, u.tx, pool)
}

func (u *pgUnit) DeletePool(ctx context.Context, address string) error {
	return u.store.pools.Delete(ctx, u.tx, address)
}

func (u *pgUnit) LockUser(ctx context.Context, owner string) (models.User, error) {
	return u.store.participants.GetForUpdate(ctx, u.tx, owner)
}

func (u *pgUnit) InsertUser(ctx context.Context, user models.User) error {
	return u.store.participants.Create(ctx, u.tx, user)
}

func (u *pgUnit) UpdateUser(ctx context.Context, user models.User) error {
	return u.store.participants.SaveBalances(ctx, u.tx, user)
}

func (u *pgUnit) RecordOperation(ctx context.Context, op models.Operation) error {
	return u.store.operations.Create(ctx, u.tx, op)
}
