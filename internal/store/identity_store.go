package store

import (
	"context"
	"fmt"
	"time"
)

// Identity is a login account. Its ID is the owner key of the matching
// ledger participant.
type Identity struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type IdentityStore struct {
	db DB
}

func NewIdentityStore(db DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) Create(ctx context.Context, tx Execer, identity Identity) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
	`, identity.ID, identity.Username, identity.Email, identity.PasswordHash)
	if err != nil {
		return fmt.Errorf("create identity %s: %w", identity.Username, mapError(err))
	}
	return nil
}

func (s *IdentityStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	return s.getBy(ctx, "email", email)
}

func (s *IdentityStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	return s.getBy(ctx, "username", username)
}

func (s *IdentityStore) GetByID(ctx context.Context, id string) (Identity, error) {
	return s.getBy(ctx, "id", id)
}

// column is always one of the literals above.
func (s *IdentityStore) getBy(ctx context.Context, column, value string) (Identity, error) {
	var identity Identity
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE ` + column + ` = $1`
	if err := s.db.GetContext(ctx, &identity, query, value); err != nil {
		return Identity{}, fmt.Errorf("identity by %s: %w", column, mapError(err))
	}
	return identity, nil
}
