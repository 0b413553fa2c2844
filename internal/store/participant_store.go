package store

import (
	"context"
	"time"

	"lending/internal/models"
)

// ParticipantStore persists lending users and their balance records.
// Credentials for the HTTP surface live in UserStore.
type ParticipantStore struct {
	db DB
}

func NewParticipantStore(db DB) *ParticipantStore {
	return &ParticipantStore{db: db}
}

type participantRow struct {
	Owner     string    `db:"owner"`
	CreatedAt time.Time `db:"created_at"`
}

type balanceRow struct {
	Slot               int    `db:"slot"`
	BankAddress        string `db:"bank_address"`
	Deposited          uint64 `db:"deposited"`
	DepositedShares    uint64 `db:"deposited_shares"`
	Borrowed           uint64 `db:"borrowed"`
	BorrowedShares     uint64 `db:"borrowed_shares"`
	LastUpdatedDeposit int64  `db:"last_updated_deposit"`
	LastUpdatedBorrow  int64  `db:"last_updated_borrow"`
}

const balanceQuery = `
		SELECT slot, bank_address, deposited, deposited_shares, borrowed, borrowed_shares,
			last_updated_deposit, last_updated_borrow
		FROM balances
		WHERE owner = $1
		ORDER BY slot
	`

func (s *ParticipantStore) Get(ctx context.Context, owner string) (models.User, error) {
	var row participantRow
	if err := s.db.GetContext(ctx, &row, `SELECT owner, created_at FROM participants WHERE owner = $1`, owner); err != nil {
		return models.User{}, mapError(err)
	}
	return s.withBalances(ctx, s.db, row)
}

func (s *ParticipantStore) GetForUpdate(ctx context.Context, tx Tx, owner string) (models.User, error) {
	var row participantRow
	err := tx.GetContext(ctx, &row, `
		SELECT owner, created_at
		FROM participants
		WHERE owner = $1
		FOR UPDATE
	`, owner)
	if err != nil {
		return models.User{}, mapError(err)
	}
	return s.withBalances(ctx, tx, row)
}

func (s *ParticipantStore) withBalances(ctx context.Context, q Selecter, row participantRow) (models.User, error) {
	var rows []balanceRow
	if err := q.SelectContext(ctx, &rows, balanceQuery, row.Owner); err != nil {
		return models.User{}, err
	}
	user := models.User{Owner: row.Owner, CreatedAt: row.CreatedAt, Balances: make([]models.Balance, 0, len(rows))}
	for _, b := range rows {
		user.Balances = append(user.Balances, models.Balance{
			BankAddress:        b.BankAddress,
			Deposited:          b.Deposited,
			DepositedShares:    b.DepositedShares,
			Borrowed:           b.Borrowed,
			BorrowedShares:     b.BorrowedShares,
			LastUpdatedDeposit: b.LastUpdatedDeposit,
			LastUpdatedBorrow:  b.LastUpdatedBorrow,
		})
	}
	return user, nil
}

func (s *ParticipantStore) Create(ctx context.Context, tx Execer, user models.User) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO participants (owner, created_at)
		VALUES ($1, $2)
	`, user.Owner, user.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	return s.SaveBalances(ctx, tx, user)
}

// SaveBalances upserts every record in slot order. Records are never removed.
func (s *ParticipantStore) SaveBalances(ctx context.Context, tx Execer, user models.User) error {
	for slot, b := range user.Balances {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO balances (owner, slot, bank_address, deposited, deposited_shares, borrowed, borrowed_shares,
				last_updated_deposit, last_updated_borrow)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (owner, bank_address) DO UPDATE
			SET deposited = EXCLUDED.deposited,
				deposited_shares = EXCLUDED.deposited_shares,
				borrowed = EXCLUDED.borrowed,
				borrowed_shares = EXCLUDED.borrowed_shares,
				last_updated_deposit = EXCLUDED.last_updated_deposit,
				last_updated_borrow = EXCLUDED.last_updated_borrow
		`, user.Owner, slot, b.BankAddress, u64(b.Deposited), u64(b.DepositedShares),
			u64(b.Borrowed), u64(b.BorrowedShares), b.LastUpdatedDeposit, b.LastUpdatedBorrow)
		if err != nil {
			return err
		}
	}
	return nil
}
