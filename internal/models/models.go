package models

import (
	"time"

	"lending/internal/oracle"

	"github.com/shopspring/decimal"
)

// PoolConfig is fixed when the pool is created.
type PoolConfig struct {
	FeedID oracle.FeedID `json:"oracle_feed_id"`
	Ticker string        `json:"ticker_symbol"`
}

// Pool is the per-asset deposit and borrow book.
type Pool struct {
	Address              string          `db:"address" json:"address"`
	AssetID              string          `db:"asset_id" json:"asset_id"`
	Authority            string          `db:"authority" json:"authority"`
	TotalDeposited       uint64          `db:"total_deposited" json:"total_deposited,string"`
	TotalDepositShares   uint64          `db:"total_deposit_shares" json:"total_deposit_shares,string"`
	TotalBorrowed        uint64          `db:"total_borrowed" json:"total_borrowed,string"`
	TotalBorrowShares    uint64          `db:"total_borrow_shares" json:"total_borrow_shares,string"`
	Config               PoolConfig      `json:"config"`
	LiquidationThreshold decimal.Decimal `db:"liquidation_threshold" json:"liquidation_threshold"`
	LiquidationBonus     decimal.Decimal `db:"liquidation_bonus" json:"liquidation_bonus"`
	CloseFactor          decimal.Decimal `db:"close_factor" json:"close_factor"`
	MaxLTV               decimal.Decimal `db:"max_ltv" json:"max_ltv"`
	InterestRate         decimal.Decimal `db:"interest_rate" json:"interest_rate"`
	LastUpdatedDeposit   int64           `db:"last_updated_deposit" json:"last_updated_deposit"`
	LastUpdatedBorrow    int64           `db:"last_updated_borrow" json:"last_updated_borrow"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// IsEmpty reports whether the pool holds no deposits and no debt.
func (p Pool) IsEmpty() bool {
	return p.TotalDeposited == 0 && p.TotalBorrowed == 0
}

// Balance is one user's position in one pool.
type Balance struct {
	BankAddress        string `db:"bank_address" json:"bank_address"`
	Deposited          uint64 `db:"deposited" json:"deposited,string"`
	DepositedShares    uint64 `db:"deposited_shares" json:"deposited_shares,string"`
	Borrowed           uint64 `db:"borrowed" json:"borrowed,string"`
	BorrowedShares     uint64 `db:"borrowed_shares" json:"borrowed_shares,string"`
	LastUpdatedDeposit int64  `db:"last_updated_deposit" json:"last_updated_deposit"`
	LastUpdatedBorrow  int64  `db:"last_updated_borrow" json:"last_updated_borrow"`
}

type User struct {
	Owner     string    `db:"owner" json:"owner"`
	Balances  []Balance `json:"balances"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Balance returns a pointer into u.Balances for bankAddress, or nil.
func (u *User) Balance(bankAddress string) *Balance {
	for i := range u.Balances {
		if u.Balances[i].BankAddress == bankAddress {
			return &u.Balances[i]
		}
	}
	return nil
}

// Clone copies the balance slice so callers can mutate without aliasing.
func (u User) Clone() User {
	out := u
	out.Balances = append([]Balance(nil), u.Balances...)
	return out
}

type OperationKind string

const (
	OpCreatePool OperationKind = "create_pool"
	OpClosePool  OperationKind = "close_pool"
	OpInitUser   OperationKind = "init_user"
	OpDeposit    OperationKind = "deposit"
	OpWithdraw   OperationKind = "withdraw"
	OpBorrow     OperationKind = "borrow"
	OpRepay      OperationKind = "repay"
)

// Operation is a journal entry for one committed mutation.
type Operation struct {
	ID                string        `db:"id" json:"id"`
	Owner             string        `db:"owner" json:"owner"`
	Kind              OperationKind `db:"kind" json:"kind"`
	AssetID           string        `db:"asset_id" json:"asset_id"`
	CollateralAssetID *string       `db:"collateral_asset_id" json:"collateral_asset_id,omitempty"`
	Amount            uint64        `db:"amount" json:"amount,string"`
	Shares            uint64        `db:"shares" json:"shares,string"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}
