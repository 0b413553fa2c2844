package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lending/internal/models"
	"lending/internal/oracle"

	"github.com/shopspring/decimal"
)

type PoolStore struct {
	db DB
}

func NewPoolStore(db DB) *PoolStore {
	return &PoolStore{db: db}
}

type poolRow struct {
	Address              string          `db:"address"`
	AssetID              string          `db:"asset_id"`
	Authority            string          `db:"authority"`
	TotalDeposited       uint64          `db:"total_deposited"`
	TotalDepositShares   uint64          `db:"total_deposit_shares"`
	TotalBorrowed        uint64          `db:"total_borrowed"`
	TotalBorrowShares    uint64          `db:"total_borrow_shares"`
	OracleFeedID         string          `db:"oracle_feed_id"`
	TickerSymbol         string          `db:"ticker_symbol"`
	LiquidationThreshold decimal.Decimal `db:"liquidation_threshold"`
	LiquidationBonus     decimal.Decimal `db:"liquidation_bonus"`
	CloseFactor          decimal.Decimal `db:"close_factor"`
	MaxLTV               decimal.Decimal `db:"max_ltv"`
	InterestRate         decimal.Decimal `db:"interest_rate"`
	LastUpdatedDeposit   int64           `db:"last_updated_deposit"`
	LastUpdatedBorrow    int64           `db:"last_updated_borrow"`
	CreatedAt            time.Time       `db:"created_at"`
}

const poolColumns = `address, asset_id, authority, total_deposited, total_deposit_shares,
		total_borrowed, total_borrow_shares, oracle_feed_id, ticker_symbol,
		liquidation_threshold, liquidation_bonus, close_factor, max_ltv, interest_rate,
		last_updated_deposit, last_updated_borrow, created_at`

func (r poolRow) model() (models.Pool, error) {
	feed, err := oracle.ParseFeedID(r.OracleFeedID)
	if err != nil {
		return models.Pool{}, fmt.Errorf("pool %s: %w", r.AssetID, err)
	}
	return models.Pool{
		Address:              r.Address,
		AssetID:              r.AssetID,
		Authority:            r.Authority,
		TotalDeposited:       r.TotalDeposited,
		TotalDepositShares:   r.TotalDepositShares,
		TotalBorrowed:        r.TotalBorrowed,
		TotalBorrowShares:    r.TotalBorrowShares,
		Config:               models.PoolConfig{FeedID: feed, Ticker: r.TickerSymbol},
		LiquidationThreshold: r.LiquidationThreshold,
		LiquidationBonus:     r.LiquidationBonus,
		CloseFactor:          r.CloseFactor,
		MaxLTV:               r.MaxLTV,
		InterestRate:         r.InterestRate,
		LastUpdatedDeposit:   r.LastUpdatedDeposit,
		LastUpdatedBorrow:    r.LastUpdatedBorrow,
		CreatedAt:            r.CreatedAt,
	}, nil
}

func (s *PoolStore) Get(ctx context.Context, address string) (models.Pool, error) {
	var row poolRow
	err := s.db.GetContext(ctx, &row, `SELECT `+poolColumns+` FROM pools WHERE address = $1`, address)
	if err != nil {
		return models.Pool{}, mapError(err)
	}
	return row.model()
}

func (s *PoolStore) GetForUpdate(ctx context.Context, tx Getter, address string) (models.Pool, error) {
	var row poolRow
	err := tx.GetContext(ctx, &row, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE address = $1
		FOR UPDATE
	`, address)
	if err != nil {
		return models.Pool{}, mapError(err)
	}
	return row.model()
}

func (s *PoolStore) List(ctx context.Context) ([]models.Pool, error) {
	var rows []poolRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+poolColumns+` FROM pools ORDER BY asset_id`); err != nil {
		return nil, err
	}
	pools := make([]models.Pool, 0, len(rows))
	for _, row := range rows {
		pool, err := row.model()
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func (s *PoolStore) Create(ctx context.Context, tx Execer, pool models.Pool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pools (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, pool.Address, pool.AssetID, pool.Authority,
		u64(pool.TotalDeposited), u64(pool.TotalDepositShares),
		u64(pool.TotalBorrowed), u64(pool.TotalBorrowShares),
		pool.Config.FeedID.String(), pool.Config.Ticker,
		pool.LiquidationThreshold, pool.LiquidationBonus, pool.CloseFactor, pool.MaxLTV, pool.InterestRate,
		pool.LastUpdatedDeposit, pool.LastUpdatedBorrow, pool.CreatedAt)
	return mapError(err)
}

// Update writes the mutable totals and timestamps. Config and risk
// parameters are fixed at creation.
func (s *PoolStore) Update(ctx context.Context, tx Execer, pool models.Pool) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE pools
		SET total_deposited = $2,
			total_deposit_shares = $3,
			total_borrowed = $4,
			total_borrow_shares = $5,
			last_updated_deposit = $6,
			last_updated_borrow = $7
		WHERE address = $1
	`, pool.Address, u64(pool.TotalDeposited), u64(pool.TotalDepositShares),
		u64(pool.TotalBorrowed), u64(pool.TotalBorrowShares),
		pool.LastUpdatedDeposit, pool.LastUpdatedBorrow)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (s *PoolStore) Delete(ctx context.Context, tx Execer, address string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM pools WHERE address = $1`, address)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// u64 passes amounts as text so values above MaxInt64 reach NUMERIC columns.
func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
