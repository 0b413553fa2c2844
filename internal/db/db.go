package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrRetryLimit is returned, wrapping the last conflict, when every attempt
// of a serializable unit hit a serialization failure or deadlock.
var ErrRetryLimit = errors.New("transaction retry limit exceeded")

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 20 * time.Millisecond
	maxJitter          = 10 * time.Millisecond
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// SQLXTxRunner runs units of work in serializable transactions, retrying the
// whole unit on Postgres conflict codes.
type SQLXTxRunner struct {
	db          *sqlx.DB
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
}

type RunnerOption func(*SQLXTxRunner)

func WithMaxAttempts(n int) RunnerOption {
	return func(r *SQLXTxRunner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBackoffBase(d time.Duration) RunnerOption {
	return func(r *SQLXTxRunner) {
		if d >= 0 {
			r.backoffBase = d
		}
	}
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *SQLXTxRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewTxRunner(db *sqlx.DB, opts ...RunnerOption) SQLXTxRunner {
	r := SQLXTxRunner{
		db:          db,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r SQLXTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := runOnce(ctx, r.db, fn)
		if err == nil {
			return nil
		}
		if !isRetryablePGError(err) {
			return err
		}
		lastErr = err
		if attempt == r.maxAttempts {
			break
		}
		r.logger.DebugContext(ctx, "retrying serializable transaction", "attempt", attempt, "error", err)
		if err := sleepWithBackoff(ctx, attempt, r.backoffBase); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryLimit, r.maxAttempts, lastErr)
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    30,
		MaxIdleConns:    5,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func Connect(ctx context.Context, databaseURL string, pool PoolConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	return db, nil
}

// WithTx runs fn once per attempt with the default retry policy.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	return NewTxRunner(db).WithTx(ctx, fn)
}

func runOnce(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func sleepWithBackoff(ctx context.Context, attempt int, base time.Duration) error {
	backoff := time.Duration(attempt*attempt) * base
	if base > 0 {
		backoff += time.Duration(rand.Int63n(int64(maxJitter)))
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
