package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type txState struct {
	commits   int64
	rollbacks int64
}

type trackingDriver struct {
	state *txState
}

func (d *trackingDriver) Open(name string) (driver.Conn, error) {
	return &trackingConn{state: d.state}, nil
}

type trackingConn struct {
	state *txState
}

func (c *trackingConn) Prepare(query string) (driver.Stmt, error) {
	return &trackingStmt{}, nil
}

func (c *trackingConn) Close() error {
	return nil
}

func (c *trackingConn) Begin() (driver.Tx, error) {
	return &trackingTx{state: c.state}, nil
}

func (c *trackingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return &trackingTx{state: c.state}, nil
}

type trackingTx struct {
	state *txState
}

func (t *trackingTx) Commit() error {
	atomic.AddInt64(&t.state.commits, 1)
	return nil
}

func (t *trackingTx) Rollback() error {
	atomic.AddInt64(&t.state.rollbacks, 1)
	return nil
}

type trackingStmt struct{}

func (s *trackingStmt) Close() error {
	return nil
}

func (s *trackingStmt) NumInput() int {
	return -1
}

func (s *trackingStmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, nil
}

func (s *trackingStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, nil
}

var driverCounter uint64

func registerTrackingDriver(state *txState) string {
	name := fmt.Sprintf("tracking-%d", atomic.AddUint64(&driverCounter, 1))
	sql.Register(name, &trackingDriver{state: state})
	return name
}

type retryState struct {
	commitCalls int64
	failCommits int64
	failCode    string
	rollbacks   int64
}

type retryDriver struct {
	state *retryState
}

func (d *retryDriver) Open(name string) (driver.Conn, error) {
	return &retryConn{state: d.state}, nil
}

type retryConn struct {
	state *retryState
}

func (c *retryConn) Prepare(query string) (driver.Stmt, error) {
	return &trackingStmt{}, nil
}

func (c *retryConn) Close() error {
	return nil
}

func (c *retryConn) Begin() (driver.Tx, error) {
	return &retryTx{state: c.state}, nil
}

func (c *retryConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return &retryTx{state: c.state}, nil
}

type retryTx struct {
	state *retryState
}

func (t *retryTx) Commit() error {
	call := atomic.AddInt64(&t.state.commitCalls, 1)
	if call <= t.state.failCommits {
		code := t.state.failCode
		if code == "" {
			code = "40001"
		}
		return &pq.Error{Code: pq.ErrorCode(code)}
	}
	return nil
}

func (t *retryTx) Rollback() error {
	atomic.AddInt64(&t.state.rollbacks, 1)
	return nil
}

func registerRetryDriver(state *retryState) string {
	name := fmt.Sprintf("retry-%d", atomic.AddUint64(&driverCounter, 1))
	sql.Register(name, &retryDriver{state: state})
	return name
}

func openTracking(t *testing.T) (*sqlx.DB, *txState) {
	t.Helper()
	state := &txState{}
	name := registerTrackingDriver(state)
	sqlDB, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlx.NewDb(sqlDB, name), state
}

func openRetry(t *testing.T, state *retryState) *sqlx.DB {
	t.Helper()
	name := registerRetryDriver(state)
	sqlDB, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlx.NewDb(sqlDB, name)
}

func TestWithTxCommits(t *testing.T) {
	xdb, state := openTracking(t)
	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.commits != 1 || state.rollbacks != 0 {
		t.Fatalf("expected commit=1 rollback=0, got %d/%d", state.commits, state.rollbacks)
	}
}

func TestWithTxRollsBackAndKeepsCallerError(t *testing.T) {
	xdb, state := openTracking(t)
	boom := errors.New("insufficient collateral")
	calls := 0
	err := NewTxRunner(xdb).WithTx(context.Background(), func(*sqlx.Tx) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected caller error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error ran %d times", calls)
	}
	if state.rollbacks != 1 || state.commits != 0 {
		t.Fatalf("expected rollback=1 commit=0, got %d/%d", state.rollbacks, state.commits)
	}
}

func TestWithTxRetriesWholeUnitOnSerializationFailure(t *testing.T) {
	state := &retryState{failCommits: 1}
	xdb := openRetry(t, state)
	runs := 0
	err := NewTxRunner(xdb, WithBackoffBase(0)).WithTx(context.Background(), func(*sqlx.Tx) error {
		runs++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.commitCalls != 2 || runs != 2 {
		t.Fatalf("expected 2 commits and 2 runs, got %d/%d", state.commitCalls, runs)
	}
}

func TestWithTxRetriesConflictFromUnit(t *testing.T) {
	state := &retryState{}
	xdb := openRetry(t, state)
	runs := 0
	err := NewTxRunner(xdb, WithBackoffBase(0)).WithTx(context.Background(), func(*sqlx.Tx) error {
		runs++
		if runs == 1 {
			return fmt.Errorf("lock pool: %w", &pq.Error{Code: "40P01"})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runs != 2 || state.rollbacks != 1 {
		t.Fatalf("expected 2 runs and 1 rollback, got %d/%d", runs, state.rollbacks)
	}
}

func TestWithTxRetryLimit(t *testing.T) {
	state := &retryState{failCommits: 10, failCode: "40P01"}
	xdb := openRetry(t, state)
	err := NewTxRunner(xdb, WithMaxAttempts(3), WithBackoffBase(0)).WithTx(context.Background(), func(*sqlx.Tx) error { return nil })
	if !errors.Is(err, ErrRetryLimit) {
		t.Fatalf("expected ErrRetryLimit, got %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "40P01" {
		t.Fatalf("expected last conflict to be wrapped, got %v", err)
	}
	if state.commitCalls != 3 {
		t.Fatalf("expected 3 commits, got %d", state.commitCalls)
	}
}

func TestWithTxStopsBackoffOnCancel(t *testing.T) {
	state := &retryState{failCommits: 10}
	xdb := openRetry(t, state)
	ctx, cancel := context.WithCancel(context.Background())
	runner := NewTxRunner(xdb, WithBackoffBase(time.Hour))
	done := make(chan error, 1)
	go func() {
		done <- runner.WithTx(ctx, func(*sqlx.Tx) error { return nil })
	}()
	for atomic.LoadInt64(&state.commitCalls) == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not observe cancellation")
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()
	if cfg.MaxOpenConns < cfg.MaxIdleConns {
		t.Fatalf("idle pool larger than open pool: %+v", cfg)
	}
}
