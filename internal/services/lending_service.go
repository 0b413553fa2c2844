package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"lending/internal/bank"
	"lending/internal/errs"
	"lending/internal/ledger"
	"lending/internal/models"
	"lending/internal/risk"
	"lending/internal/store"
	"lending/internal/websocket"

	"github.com/google/uuid"
)

type PositionHub interface {
	BroadcastPosition(userID string, update websocket.PositionUpdate)
}

type Metrics interface {
	ObserveOperation(kind models.OperationKind, err error, elapsed time.Duration)
	ObservePool(pool models.Pool)
	ForgetPool(assetID string)
}

type LendingService struct {
	store      store.Lending
	registry   bank.Registry
	ledger     ledger.Ledger
	risk       *risk.Engine
	settlement Settlement
	hub        PositionHub
	metrics    Metrics
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*LendingService)

func WithSettlement(settlement Settlement) Option {
	return func(s *LendingService) { s.settlement = settlement }
}

func WithHub(hub PositionHub) Option {
	return func(s *LendingService) { s.hub = hub }
}

func WithMetrics(metrics Metrics) Option {
	return func(s *LendingService) { s.metrics = metrics }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LendingService) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *LendingService) { s.now = now }
}

func NewLendingService(st store.Lending, registry bank.Registry, l ledger.Ledger, riskEngine *risk.Engine, opts ...Option) *LendingService {
	s := &LendingService{
		store:      st,
		registry:   registry,
		ledger:     l,
		risk:       riskEngine,
		settlement: NoopSettlement{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports a committed deposit, withdraw, borrow or repay.
type Result struct {
	OperationID string         `json:"operation_id"`
	Kind        string         `json:"kind"`
	Amount      uint64         `json:"amount,string"`
	Shares      uint64         `json:"shares,string"`
	Pool        models.Pool    `json:"pool"`
	Balance     models.Balance `json:"balance"`
	Decision    *risk.Decision `json:"decision,omitempty"`
}

type BorrowRequest struct {
	Owner             string
	CollateralAssetID string
	BorrowAssetID     string
	Amount            uint64
}

func (s *LendingService) InitUser(ctx context.Context, owner string) (models.User, error) {
	start := time.Now()
	var user models.User
	err := s.store.Atomically(ctx, func(u store.UnitOfWork) error {
		now := s.now()
		created, err := s.ledger.InitUser(ctx, u, owner, now)
		if err != nil {
			return err
		}
		user = created
		return u.RecordOperation(ctx, newOperation(models.OpInitUser, created.Owner, "", 0, 0, now))
	})
	s.observe(models.OpInitUser, err, start)
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("user initialized", "owner", user.Owner)
	return user, nil
}

func (s *LendingService) CreatePool(ctx context.Context, params bank.CreateParams) (models.Pool, error) {
	start := time.Now()
	var pool models.Pool
	err := s.store.Atomically(ctx, func(u store.UnitOfWork) error {
		now := s.now()
		created, err := s.registry.CreatePool(ctx, u, params, now)
		if err != nil {
			return err
		}
		pool = created
		return u.RecordOperation(ctx, newOperation(models.OpCreatePool, params.Authority, created.AssetID, 0, 0, now))
	})
	s.observe(models.OpCreatePool, err, start)
	if err != nil {
		return models.Pool{}, err
	}
	if s.metrics != nil {
		s.metrics.ObservePool(pool)
	}
	s.logger.Info("pool created",
		"asset_id", pool.AssetID,
		"address", pool.Address,
		"ticker", pool.Config.Ticker,
		"feed_id", pool.Config.FeedID.String(),
		"max_ltv", pool.MaxLTV.String(),
		"interest_rate", pool.InterestRate.String(),
	)
	return pool, nil
}

func (s *LendingService) ClosePool(ctx context.Context, authority, assetID string) error {
	start := time.Now()
	err := s.store.Atomically(ctx, func(u store.UnitOfWork) error {
		closed, err := s.registry.ClosePool(ctx, u, authority, assetID)
		if err != nil {
			return notFoundAsset(err, assetID)
		}
		return u.RecordOperation(ctx, newOperation(models.OpClosePool, authority, closed.AssetID, 0, 0, s.now()))
	})
	s.observe(models.OpClosePool, err, start)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ForgetPool(assetID)
	}
	s.logger.Info("pool closed", "asset_id", assetID, "authority", authority)
	return nil
}

func (s *LendingService) Deposit(ctx context.Context, owner, assetID string, amount uint64) (Result, error) {
	address := bank.PoolAddress(assetID)
	return s.mutate(ctx, models.OpDeposit, owner, []string{assetID}, false, func(m *mutation) error {
		pool := m.pools[address]
		bal, err := s.ledger.GetOrCreateBalance(m.user, address)
		if err != nil {
			return err
		}
		receipt, err := s.registry.Deposit(pool, bal, amount, m.now)
		if err != nil {
			return err
		}
		m.settle(assetID, IntoPool, receipt)
		m.result(pool, *bal, receipt)
		return nil
	})
}

// Withdraw pays out amount from the user's deposit in assetID. When the user
// carries debt, the remaining position must stay within max LTV.
func (s *LendingService) Withdraw(ctx context.Context, owner, assetID string, amount uint64) (Result, error) {
	address := bank.PoolAddress(assetID)
	return s.mutate(ctx, models.OpWithdraw, owner, []string{assetID}, true, func(m *mutation) error {
		pool := m.pools[address]
		bal := m.user.Balance(address)
		if bal == nil {
			return fmt.Errorf("withdraw %d from %s with no position: %w", amount, assetID, errs.ErrInsufficientBalance)
		}
		receipt, err := s.registry.Withdraw(pool, bal, amount, m.now)
		if err != nil {
			return err
		}
		if err := s.risk.CheckSolvent(ctx, *m.user, m.pools, m.now); err != nil {
			return err
		}
		m.settle(assetID, OutOfPool, receipt)
		m.result(pool, *bal, receipt)
		return nil
	})
}

// Borrow reads both pools and the user in one unit and only mints debt when
// the collateral pool's max LTV covers the request.
func (s *LendingService) Borrow(ctx context.Context, req BorrowRequest) (Result, error) {
	collateralAddress := bank.PoolAddress(req.CollateralAssetID)
	borrowAddress := bank.PoolAddress(req.BorrowAssetID)
	assets := []string{req.CollateralAssetID, req.BorrowAssetID}
	return s.mutate(ctx, models.OpBorrow, req.Owner, assets, false, func(m *mutation) error {
		m.collateralAssetID = &req.CollateralAssetID
		collateral, borrowPool := m.pools[collateralAddress], m.pools[borrowAddress]
		if req.Amount == 0 {
			return fmt.Errorf("borrow: zero amount: %w", errs.ErrInvalidAmount)
		}
		decision, err := s.risk.AssessBorrow(ctx, *m.user, collateral, borrowPool, req.Amount, m.now)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return decision.Reason
		}
		bal, err := s.ledger.GetOrCreateBalance(m.user, borrowAddress)
		if err != nil {
			return err
		}
		receipt, err := s.registry.Borrow(borrowPool, bal, req.Amount, m.now)
		if err != nil {
			return err
		}
		m.settle(req.BorrowAssetID, OutOfPool, receipt)
		m.result(borrowPool, *bal, receipt)
		m.decision = &decision
		return nil
	})
}

func (s *LendingService) Repay(ctx context.Context, owner, assetID string, amount uint64) (Result, error) {
	address := bank.PoolAddress(assetID)
	return s.mutate(ctx, models.OpRepay, owner, []string{assetID}, false, func(m *mutation) error {
		pool := m.pools[address]
		bal := m.user.Balance(address)
		if bal == nil || bal.BorrowedShares == 0 {
			return fmt.Errorf("repay %d to %s with no debt: %w", amount, assetID, errs.ErrOverRepayment)
		}
		receipt, err := s.registry.Repay(pool, bal, amount, m.now)
		if err != nil {
			return err
		}
		m.settle(assetID, IntoPool, receipt)
		m.result(pool, *bal, receipt)
		return nil
	})
}

// mutation is the state shared by one atomic deposit/withdraw/borrow/repay.
type mutation struct {
	kind              models.OperationKind
	id                string
	now               time.Time
	user              *models.User
	pools             map[string]*models.Pool
	collateralAssetID *string
	transfers         []Transfer
	out               Result
	decision          *risk.Decision
}

func (m *mutation) settle(assetID string, direction Direction, receipt bank.Receipt) {
	m.transfers = append(m.transfers, Transfer{
		OperationID: m.id,
		Kind:        m.kind,
		Owner:       m.user.Owner,
		AssetID:     assetID,
		Direction:   direction,
		Amount:      receipt.Amount,
	})
}

func (m *mutation) result(pool *models.Pool, bal models.Balance, receipt bank.Receipt) {
	m.out = Result{
		OperationID: m.id,
		Kind:        string(m.kind),
		Amount:      receipt.Amount,
		Shares:      receipt.Shares,
		Pool:        *pool,
		Balance:     bal,
	}
}

// mutate runs fn in one unit. Locks are taken user first, then pools in
// address order, so concurrent units cannot deadlock. withUserPools also
// locks every pool the user holds a non-empty record in.
func (s *LendingService) mutate(ctx context.Context, kind models.OperationKind, owner string, assets []string, withUserPools bool, fn func(*mutation) error) (Result, error) {
	start := time.Now()
	var out Result
	err := s.store.Atomically(ctx, func(u store.UnitOfWork) error {
		m := &mutation{kind: kind, id: uuid.NewString(), now: s.now(), pools: make(map[string]*models.Pool)}
		user, err := u.LockUser(ctx, owner)
		if err != nil {
			return err
		}
		m.user = &user

		addressAsset := make(map[string]string, len(assets))
		for _, asset := range assets {
			addressAsset[bank.PoolAddress(asset)] = asset
		}
		if withUserPools {
			for _, bal := range user.Balances {
				if bal.DepositedShares == 0 && bal.BorrowedShares == 0 {
					continue
				}
				if _, ok := addressAsset[bal.BankAddress]; !ok {
					addressAsset[bal.BankAddress] = bal.BankAddress
				}
			}
		}
		addresses := make([]string, 0, len(addressAsset))
		for address := range addressAsset {
			addresses = append(addresses, address)
		}
		sort.Strings(addresses)
		for _, address := range addresses {
			pool, err := u.LockPool(ctx, address)
			if err != nil {
				return notFoundAsset(err, addressAsset[address])
			}
			if err := s.registry.Accrue(&pool, m.now); err != nil {
				return err
			}
			m.pools[address] = &pool
		}

		if err := fn(m); err != nil {
			return err
		}

		for _, transfer := range m.transfers {
			if err := s.settlement.Settle(ctx, transfer); err != nil {
				return fmt.Errorf("settle %s: %w", transfer.Kind, err)
			}
		}
		for _, address := range addresses {
			if err := u.UpdatePool(ctx, *m.pools[address]); err != nil {
				return err
			}
		}
		if err := u.UpdateUser(ctx, *m.user); err != nil {
			return err
		}
		op := newOperation(kind, owner, m.out.Pool.AssetID, m.out.Amount, m.out.Shares, m.now)
		op.ID = m.id
		op.CollateralAssetID = m.collateralAssetID
		if err := u.RecordOperation(ctx, op); err != nil {
			return err
		}
		out = m.out
		out.Decision = m.decision
		return nil
	})
	s.observe(kind, err, start)
	if err != nil {
		s.logger.Debug("mutation rejected", "kind", string(kind), "owner", owner, "error", err)
		return Result{}, err
	}
	if s.metrics != nil {
		s.metrics.ObservePool(out.Pool)
	}
	if s.hub != nil {
		s.hub.BroadcastPosition(owner, websocket.PositionUpdate{
			OperationID:     out.OperationID,
			Kind:            out.Kind,
			AssetID:         out.Pool.AssetID,
			Deposited:       strconv.FormatUint(out.Balance.Deposited, 10),
			DepositedShares: strconv.FormatUint(out.Balance.DepositedShares, 10),
			Borrowed:        strconv.FormatUint(out.Balance.Borrowed, 10),
			BorrowedShares:  strconv.FormatUint(out.Balance.BorrowedShares, 10),
		})
	}
	s.logger.Info("mutation committed",
		"kind", out.Kind,
		"operation_id", out.OperationID,
		"owner", owner,
		"asset_id", out.Pool.AssetID,
		"amount", out.Amount,
		"shares", out.Shares,
	)
	return out, nil
}

// AssessBorrow evaluates a borrow against a snapshot without writing.
func (s *LendingService) AssessBorrow(ctx context.Context, req BorrowRequest) (risk.Decision, error) {
	user, err := s.store.GetUser(ctx, req.Owner)
	if err != nil {
		return risk.Decision{}, err
	}
	collateral, err := s.Pool(ctx, req.CollateralAssetID)
	if err != nil {
		return risk.Decision{}, err
	}
	borrowPool, err := s.Pool(ctx, req.BorrowAssetID)
	if err != nil {
		return risk.Decision{}, err
	}
	return s.risk.AssessBorrow(ctx, user, &collateral, &borrowPool, req.Amount, s.now())
}

// Health values the user's positions against a snapshot of their pools.
func (s *LendingService) Health(ctx context.Context, owner string) (risk.HealthReport, error) {
	user, err := s.store.GetUser(ctx, owner)
	if err != nil {
		return risk.HealthReport{}, err
	}
	pools := make(map[string]*models.Pool, len(user.Balances))
	for _, bal := range user.Balances {
		pool, err := s.store.GetPool(ctx, bal.BankAddress)
		if err != nil {
			return risk.HealthReport{}, err
		}
		pools[bal.BankAddress] = &pool
	}
	return s.risk.Health(ctx, user, pools, s.now())
}

// Pool returns the pool for assetID with interest accrued to now. The
// accrual is not persisted.
func (s *LendingService) Pool(ctx context.Context, assetID string) (models.Pool, error) {
	pool, err := s.store.GetPool(ctx, bank.PoolAddress(assetID))
	if err != nil {
		return models.Pool{}, notFoundAsset(err, assetID)
	}
	if err := s.registry.Accrue(&pool, s.now()); err != nil {
		return models.Pool{}, err
	}
	return pool, nil
}

func (s *LendingService) Pools(ctx context.Context) ([]models.Pool, error) {
	pools, err := s.store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range pools {
		if err := s.registry.Accrue(&pools[i], now); err != nil {
			return nil, err
		}
	}
	return pools, nil
}

func (s *LendingService) User(ctx context.Context, owner string) (models.User, error) {
	return s.store.GetUser(ctx, owner)
}

func (s *LendingService) Operations(ctx context.Context, owner string, limit, offset int) ([]models.Operation, error) {
	return s.store.ListOperations(ctx, owner, limit, offset)
}

func (s *LendingService) observe(kind models.OperationKind, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(kind, err, time.Since(start))
	}
}

func newOperation(kind models.OperationKind, owner, assetID string, amount, shares uint64, now time.Time) models.Operation {
	return models.Operation{
		ID:        uuid.NewString(),
		Owner:     owner,
		Kind:      kind,
		AssetID:   assetID,
		Amount:    amount,
		Shares:    shares,
		CreatedAt: now.UTC(),
	}
}

func notFoundAsset(err error, assetID string) error {
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("pool %s: %w", assetID, errs.ErrNotFound)
	}
	return err
}
