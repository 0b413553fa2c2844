package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lending/internal/errs"
	"lending/internal/models"
)

// Memory is an in-process Lending store. Units run one at a time and their
// writes are staged until fn returns without error.
type Memory struct {
	mu    sync.RWMutex
	pools map[string]models.Pool
	users map[string]models.User
	ops   []models.Operation
}

func NewMemory() *Memory {
	return &Memory{
		pools: make(map[string]models.Pool),
		users: make(map[string]models.User),
	}
}

func (m *Memory) Atomically(ctx context.Context, fn func(UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	unit := &memoryUnit{
		base:         m,
		pools:        make(map[string]models.Pool),
		deletedPools: make(map[string]bool),
		users:        make(map[string]models.User),
	}
	if err := fn(unit); err != nil {
		return err
	}
	for address, pool := range unit.pools {
		m.pools[address] = pool
	}
	for address := range unit.deletedPools {
		delete(m.pools, address)
	}
	for owner, user := range unit.users {
		m.users[owner] = user
	}
	m.ops = append(m.ops, unit.ops...)
	return nil
}

func (m *Memory) GetPool(_ context.Context, address string) (models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[address]
	if !ok {
		return models.Pool{}, fmt.Errorf("pool %s: %w", address, errs.ErrNotFound)
	}
	return pool, nil
}

func (m *Memory) ListPools(_ context.Context) ([]models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pools := make([]models.Pool, 0, len(m.pools))
	for _, pool := range m.pools {
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].AssetID < pools[j].AssetID })
	return pools, nil
}

func (m *Memory) GetUser(_ context.Context, owner string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[owner]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", owner, errs.ErrNotFound)
	}
	return user.Clone(), nil
}

// ListOperations returns owner's journal, newest first.
func (m *Memory) ListOperations(_ context.Context, owner string, limit, offset int) ([]models.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Operation
	skipped := 0
	for i := len(m.ops) - 1; i >= 0 && len(out) < limit; i-- {
		if m.ops[i].Owner != owner {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, m.ops[i])
	}
	return out, nil
}

type memoryUnit struct {
	base         *Memory
	pools        map[string]models.Pool
	deletedPools map[string]bool
	users        map[string]models.User
	ops          []models.Operation
}

func (u *memoryUnit) pool(address string) (models.Pool, bool) {
	if u.deletedPools[address] {
		return models.Pool{}, false
	}
	if pool, ok := u.pools[address]; ok {
		return pool, true
	}
	pool, ok := u.base.pools[address]
	return pool, ok
}

func (u *memoryUnit) LockPool(_ context.Context, address string) (models.Pool, error) {
	pool, ok := u.pool(address)
	if !ok {
		return models.Pool{}, fmt.Errorf("pool %s: %w", address, errs.ErrNotFound)
	}
	return pool, nil
}

func (u *memoryUnit) InsertPool(_ context.Context, pool models.Pool) error {
	if _, ok := u.pool(pool.Address); ok {
		return fmt.Errorf("pool %s: %w", pool.AssetID, errs.ErrAlreadyExists)
	}
	delete(u.deletedPools, pool.Address)
	u.pools[pool.Address] = pool
	return nil
}

func (u *memoryUnit) UpdatePool(_ context.Context, pool models.Pool) error {
	if _, ok := u.pool(pool.Address); !ok {
		return fmt.Errorf("pool %s: %w", pool.Address, errs.ErrNotFound)
	}
	u.pools[pool.Address] = pool
	return nil
}

func (u *memoryUnit) DeletePool(_ context.Context, address string) error {
	if _, ok := u.pool(address); !ok {
		return fmt.Errorf("pool %s: %w", address, errs.ErrNotFound)
	}
	delete(u.pools, address)
	u.deletedPools[address] = true
	return nil
}

func (u *memoryUnit) user(owner string) (models.User, bool) {
	if user, ok := u.users[owner]; ok {
		return user.Clone(), true
	}
	user, ok := u.base.users[owner]
	return user.Clone(), ok
}

func (u *memoryUnit) LockUser(_ context.Context, owner string) (models.User, error) {
	user, ok := u.user(owner)
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", owner, errs.ErrNotFound)
	}
	return user, nil
}

func (u *memoryUnit) InsertUser(_ context.Context, user models.User) error {
	if _, ok := u.user(user.Owner); ok {
		return fmt.Errorf("user %s: %w", user.Owner, errs.ErrAlreadyExists)
	}
	u.users[user.Owner] = user.Clone()
	return nil
}

func (u *memoryUnit) UpdateUser(_ context.Context, user models.User) error {
	if _, ok := u.user(user.Owner); !ok {
		return fmt.Errorf("user %s: %w", user.Owner, errs.ErrNotFound)
	}
	u.users[user.Owner] = user.Clone()
	return nil
}

func (u *memoryUnit) RecordOperation(_ context.Context, op models.Operation) error {
	u.ops = append(u.ops, op)
	return nil
}
