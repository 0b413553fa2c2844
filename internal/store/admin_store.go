package store

import (
	"context"
	"errors"
	"fmt"

	"lending/internal/errs"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

// IsAdmin reports whether userID is an admin and whether it is a super admin.
func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	var isSuper bool
	err := mapError(s.db.GetContext(ctx, &isSuper, `SELECT is_super FROM admins WHERE user_id = $1`, userID))
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return false, false, nil
	case err != nil:
		return false, false, fmt.Errorf("admin %s: %w", userID, err)
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM admin_roles WHERE admin_user_id = $1 AND role = $2
	`, userID, role); err != nil {
		return false, fmt.Errorf("role %s for %s: %w", role, userID, err)
	}
	return count > 0, nil
}

func (s *AdminStore) Roles(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	if err := s.db.SelectContext(ctx, &roles, `
		SELECT role FROM admin_roles WHERE admin_user_id = $1 ORDER BY role
	`, userID); err != nil {
		return nil, fmt.Errorf("roles for %s: %w", userID, err)
	}
	return roles, nil
}

func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID string, isSuper bool, createdBy *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, $2, $3)
	`, userID, isSuper, createdBy)
	if err != nil {
		return fmt.Errorf("create admin %s: %w", userID, mapError(err))
	}
	return nil
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, adminUserID, role)
	return err
}

func (s *AdminStore) HasAnyAdmin(ctx context.Context, q Getter) (bool, error) {
	var count int
	if err := q.GetContext(ctx, &count, `SELECT COUNT(1) FROM admins`); err != nil {
		return false, err
	}
	return count > 0, nil
}
