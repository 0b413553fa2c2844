package store

import (
	"context"

	"lending/internal/models"
)

type OperationStore struct {
	db DB
}

func NewOperationStore(db DB) *OperationStore {
	return &OperationStore{db: db}
}

func (s *OperationStore) Create(ctx context.Context, tx Execer, op models.Operation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO operations (id, owner, kind, asset_id, collateral_asset_id, amount, shares, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, op.ID, op.Owner, string(op.Kind), op.AssetID, op.CollateralAssetID, u64(op.Amount), u64(op.Shares), op.CreatedAt)
	return mapError(err)
}

func (s *OperationStore) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]models.Operation, error) {
	var ops []models.Operation
	err := s.db.SelectContext(ctx, &ops, `
		SELECT id, owner, kind, asset_id, collateral_asset_id, amount, shares, created_at
		FROM operations
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, owner, limit, offset)
	if err != nil {
		return nil, err
	}
	return ops, nil
}
