package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.SupplyRepository = (*SupplyRepo)(nil)
var _ repository.LotRepository = (*LotRepo)(nil)

// SupplyRepo lectura de insumos sobre PostgreSQL (usable con pool o tx).
type SupplyRepo struct {
	q Querier
}

// NewSupplyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSupplyRepository(q Querier) *SupplyRepo {
	return &SupplyRepo{q: q}
}

// GetByID obtiene un insumo del tenant. (nil, nil) si no existe.
func (r *SupplyRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Supply, error) {
	query := `
		SELECT id, tenant_id, sku, name, active, created_at, updated_at
		FROM supplies WHERE tenant_id = $1 AND id = $2`
	var s entity.Supply
	err := r.q.QueryRow(ctx, query, tenantID, id).Scan(
		&s.ID, &s.TenantID, &s.SKU, &s.Name, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get supply: %w", err)
	}
	return &s, nil
}

// LotRepo lectura de lotes sobre PostgreSQL.
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

// GetByID obtiene un lote del tenant. (nil, nil) si no existe.
func (r *LotRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Lot, error) {
	query := `
		SELECT id, tenant_id, supply_id, code, expires_at, created_at
		FROM lots WHERE tenant_id = $1 AND id = $2`
	var l entity.Lot
	err := r.q.QueryRow(ctx, query, tenantID, id).Scan(
		&l.ID, &l.TenantID, &l.SupplyID, &l.Code, &l.ExpiresAt, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return &l, nil
}
