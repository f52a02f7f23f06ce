package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.BalanceRepository = (*BalanceRepo)(nil)

const balanceColumns = "id, tenant_id, location_id, supply_id, lot_id, quantity, version, created_at, updated_at"

// BalanceRepo saldos por (tenant, ubicación, insumo, lote) sobre PostgreSQL (usable con pool o tx).
// La clave es única con NULLS NOT DISTINCT: un lote NULL es una clave más.
type BalanceRepo struct {
	q Querier
}

// NewBalanceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewBalanceRepository(q Querier) *BalanceRepo {
	return &BalanceRepo{q: q}
}

type balanceRow struct {
	ID         string          `db:"id"`
	TenantID   string          `db:"tenant_id"`
	LocationID string          `db:"location_id"`
	SupplyID   string          `db:"supply_id"`
	LotID      *string         `db:"lot_id"`
	Quantity   decimal.Decimal `db:"quantity"`
	Version    int64           `db:"version"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

func (r balanceRow) toEntity() *entity.InventoryBalance {
	return &entity.InventoryBalance{
		ID:         r.ID,
		TenantID:   r.TenantID,
		LocationID: r.LocationID,
		SupplyID:   r.SupplyID,
		LotID:      derefString(r.LotID),
		Quantity:   r.Quantity,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func scanBalance(row pgx.Row) (*entity.InventoryBalance, error) {
	var b balanceRow
	if err := row.Scan(&b.ID, &b.TenantID, &b.LocationID, &b.SupplyID, &b.LotID,
		&b.Quantity, &b.Version, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return b.toEntity(), nil
}

// Get lee el saldo sin bloquear. (nil, nil) si la clave no tiene fila.
func (r *BalanceRepo) Get(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	return r.get(ctx, key, "")
}

// GetForUpdate obtiene el saldo y bloquea la fila (SELECT FOR UPDATE) hasta el fin de la transacción.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error) {
	return r.get(ctx, key, " FOR UPDATE")
}

func (r *BalanceRepo) get(ctx context.Context, key entity.BalanceKey, suffix string) (*entity.InventoryBalance, error) {
	query := `
		SELECT ` + balanceColumns + `
		FROM inventory_balances
		WHERE tenant_id = $1 AND location_id = $2 AND supply_id = $3 AND lot_id IS NOT DISTINCT FROM $4` + suffix
	b, err := scanBalance(r.q.QueryRow(ctx, query, key.TenantID, key.LocationID, key.SupplyID, nullIfEmpty(key.LotID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// Create inserta el saldo con ON CONFLICT DO NOTHING. false si otra transacción ya creó la clave;
// en ese caso balance no se modifica.
func (r *BalanceRepo) Create(ctx context.Context, balance *entity.InventoryBalance) (bool, error) {
	query := `
		INSERT INTO inventory_balances (` + balanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, location_id, supply_id, lot_id) DO NOTHING
		RETURNING ` + balanceColumns
	created, err := scanBalance(r.q.QueryRow(ctx, query,
		balance.ID, balance.TenantID, balance.LocationID, balance.SupplyID, nullIfEmpty(balance.LotID),
		balance.Quantity, balance.Version, balance.CreatedAt, balance.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("create balance: %w", err)
	}
	*balance = *created
	return true, nil
}

// UpdateQuantity fija la cantidad con control de versión optimista.
func (r *BalanceRepo) UpdateQuantity(ctx context.Context, balance *entity.InventoryBalance, quantity decimal.Decimal, at time.Time) error {
	query := `
		UPDATE inventory_balances
		SET quantity = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING ` + balanceColumns
	updated, err := scanBalance(r.q.QueryRow(ctx, query, quantity, at, balance.ID, balance.Version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("saldo %s versión %d: %w", balance.ID, balance.Version, domain.ErrConflict)
		}
		return fmt.Errorf("update balance: %w", err)
	}
	*balance = *updated
	return nil
}

// List lista saldos con filtros opcionales, ordenados por la clave. TenantID vacío = todos los tenants.
func (r *BalanceRepo) List(ctx context.Context, filter repository.BalanceFilter) ([]*entity.InventoryBalance, error) {
	q := psql.Select(balanceColumns).From("inventory_balances")
	// Sin tenant solo lo usa la conciliación global.
	if filter.TenantID != "" {
		q = q.Where(squirrel.Eq{"tenant_id": filter.TenantID})
	}
	if filter.LocationID != "" {
		q = q.Where(squirrel.Eq{"location_id": filter.LocationID})
	}
	if filter.SupplyID != "" {
		q = q.Where(squirrel.Eq{"supply_id": filter.SupplyID})
	}
	if filter.LotID != "" {
		q = q.Where(squirrel.Eq{"lot_id": filter.LotID})
	}
	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": 0})
	}
	q = q.OrderBy("tenant_id", "location_id", "supply_id", "lot_id NULLS FIRST")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list balances: %w", err)
	}
	var rows []balanceRow
	if err := pgxscan.Select(ctx, r.q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	out := make([]*entity.InventoryBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}
