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

var _ repository.StockMovementRepository = (*StockMovementRepo)(nil)

const movementColumns = "id, tenant_id, number, number_year, type, supply_id, lot_id, from_location_id, to_location_id, " +
	"quantity, presentation_id, presentation_quantity, reference_type, reference_id, note, created_by, created_at"

// StockMovementRepo libro de movimientos sobre PostgreSQL (usable con pool o tx). Solo INSERT y SELECT.
type StockMovementRepo struct {
	q Querier
}

// NewStockMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockMovementRepository(q Querier) *StockMovementRepo {
	return &StockMovementRepo{q: q}
}

type movementRow struct {
	ID                   string           `db:"id"`
	TenantID             string           `db:"tenant_id"`
	Number               int64            `db:"number"`
	NumberYear           int              `db:"number_year"`
	Type                 string           `db:"type"`
	SupplyID             string           `db:"supply_id"`
	LotID                *string          `db:"lot_id"`
	FromLocationID       *string          `db:"from_location_id"`
	ToLocationID         *string          `db:"to_location_id"`
	Quantity             decimal.Decimal  `db:"quantity"`
	PresentationID       *string          `db:"presentation_id"`
	PresentationQuantity *decimal.Decimal `db:"presentation_quantity"`
	ReferenceType        *string          `db:"reference_type"`
	ReferenceID          *string          `db:"reference_id"`
	Note                 *string          `db:"note"`
	CreatedBy            *string          `db:"created_by"`
	CreatedAt            time.Time        `db:"created_at"`
}

func (r movementRow) toEntity() *entity.StockMovement {
	return &entity.StockMovement{
		ID:                   r.ID,
		TenantID:             r.TenantID,
		Number:               r.Number,
		NumberYear:           r.NumberYear,
		Type:                 r.Type,
		SupplyID:             r.SupplyID,
		LotID:                derefString(r.LotID),
		FromLocationID:       derefString(r.FromLocationID),
		ToLocationID:         derefString(r.ToLocationID),
		Quantity:             r.Quantity,
		PresentationID:       derefString(r.PresentationID),
		PresentationQuantity: r.PresentationQuantity,
		ReferenceType:        derefString(r.ReferenceType),
		ReferenceID:          derefString(r.ReferenceID),
		Note:                 derefString(r.Note),
		CreatedBy:            derefString(r.CreatedBy),
		CreatedAt:            r.CreatedAt,
	}
}

// Create persiste un movimiento. Un número repetido (tenant, año, número) indica un consecutivo
// corrupto y se reporta como domain.ErrConflict.
func (r *StockMovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	query := `
		INSERT INTO stock_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := r.q.Exec(ctx, query,
		m.ID, m.TenantID, m.Number, m.NumberYear, m.Type, m.SupplyID,
		nullIfEmpty(m.LotID), nullIfEmpty(m.FromLocationID), nullIfEmpty(m.ToLocationID),
		m.Quantity, nullIfEmpty(m.PresentationID), m.PresentationQuantity,
		nullIfEmpty(m.ReferenceType), nullIfEmpty(m.ReferenceID), nullIfEmpty(m.Note),
		nullIfEmpty(m.CreatedBy), m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("movimiento %d/%d duplicado: %w", m.NumberYear, m.Number, domain.ErrConflict)
		}
		return fmt.Errorf("create stock movement: %w", err)
	}
	return nil
}

// GetByID obtiene un movimiento del tenant. (nil, nil) si no existe.
func (r *StockMovementRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.StockMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE tenant_id = $1 AND id = $2`
	var row movementRow
	if err := pgxscan.Get(ctx, r.q, &row, query, tenantID, id); err != nil {
		if pgxscan.NotFound(err) || errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get stock movement: %w", err)
	}
	return row.toEntity(), nil
}

// List consulta el libro con filtros. LocationID coincide con origen o destino.
// Orden: más recientes primero.
func (r *StockMovementRepo) List(ctx context.Context, filter repository.MovementFilter) ([]*entity.StockMovement, error) {
	q := psql.Select(movementColumns).
		From("stock_movements").
		Where(squirrel.Eq{"tenant_id": filter.TenantID})
	if filter.LocationID != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"from_location_id": filter.LocationID},
			squirrel.Eq{"to_location_id": filter.LocationID},
		})
	}
	if filter.SupplyID != "" {
		q = q.Where(squirrel.Eq{"supply_id": filter.SupplyID})
	}
	if filter.LotID != "" {
		q = q.Where(squirrel.Eq{"lot_id": filter.LotID})
	}
	if filter.Type != "" {
		q = q.Where(squirrel.Eq{"type": filter.Type})
	}
	if filter.ReferenceType != "" {
		q = q.Where(squirrel.Eq{"reference_type": filter.ReferenceType})
	}
	if filter.ReferenceID != "" {
		q = q.Where(squirrel.Eq{"reference_id": filter.ReferenceID})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.To})
	}
	q = q.OrderBy("created_at DESC", "number_year DESC", "number DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return r.selectMovements(ctx, q)
}

// ListByBalanceKey devuelve los movimientos que afectan la clave en orden de creación.
func (r *StockMovementRepo) ListByBalanceKey(ctx context.Context, key entity.BalanceKey) ([]*entity.StockMovement, error) {
	q := psql.Select(movementColumns).
		From("stock_movements").
		Where(squirrel.Eq{"tenant_id": key.TenantID, "supply_id": key.SupplyID, "lot_id": nullIfEmpty(key.LotID)}).
		Where(squirrel.Or{
			squirrel.Eq{"from_location_id": key.LocationID},
			squirrel.Eq{"to_location_id": key.LocationID},
		}).
		OrderBy("created_at", "number_year", "number")
	return r.selectMovements(ctx, q)
}

func (r *StockMovementRepo) selectMovements(ctx context.Context, q squirrel.SelectBuilder) ([]*entity.StockMovement, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list stock movements: %w", err)
	}
	var rows []movementRow
	if err := pgxscan.Select(ctx, r.q, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	out := make([]*entity.StockMovement, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}
