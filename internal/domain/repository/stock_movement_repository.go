package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// MovementFilter filtros para consultar el libro de movimientos. LocationID coincide con origen o destino.
type MovementFilter struct {
	TenantID      string
	LocationID    string
	SupplyID      string
	LotID         string
	Type          string
	ReferenceType string
	ReferenceID   string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// StockMovementRepository define el puerto de persistencia del libro. Solo inserción y lectura.
type StockMovementRepository interface {
	Create(ctx context.Context, movement *entity.StockMovement) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.StockMovement, error)
	List(ctx context.Context, filter MovementFilter) ([]*entity.StockMovement, error)
	// ListByBalanceKey devuelve, en orden de creación, los movimientos que afectan la clave.
	ListByBalanceKey(ctx context.Context, key entity.BalanceKey) ([]*entity.StockMovement, error)
}
