package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// BalanceFilter filtros para listar saldos. Campos vacíos no filtran.
type BalanceFilter struct {
	TenantID    string
	LocationID  string
	SupplyID    string
	LotID       string
	ExcludeZero bool
	Limit       int
	Offset      int
}

// BalanceRepository define el puerto de saldos por (ubicación, insumo, lote).
// Las operaciones de escritura solo se usan dentro de una transacción.
type BalanceRepository interface {
	Get(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error)
	// GetForUpdate bloquea la fila (SELECT ... FOR UPDATE). Devuelve (nil, nil) si la fila no existe.
	GetForUpdate(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error)
	// Create inserta el saldo si la clave no existe. Devuelve false si otra transacción ya la creó.
	Create(ctx context.Context, balance *entity.InventoryBalance) (bool, error)
	// UpdateQuantity fija la cantidad e incrementa la versión, actualizando balance con lo persistido.
	// Falla con ErrConflict si la versión en BD no coincide con balance.Version.
	UpdateQuantity(ctx context.Context, balance *entity.InventoryBalance, quantity decimal.Decimal, at time.Time) error
	List(ctx context.Context, filter BalanceFilter) ([]*entity.InventoryBalance, error)
}
