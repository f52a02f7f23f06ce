package inventory

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Repositories agrupa los repositorios atados a una misma transacción.
type Repositories struct {
	Supplies  repository.SupplyRepository
	Lots      repository.LotRepository
	Locations repository.LocationRepository
	Balances  repository.BalanceRepository
	Movements repository.StockMovementRepository
	Sequences repository.SequenceRepository
}

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Si fn devuelve error se hace Rollback; si no, Commit. Garantiza atomicidad para el motor de inventario.
type TxRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// SnapshotRunner ejecuta fn en una transacción de solo lectura donde todas las consultas ven el mismo
// estado confirmado.
type SnapshotRunner interface {
	RunSnapshot(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// BalanceCache caché de lectura de saldos. Nunca participa en el cálculo de un movimiento.
// Set solo reemplaza una entrada con Version menor: una lectura vieja no pisa un saldo más nuevo.
type BalanceCache interface {
	Get(ctx context.Context, key entity.BalanceKey) (*entity.InventoryBalance, error)
	Set(ctx context.Context, balance *entity.InventoryBalance) error
}

// MovementPublisher publica los movimientos confirmados hacia consumidores externos (auditoría, reportes).
type MovementPublisher interface {
	PublishMovement(ctx context.Context, result *MovementResult) error
}
