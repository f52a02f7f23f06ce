package inventory

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const reconcilePageSize = 200

// ReconcileUseCase reconstruye cada saldo desde el libro y reporta las diferencias.
// Solo lectura: nunca corrige saldos.
type ReconcileUseCase struct {
	runner SnapshotRunner
	log    *logger.Logger
}

// NewReconcileUseCase construye el caso de uso.
func NewReconcileUseCase(runner SnapshotRunner, log *logger.Logger) *ReconcileUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileUseCase{runner: runner, log: log.Named("reconcile")}
}

// Reconcile recorre los saldos que cumplen filter (paginando de a reconcilePageSize) y compara
// cada uno con la suma de su libro. Saldos y movimientos se leen en una misma instantánea, así un
// movimiento confirmado durante la pasada no aparece como diferencia.
// Devuelve las diferencias y la cantidad de saldos revisados.
func (uc *ReconcileUseCase) Reconcile(ctx context.Context, filter repository.BalanceFilter) ([]inventory.Drift, int, error) {
	var (
		drifts  []inventory.Drift
		checked int
	)
	err := uc.runner.RunSnapshot(ctx, func(ctx context.Context, repos Repositories) error {
		drifts, checked = nil, 0
		filter.Limit = reconcilePageSize
		filter.Offset = 0
		for {
			page, err := repos.Balances.List(ctx, filter)
			if err != nil {
				return err
			}
			for _, b := range page {
				if err := ctx.Err(); err != nil {
					return err
				}
				key := b.Key()
				movs, err := repos.Movements.ListByBalanceKey(ctx, key)
				if err != nil {
					return err
				}
				checked++
				replayed := inventory.Replay(movs, key)
				if replayed.Equal(b.Quantity) {
					continue
				}
				uc.log.Warn().
					Str("tenant_id", key.TenantID).
					Str("location_id", key.LocationID).
					Str("supply_id", key.SupplyID).
					Str("lot_id", key.LotID).
					Str("balance", b.Quantity.String()).
					Str("replayed", replayed.String()).
					Msg("saldo no coincide con el libro")
				drifts = append(drifts, inventory.Drift{Key: key, Balance: b.Quantity, Replayed: replayed})
			}
			if len(page) < filter.Limit {
				return nil
			}
			filter.Offset += filter.Limit
		}
	})
	if err != nil {
		return nil, checked, err
	}
	return drifts, checked, nil
}

// ReconcileResponse valida los filtros, ejecuta Reconcile y arma la respuesta HTTP.
func (uc *ReconcileUseCase) ReconcileResponse(ctx context.Context, filter repository.BalanceFilter) (*dto.ReconcileResponse, error) {
	if err := normalizeIDs(
		idField{"tenant_id", &filter.TenantID},
		idField{"location_id", &filter.LocationID},
		idField{"supply_id", &filter.SupplyID},
		idField{"lot_id", &filter.LotID},
	); err != nil {
		return nil, err
	}
	drifts, checked, err := uc.Reconcile(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := &dto.ReconcileResponse{Checked: checked, Drifts: make([]dto.DriftResponse, 0, len(drifts))}
	for _, d := range drifts {
		out.Drifts = append(out.Drifts, ToDriftResponse(d))
	}
	return out, nil
}
