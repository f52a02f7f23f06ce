package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// LedgerQueryUseCase consultas de solo lectura sobre el libro y los saldos (fuera de transacción).
type LedgerQueryUseCase struct {
	movements repository.StockMovementRepository
	balances  repository.BalanceRepository
	cache     BalanceCache
	prefix    string
	log       *logger.Logger
}

// NewLedgerQueryUseCase construye el caso de uso. cache es opcional.
func NewLedgerQueryUseCase(
	movements repository.StockMovementRepository,
	balances repository.BalanceRepository,
	cache BalanceCache,
	numberPrefix string,
	log *logger.Logger,
) *LedgerQueryUseCase {
	if numberPrefix == "" {
		numberPrefix = DefaultNumberPrefix
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerQueryUseCase{
		movements: movements,
		balances:  balances,
		cache:     cache,
		prefix:    numberPrefix,
		log:       log.Named("ledger_query"),
	}
}

// GetMovement devuelve un movimiento del tenant. Un id que no es UUID no puede existir: NotFound.
func (uc *LedgerQueryUseCase) GetMovement(ctx context.Context, tenantID, id string) (*dto.MovementResponse, error) {
	if err := normalizeIDs(idField{"tenant_id", &tenantID}); err != nil {
		return nil, err
	}
	movementID, err := inventory.NormalizeID("id", id)
	if err != nil || movementID == "" {
		return nil, domain.NewNotFoundError("movement", id)
	}
	m, err := uc.movements.GetByID(ctx, tenantID, movementID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.NewNotFoundError("movement", id)
	}
	out := ToMovementResponse(m, uc.prefix)
	return &out, nil
}

// ListMovements lista el libro con filtros, en orden de creación descendente.
func (uc *LedgerQueryUseCase) ListMovements(ctx context.Context, tenantID string, q dto.ListMovementsQuery) ([]dto.MovementResponse, error) {
	q.DefaultPage()
	if q.Type != "" && !entity.IsValidMovementType(q.Type) {
		return nil, domain.NewValidationError("type", "tipo de movimiento desconocido")
	}
	if err := normalizeIDs(
		idField{"tenant_id", &tenantID},
		idField{"location_id", &q.LocationID},
		idField{"supply_id", &q.SupplyID},
		idField{"lot_id", &q.LotID},
	); err != nil {
		return nil, err
	}
	filter := repository.MovementFilter{
		TenantID:      tenantID,
		LocationID:    q.LocationID,
		SupplyID:      q.SupplyID,
		LotID:         q.LotID,
		Type:          q.Type,
		ReferenceType: q.ReferenceType,
		ReferenceID:   q.ReferenceID,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
	var err error
	if filter.From, err = parseTime("from", q.From); err != nil {
		return nil, err
	}
	if filter.To, err = parseTime("to", q.To); err != nil {
		return nil, err
	}

	list, err := uc.movements.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]dto.MovementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, ToMovementResponse(m, uc.prefix))
	}
	return out, nil
}

// GetBalance devuelve el saldo de una clave; usa la caché si está configurada.
// Una clave sin fila se reporta como saldo cero y no se cachea.
func (uc *LedgerQueryUseCase) GetBalance(ctx context.Context, key entity.BalanceKey) (*dto.BalanceResponse, error) {
	if key.LocationID == "" {
		return nil, domain.NewValidationError("location_id", "requerido")
	}
	if key.SupplyID == "" {
		return nil, domain.NewValidationError("supply_id", "requerido")
	}
	if err := normalizeIDs(
		idField{"tenant_id", &key.TenantID},
		idField{"location_id", &key.LocationID},
		idField{"supply_id", &key.SupplyID},
		idField{"lot_id", &key.LotID},
	); err != nil {
		return nil, err
	}

	if uc.cache != nil {
		b, err := uc.cache.Get(ctx, key)
		if err != nil {
			uc.log.Warn().Err(err).Str("location_id", key.LocationID).Str("supply_id", key.SupplyID).Msg("leer caché de saldos")
		} else if b != nil {
			out := ToBalanceResponse(b)
			return &out, nil
		}
	}

	b, err := uc.balances.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return &dto.BalanceResponse{
			LocationID: key.LocationID,
			SupplyID:   key.SupplyID,
			LotID:      dto.StrPtr(key.LotID),
		}, nil
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, b); err != nil {
			uc.log.Warn().Err(err).Str("balance_id", b.ID).Msg("escribir caché de saldos")
		}
	}
	out := ToBalanceResponse(b)
	return &out, nil
}

// ListBalances lista saldos con filtros.
func (uc *LedgerQueryUseCase) ListBalances(ctx context.Context, tenantID string, q dto.ListBalancesQuery) ([]dto.BalanceResponse, error) {
	q.DefaultPage()
	if err := normalizeIDs(
		idField{"tenant_id", &tenantID},
		idField{"location_id", &q.LocationID},
		idField{"supply_id", &q.SupplyID},
		idField{"lot_id", &q.LotID},
	); err != nil {
		return nil, err
	}
	list, err := uc.balances.List(ctx, repository.BalanceFilter{
		TenantID:    tenantID,
		LocationID:  q.LocationID,
		SupplyID:    q.SupplyID,
		LotID:       q.LotID,
		ExcludeZero: q.ExcludeZero,
		Limit:       q.Limit,
		Offset:      q.Offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]dto.BalanceResponse, 0, len(list))
	for _, b := range list {
		out = append(out, ToBalanceResponse(b))
	}
	return out, nil
}

func parseTime(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, domain.NewValidationError(field, fmt.Sprintf("fecha inválida, se espera RFC3339: %s", s))
	}
	return &t, nil
}
