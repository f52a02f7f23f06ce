package inventory

import (
	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
)

// DefaultNumberPrefix prefijo del número legible de movimientos.
const DefaultNumberPrefix = "MOV"

func (e *MovementEngine) numberPrefix() string {
	if e.cfg.NumberPrefix == "" {
		return DefaultNumberPrefix
	}
	return e.cfg.NumberPrefix
}

// ToMovementResponse convierte un movimiento del libro a DTO.
func ToMovementResponse(m *entity.StockMovement, prefix string) dto.MovementResponse {
	return dto.MovementResponse{
		ID:                   m.ID,
		Number:               m.Number,
		NumberYear:           m.NumberYear,
		DisplayNumber:        m.DisplayNumber(prefix),
		Type:                 m.Type,
		SupplyID:             m.SupplyID,
		LotID:                dto.StrPtr(m.LotID),
		FromLocationID:       dto.StrPtr(m.FromLocationID),
		ToLocationID:         dto.StrPtr(m.ToLocationID),
		Quantity:             m.Quantity,
		PresentationID:       dto.StrPtr(m.PresentationID),
		PresentationQuantity: m.PresentationQuantity,
		ReferenceType:        dto.StrPtr(m.ReferenceType),
		ReferenceID:          dto.StrPtr(m.ReferenceID),
		Note:                 m.Note,
		CreatedBy:            m.CreatedBy,
		CreatedAt:            m.CreatedAt,
	}
}

// ToMovementResultResponse convierte el resultado del motor a DTO.
func ToMovementResultResponse(r *MovementResult, prefix string) *dto.MovementResultResponse {
	out := &dto.MovementResultResponse{Movement: ToMovementResponse(r.Movement, prefix)}
	if r.FromBalance != nil {
		out.FromBalance = toSnapshot(r.FromBalance)
	}
	if r.ToBalance != nil {
		out.ToBalance = toSnapshot(r.ToBalance)
	}
	return out
}

func toSnapshot(b *entity.InventoryBalance) *dto.BalanceSnapshot {
	return &dto.BalanceSnapshot{ID: b.ID, Quantity: b.Quantity, Version: b.Version, UpdatedAt: b.UpdatedAt}
}

// ToBalanceResponse convierte un saldo a DTO.
func ToBalanceResponse(b *entity.InventoryBalance) dto.BalanceResponse {
	return dto.BalanceResponse{
		ID:         b.ID,
		LocationID: b.LocationID,
		SupplyID:   b.SupplyID,
		LotID:      dto.StrPtr(b.LotID),
		Quantity:   b.Quantity,
		Version:    b.Version,
		UpdatedAt:  b.UpdatedAt,
	}
}

// ToDriftResponse convierte una diferencia de conciliación a DTO.
func ToDriftResponse(d inventory.Drift) dto.DriftResponse {
	return dto.DriftResponse{
		LocationID: d.Key.LocationID,
		SupplyID:   d.Key.SupplyID,
		LotID:      dto.StrPtr(d.Key.LotID),
		Balance:    d.Balance,
		Replayed:   d.Replayed,
		Difference: d.Difference(),
	}
}
