package inventory

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
)

// RegisterMovementFromRequest adapta el request HTTP al motor (Register) y devuelve la respuesta lista para serializar.
// Usar desde handlers HTTP o desde otros casos de uso que tengan tenantID, userID y dto.RegisterMovementRequest.
func (e *MovementEngine) RegisterMovementFromRequest(ctx context.Context, tenantID, userID string, in dto.RegisterMovementRequest) (*dto.MovementResultResponse, error) {
	input := MovementInputDTO{
		TenantID:             tenantID,
		UserID:               userID,
		Type:                 in.Type,
		SupplyID:             in.SupplyID,
		LotID:                in.LotID,
		FromLocationID:       in.FromLocationID,
		ToLocationID:         in.ToLocationID,
		Quantity:             in.Quantity,
		PresentationID:       in.PresentationID,
		PresentationQuantity: in.PresentationQuantity,
		ReferenceType:        in.ReferenceType,
		ReferenceID:          in.ReferenceID,
		Note:                 in.Note,
	}
	result, err := e.Register(ctx, input)
	if err != nil {
		return nil, err
	}
	return ToMovementResultResponse(result, e.numberPrefix()), nil
}
