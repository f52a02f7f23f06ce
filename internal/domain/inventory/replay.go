package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// SignedDelta devuelve el efecto de un movimiento sobre una clave de saldo (cero si no la toca).
// Aplica las mismas reglas que PlanDeltas, incluido el ADJUSTMENT con ambas ubicaciones.
func SignedDelta(m *entity.StockMovement, key entity.BalanceKey) decimal.Decimal {
	if m.TenantID != key.TenantID || m.SupplyID != key.SupplyID || m.LotID != key.LotID {
		return decimal.Zero
	}
	shape := Shape{
		Type:           m.Type,
		SupplyID:       m.SupplyID,
		FromLocationID: m.FromLocationID,
		ToLocationID:   m.ToLocationID,
		Quantity:       m.Quantity,
	}
	total := decimal.Zero
	for _, d := range PlanDeltas(m.TenantID, m.LotID, shape) {
		if d.Key == key {
			total = total.Add(d.Amount)
		}
	}
	return total
}

// Replay suma los deltas de los movimientos sobre la clave. Debe reproducir el saldo actual.
func Replay(movements []*entity.StockMovement, key entity.BalanceKey) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(SignedDelta(m, key))
	}
	return total
}

// Drift compara el saldo materializado con el reconstruido desde el libro.
type Drift struct {
	Key      entity.BalanceKey
	Balance  decimal.Decimal
	Replayed decimal.Decimal
}

// Difference devuelve saldo - reconstruido.
func (d Drift) Difference() decimal.Decimal {
	return d.Balance.Sub(d.Replayed)
}
