package inventory

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// Side indica qué lado del movimiento afecta un delta.
type Side int

const (
	SideSource Side = iota
	SideDestination
)

// Delta es el cambio firmado que un movimiento aplica sobre una clave de saldo.
type Delta struct {
	Key    entity.BalanceKey
	Side   Side
	Amount decimal.Decimal
}

// PlanDeltas devuelve los deltas de un movimiento ya validado, en orden canónico de bloqueo
// (ver BalanceKey.Compare). Un movimiento toca como máximo dos claves distintas.
//
//	IN:         +q destino
//	OUT:        -q origen
//	TRANSFER:   -q origen, +q destino
//	ADJUSTMENT: +q destino si se informa; si no, -q origen
func PlanDeltas(tenantID, lotID string, s Shape) []Delta {
	key := func(locationID string) entity.BalanceKey {
		return entity.BalanceKey{TenantID: tenantID, LocationID: locationID, SupplyID: s.SupplyID, LotID: lotID}
	}
	var deltas []Delta
	switch s.Type {
	case entity.MovementTypeIN:
		deltas = append(deltas, Delta{Key: key(s.ToLocationID), Side: SideDestination, Amount: s.Quantity})
	case entity.MovementTypeOUT:
		deltas = append(deltas, Delta{Key: key(s.FromLocationID), Side: SideSource, Amount: s.Quantity.Neg()})
	case entity.MovementTypeTRANSFER:
		deltas = append(deltas,
			Delta{Key: key(s.FromLocationID), Side: SideSource, Amount: s.Quantity.Neg()},
			Delta{Key: key(s.ToLocationID), Side: SideDestination, Amount: s.Quantity},
		)
	case entity.MovementTypeADJUSTMENT:
		if s.ToLocationID != "" {
			deltas = append(deltas, Delta{Key: key(s.ToLocationID), Side: SideDestination, Amount: s.Quantity})
		} else {
			deltas = append(deltas, Delta{Key: key(s.FromLocationID), Side: SideSource, Amount: s.Quantity.Neg()})
		}
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].Key.Compare(deltas[j].Key) < 0
	})
	return deltas
}

// ApplyDelta calcula el nuevo saldo. ok es false si el resultado sería negativo.
func ApplyDelta(current, amount decimal.Decimal) (next decimal.Decimal, ok bool) {
	next = current.Add(amount)
	if next.IsNegative() {
		return current, false
	}
	return next, true
}
