package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceKey identifica un saldo: (tenant, ubicación, insumo, lote). LotID vacío = sin lote.
type BalanceKey struct {
	TenantID   string
	LocationID string
	SupplyID   string
	LotID      string
}

// Compare ordena claves por ubicación, insumo y lote (vacío primero).
// Es el orden canónico en que se toman los bloqueos de fila.
func (k BalanceKey) Compare(o BalanceKey) int {
	if c := strings.Compare(k.TenantID, o.TenantID); c != 0 {
		return c
	}
	if c := strings.Compare(k.LocationID, o.LocationID); c != 0 {
		return c
	}
	if c := strings.Compare(k.SupplyID, o.SupplyID); c != 0 {
		return c
	}
	return strings.Compare(k.LotID, o.LotID)
}

// InventoryBalance es el saldo materializado de una clave. Quantity nunca es negativa.
// Version se incrementa en cada mutación.
type InventoryBalance struct {
	ID         string
	TenantID   string
	LocationID string
	SupplyID   string
	LotID      string
	Quantity   decimal.Decimal
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key devuelve la clave del saldo.
func (b *InventoryBalance) Key() BalanceKey {
	return BalanceKey{TenantID: b.TenantID, LocationID: b.LocationID, SupplyID: b.SupplyID, LotID: b.LotID}
}
