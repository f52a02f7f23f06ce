package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/inventory"
)

// Escenarios 1–5: IN 100 a A, OUT 30 de A, TRANSFER 50 A→B, ADJUSTMENT +10 en B.
func TestReplay_ReproduceSaldos(t *testing.T) {
	movs := []*entity.StockMovement{
		{TenantID: "t1", Type: "IN", SupplyID: "s1", ToLocationID: "A", Quantity: dec("100")},
		{TenantID: "t1", Type: "OUT", SupplyID: "s1", FromLocationID: "A", Quantity: dec("30")},
		{TenantID: "t1", Type: "TRANSFER", SupplyID: "s1", FromLocationID: "A", ToLocationID: "B", Quantity: dec("50")},
		{TenantID: "t1", Type: "ADJUSTMENT", SupplyID: "s1", ToLocationID: "B", Quantity: dec("10")},
		// otro insumo y otro lote no afectan las claves consultadas
		{TenantID: "t1", Type: "IN", SupplyID: "s2", ToLocationID: "A", Quantity: dec("999")},
		{TenantID: "t1", Type: "IN", SupplyID: "s1", LotID: "l1", ToLocationID: "A", Quantity: dec("7")},
	}
	keyA := entity.BalanceKey{TenantID: "t1", LocationID: "A", SupplyID: "s1"}
	keyB := entity.BalanceKey{TenantID: "t1", LocationID: "B", SupplyID: "s1"}

	assert.Equal(t, "20", inventory.Replay(movs, keyA).String())
	assert.Equal(t, "60", inventory.Replay(movs, keyB).String())
}

func TestSignedDelta_AdjustmentConAmbasUbicaciones(t *testing.T) {
	m := &entity.StockMovement{TenantID: "t1", Type: "ADJUSTMENT", SupplyID: "s1", FromLocationID: "A", ToLocationID: "B", Quantity: dec("3")}
	assert.True(t, inventory.SignedDelta(m, entity.BalanceKey{TenantID: "t1", LocationID: "A", SupplyID: "s1"}).IsZero())
	assert.Equal(t, "3", inventory.SignedDelta(m, entity.BalanceKey{TenantID: "t1", LocationID: "B", SupplyID: "s1"}).String())
}

func TestDrift_Difference(t *testing.T) {
	d := inventory.Drift{Balance: dec("12.5"), Replayed: dec("10")}
	assert.Equal(t, "2.5", d.Difference().String())
}
