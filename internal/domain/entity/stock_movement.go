package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockMovement es un asiento inmutable del libro de inventario. Nunca se actualiza ni se elimina.
// Los campos string vacíos representan NULL en la base de datos.
type StockMovement struct {
	ID                   string
	TenantID             string
	Number               int64 // consecutivo por (tenant, año, clave)
	NumberYear           int
	Type                 string
	SupplyID             string
	LotID                string
	FromLocationID       string
	ToLocationID         string
	Quantity             decimal.Decimal // siempre positiva; el signo lo da el tipo
	PresentationID       string
	PresentationQuantity *decimal.Decimal
	ReferenceType        string // documento de origen (SALES_ORDER, PRODUCTION_REQUEST, ...)
	ReferenceID          string
	Note                 string
	CreatedBy            string
	CreatedAt            time.Time
}

// DisplayNumber arma el número legible: PREFIJO-AÑO-000123.
func (m *StockMovement) DisplayNumber(prefix string) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, m.NumberYear, m.Number)
}

// SequenceCounter es el último número emitido para (tenant, año, clave).
type SequenceCounter struct {
	TenantID  string
	Year      int
	Key       string
	LastValue int64
	UpdatedAt time.Time
}
