package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterMovementRequest body para POST /api/inventory/movements.
type RegisterMovementRequest struct {
	Type                 string           `json:"type"`
	SupplyID             string           `json:"supply_id"`
	LotID                string           `json:"lot_id,omitempty"`
	FromLocationID       string           `json:"from_location_id,omitempty"`
	ToLocationID         string           `json:"to_location_id,omitempty"`
	Quantity             decimal.Decimal  `json:"quantity"`
	PresentationID       string           `json:"presentation_id,omitempty"`
	PresentationQuantity *decimal.Decimal `json:"presentation_quantity,omitempty"`
	ReferenceType        string           `json:"reference_type,omitempty"`
	ReferenceID          string           `json:"reference_id,omitempty"`
	Note                 string           `json:"note,omitempty"`
}

// MovementResponse movimiento del libro.
type MovementResponse struct {
	ID                   string           `json:"id"`
	Number               int64            `json:"number"`
	NumberYear           int              `json:"number_year"`
	DisplayNumber        string           `json:"display_number"`
	Type                 string           `json:"type"`
	SupplyID             string           `json:"supply_id"`
	LotID                *string          `json:"lot_id"`
	FromLocationID       *string          `json:"from_location_id"`
	ToLocationID         *string          `json:"to_location_id"`
	Quantity             decimal.Decimal  `json:"quantity"`
	PresentationID       *string          `json:"presentation_id"`
	PresentationQuantity *decimal.Decimal `json:"presentation_quantity"`
	ReferenceType        *string          `json:"reference_type"`
	ReferenceID          *string          `json:"reference_id"`
	Note                 string           `json:"note,omitempty"`
	CreatedBy            string           `json:"created_by,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// BalanceSnapshot estado de un saldo tras un movimiento.
type BalanceSnapshot struct {
	ID        string          `json:"id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MovementResultResponse respuesta de POST /api/inventory/movements.
type MovementResultResponse struct {
	Movement    MovementResponse `json:"movement"`
	FromBalance *BalanceSnapshot `json:"from_balance,omitempty"`
	ToBalance   *BalanceSnapshot `json:"to_balance,omitempty"`
}

// BalanceResponse saldo por (ubicación, insumo, lote).
type BalanceResponse struct {
	ID         string          `json:"id"`
	LocationID string          `json:"location_id"`
	SupplyID   string          `json:"supply_id"`
	LotID      *string         `json:"lot_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Version    int64           `json:"version"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ListMovementsQuery filtros de GET /api/inventory/movements.
type ListMovementsQuery struct {
	LocationID    string `query:"location_id"`
	SupplyID      string `query:"supply_id"`
	LotID         string `query:"lot_id"`
	Type          string `query:"type"`
	ReferenceType string `query:"reference_type"`
	ReferenceID   string `query:"reference_id"`
	From          string `query:"from"` // RFC3339
	To            string `query:"to"`   // RFC3339
	PageRequest
}

// ListBalancesQuery filtros de GET /api/inventory/balances.
type ListBalancesQuery struct {
	LocationID  string `query:"location_id"`
	SupplyID    string `query:"supply_id"`
	LotID       string `query:"lot_id"`
	ExcludeZero bool   `query:"exclude_zero"`
	PageRequest
}

// DriftResponse diferencia entre el saldo materializado y el reconstruido desde el libro.
type DriftResponse struct {
	LocationID string          `json:"location_id"`
	SupplyID   string          `json:"supply_id"`
	LotID      *string         `json:"lot_id"`
	Balance    decimal.Decimal `json:"balance"`
	Replayed   decimal.Decimal `json:"replayed"`
	Difference decimal.Decimal `json:"difference"`
}

// ReconcileResponse resultado de la conciliación del libro.
type ReconcileResponse struct {
	Checked int             `json:"checked"`
	Drifts  []DriftResponse `json:"drifts"`
}
