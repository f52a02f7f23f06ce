package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// SupplyRepository puerto de lectura de insumos (el catálogo es externo).
// GetByID devuelve (nil, nil) si el insumo no existe para el tenant.
type SupplyRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*entity.Supply, error)
}

// LotRepository puerto de lectura de lotes.
type LotRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*entity.Lot, error)
}
