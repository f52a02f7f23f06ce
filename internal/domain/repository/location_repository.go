package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LocationRepository puerto de lectura de ubicaciones. GetByID devuelve (nil, nil) si no existe para el tenant.
type LocationRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*entity.Location, error)
}
