package repository

import "context"

// SequenceRepository asigna consecutivos por (tenant, año, clave).
// Next debe ejecutarse en la misma transacción que el movimiento: la fila queda bloqueada hasta el commit.
type SequenceRepository interface {
	Next(ctx context.Context, tenantID string, year int, key string) (int64, error)
}
