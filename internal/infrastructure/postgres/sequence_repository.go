package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo consecutivos estrictos por (tenant, año, clave). Sin huecos: el número solo queda
// consumido si la transacción que lo pidió hace Commit.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Pasar tx (Querier).
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next incrementa y devuelve el consecutivo. La fila queda bloqueada hasta el fin de la transacción.
func (r *SequenceRepo) Next(ctx context.Context, tenantID string, year int, key string) (int64, error) {
	query := `
		INSERT INTO sequence_counters (tenant_id, year, key, last_value, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (tenant_id, year, key)
		DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = now()
		RETURNING last_value`
	var n int64
	if err := r.q.QueryRow(ctx, query, tenantID, year, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("next sequence %s/%d: %w", key, year, err)
	}
	return n, nil
}
