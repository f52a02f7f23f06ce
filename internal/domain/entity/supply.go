package entity

import "time"

// Supply representa un insumo o SKU del catálogo. El catálogo es dueño de la entidad;
// el motor de movimientos solo la lee para validar existencia y estado.
type Supply struct {
	ID        string
	TenantID  string
	SKU       string // código único por tenant
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
