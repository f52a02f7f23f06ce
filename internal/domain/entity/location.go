package entity

import "time"

// Location representa una bodega, sucursal o ubicación lógica donde se almacena inventario.
// Una ubicación inactiva puede ser origen (para vaciarla) pero nunca destino.
type Location struct {
	ID        string
	TenantID  string
	Code      string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lot identifica un lote de un insumo. Es opcional en saldos y movimientos.
type Lot struct {
	ID        string
	TenantID  string
	SupplyID  string
	Code      string
	ExpiresAt *time.Time
	CreatedAt time.Time
}
