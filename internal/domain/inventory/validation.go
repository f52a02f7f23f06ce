package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// QuantityScale es la cantidad máxima de decimales de una cantidad (NUMERIC(18,4)).
// Cantidades con más precisión se rechazan; nunca se redondean.
const QuantityScale = 4

// MaxQuantity cota exclusiva de cantidades y saldos: NUMERIC(18,4) admite 14 dígitos enteros.
var MaxQuantity = decimal.New(1, 18-QuantityScale)

// Shape es la forma estructural de un movimiento, suficiente para validarlo y planear sus deltas.
// Los IDs vacíos significan "no informado".
type Shape struct {
	Type                 string
	SupplyID             string
	LotID                string
	FromLocationID       string
	ToLocationID         string
	Quantity             decimal.Decimal
	PresentationID       string
	PresentationQuantity *decimal.Decimal
	ReferenceType        string
	ReferenceID          string
}

// ValidateShape verifica las precondiciones por tipo de movimiento. No tiene efectos.
func ValidateShape(s Shape) error {
	if !entity.IsValidMovementType(s.Type) {
		return domain.NewValidationError("type", "debe ser IN, OUT, TRANSFER o ADJUSTMENT")
	}
	if s.SupplyID == "" {
		return domain.NewValidationError("supply_id", "requerido")
	}
	for _, f := range []struct{ field, id string }{
		{"supply_id", s.SupplyID},
		{"lot_id", s.LotID},
		{"from_location_id", s.FromLocationID},
		{"to_location_id", s.ToLocationID},
		{"presentation_id", s.PresentationID},
	} {
		if _, err := NormalizeID(f.field, f.id); err != nil {
			return err
		}
	}
	switch s.Type {
	case entity.MovementTypeIN:
		if s.ToLocationID == "" {
			return domain.NewValidationError("to_location_id", "requerido para IN")
		}
	case entity.MovementTypeOUT:
		if s.FromLocationID == "" {
			return domain.NewValidationError("from_location_id", "requerido para OUT")
		}
	case entity.MovementTypeTRANSFER:
		if s.FromLocationID == "" {
			return domain.NewValidationError("from_location_id", "requerido para TRANSFER")
		}
		if s.ToLocationID == "" {
			return domain.NewValidationError("to_location_id", "requerido para TRANSFER")
		}
		if sameID(s.FromLocationID, s.ToLocationID) {
			return domain.NewValidationError("to_location_id", "debe ser distinta de from_location_id")
		}
	case entity.MovementTypeADJUSTMENT:
		if s.FromLocationID == "" && s.ToLocationID == "" {
			return domain.NewValidationError("to_location_id", "ADJUSTMENT requiere from_location_id o to_location_id")
		}
	}
	if err := validateQuantity("quantity", s.Quantity); err != nil {
		return err
	}
	if s.PresentationQuantity != nil {
		if s.PresentationID == "" {
			return domain.NewValidationError("presentation_id", "requerido cuando se informa presentation_quantity")
		}
		if err := validateQuantity("presentation_quantity", *s.PresentationQuantity); err != nil {
			return err
		}
	}
	if (s.ReferenceType == "") != (s.ReferenceID == "") {
		if s.ReferenceType == "" {
			return domain.NewValidationError("reference_type", "requerido cuando se informa reference_id")
		}
		return domain.NewValidationError("reference_id", "requerido cuando se informa reference_type")
	}
	return nil
}

func validateQuantity(field string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return domain.NewValidationError(field, "debe ser mayor que cero")
	}
	if !q.Equal(q.Truncate(QuantityScale)) {
		return domain.NewValidationError(field, "admite máximo 4 decimales")
	}
	if !WithinCapacity(q) {
		return domain.NewValidationError(field, "debe ser menor que "+MaxQuantity.String())
	}
	return nil
}

// WithinCapacity indica si q cabe en una columna NUMERIC(18,4).
func WithinCapacity(q decimal.Decimal) bool {
	return q.LessThan(MaxQuantity)
}

// NormalizeID verifica que id sea un UUID y lo devuelve en forma canónica (minúsculas con guiones).
// Un id vacío se devuelve tal cual; la obligatoriedad la decide quien llama.
func NormalizeID(field, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", domain.NewValidationError(field, "debe ser un UUID")
	}
	return u.String(), nil
}

func sameID(a, b string) bool {
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ua == ub
}
