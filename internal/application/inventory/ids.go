package inventory

import "github.com/jhoicas/stock-ledger/internal/domain/inventory"

type idField struct {
	name string
	id   *string
}

// normalizeIDs valida el formato UUID de cada campo informado y lo reescribe en forma canónica.
func normalizeIDs(fields ...idField) error {
	for _, f := range fields {
		id, err := inventory.NormalizeID(f.name, *f.id)
		if err != nil {
			return err
		}
		*f.id = id
	}
	return nil
}
