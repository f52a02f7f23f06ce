package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ReferenceTypeOpeningBalance marca los ajustes creados por la carga de saldos iniciales.
const ReferenceTypeOpeningBalance = "OPENING_BALANCE"

// openingRow una línea del CSV de saldos iniciales.
type openingRow struct {
	Line       int
	LocationID string
	SupplyID   string
	LotID      string
	Quantity   decimal.Decimal
	Note       string
}

// registrar lo implementa *inventory.MovementEngine.
type registrar interface {
	Register(ctx context.Context, input inventory.MovementInputDTO) (*inventory.MovementResult, error)
}

var requiredColumns = []string{"location_id", "supply_id", "quantity"}

// decodeReader envuelve r según el charset del archivo. Los CSV exportados por sistemas
// legados vienen en ISO-8859-1; en UTF-8 se descarta el BOM si lo hay.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.ReplaceAll(charset, "_", "-")) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case "iso-8859-1", "iso8859-1", "latin1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("charset no soportado: %s", charset)
	}
}

// parseRows lee el CSV con encabezado. Columnas: location_id, supply_id, quantity (obligatorias),
// lot_id y note (opcionales). Filas con cantidad cero se omiten.
func parseRows(r io.Reader, charset string, comma rune) ([]openingRow, error) {
	dr, err := decodeReader(r, charset)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(dr)
	cr.Comma = comma
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("archivo vacío")
		}
		return nil, fmt.Errorf("leer encabezado: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("falta la columna %q", col)
		}
	}
	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []openingRow
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("línea %d: %w", line, err)
		}
		// Con separador ";" la coma es el separador decimal.
		raw := get(rec, "quantity")
		if comma == ';' {
			raw = strings.ReplaceAll(raw, ",", ".")
		}
		qty, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("línea %d: cantidad inválida %q", line, raw)
		}
		if qty.IsNegative() {
			return nil, fmt.Errorf("línea %d: la cantidad inicial no puede ser negativa", line)
		}
		if qty.IsZero() {
			continue
		}
		row := openingRow{
			Line:       line,
			LocationID: get(rec, "location_id"),
			SupplyID:   get(rec, "supply_id"),
			LotID:      get(rec, "lot_id"),
			Quantity:   qty,
			Note:       get(rec, "note"),
		}
		if row.LocationID == "" || row.SupplyID == "" {
			return nil, fmt.Errorf("línea %d: location_id y supply_id son obligatorios", line)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// importRows registra un ADJUSTMENT positivo por fila. Cada fila es su propia transacción;
// un error en una fila no detiene las demás.
func importRows(ctx context.Context, eng registrar, tenantID, userID, batchID string, rows []openingRow) (int, []error) {
	var (
		created int
		errs    []error
	)
	for _, row := range rows {
		note := row.Note
		if note == "" {
			note = "saldo inicial"
		}
		_, err := eng.Register(ctx, inventory.MovementInputDTO{
			TenantID:      tenantID,
			UserID:        userID,
			Type:          entity.MovementTypeADJUSTMENT,
			SupplyID:      row.SupplyID,
			LotID:         row.LotID,
			ToLocationID:  row.LocationID,
			Quantity:      row.Quantity,
			ReferenceType: ReferenceTypeOpeningBalance,
			ReferenceID:   batchID,
			Note:          note,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("línea %d: %w", row.Line, err))
			continue
		}
		created++
	}
	return created, errs
}
