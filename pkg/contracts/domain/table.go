// Package domain contains the core data contracts for the Parcel Pulse
// charge extraction system.
package domain

import (
	"math"
	"strconv"
	"strings"
)

// CarrierID identifies one of the supported parcel carriers.
type CarrierID string

const (
	CarrierFedEx CarrierID = "fedex"
	CarrierUPS   CarrierID = "ups"
)

// Valid reports whether the carrier is one of the supported values.
func (c CarrierID) Valid() bool {
	return c == CarrierFedEx || c == CarrierUPS
}

// Carriers returns all supported carriers in presentation order.
func Carriers() []CarrierID {
	return []CarrierID{CarrierFedEx, CarrierUPS}
}

// Row is one record of a tabular file, keyed by column name.
// A cell is missing when its key is absent or its trimmed value is empty;
// blank spreadsheet cells and short CSV rows both collapse to missing.
type Row map[string]string

// Cell returns the trimmed value of the named column and whether the
// cell is present and non-empty.
func (r Row) Cell(col string) (string, bool) {
	v, ok := r[col]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// Has reports whether the named column holds a non-missing value.
func (r Row) Has(col string) bool {
	_, ok := r.Cell(col)
	return ok
}

// Amount returns the cell value coerced to a numeric amount.
// Missing and non-numeric cells both report ok=false.
func (r Row) Amount(col string) (float64, bool) {
	v, ok := r.Cell(col)
	if !ok {
		return 0, false
	}
	return ParseAmount(v)
}

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of named columns plus data rows.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable creates a table with the given column order and no rows.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns, Rows: []Row{}}
}

// AddRow appends a data row.
func (t *Table) AddRow(row Row) {
	t.Rows = append(t.Rows, row)
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the table has no data rows.
func (t *Table) IsEmpty() bool {
	return t.RowCount() == 0
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, r.Clone())
	}
	return out
}

// ParseAmount converts a raw cell value into a charge amount.
// Unparseable values report ok=false and are excluded from sums rather
// than treated as zero; this is the coerce-or-mark-missing conversion
// used by every aggregation in the system.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
