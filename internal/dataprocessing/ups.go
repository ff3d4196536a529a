package dataprocessing

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"parcelcli/internal/errors"
	"parcelcli/pkg/contracts/domain"
)

// Aggregator processes the UPS long invoice layout, where each charge is
// its own row, into per-category summaries and a per-shipment pivot.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates a UPS aggregator with the given logger.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// UPSReport is a normalized UPS table together with its category
// universe. Headers are whitespace-trimmed; cell values stay as loaded.
type UPSReport struct {
	Table      *domain.Table
	Categories []string
}

// Prepare trims the table headers, verifies the columns the pipeline
// depends on and derives the category universe. A table missing any
// required column is rejected with a MissingColumnsError listing what
// was actually found.
func (a *Aggregator) Prepare(ctx context.Context, table *domain.Table) (*UPSReport, error) {
	if table == nil {
		return nil, errors.NewParsingError("no table to process", nil)
	}

	trimmed := a.trimHeaders(table)

	var missing []string
	for _, required := range domain.UPSRequiredColumns() {
		if !trimmed.HasColumn(required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		a.logger.WarnContext(ctx, "UPS invoice missing required columns",
			slog.Any("missing", missing),
			slog.Any("found", trimmed.Columns))
		return nil, &errors.MissingColumnsError{Missing: missing, Found: trimmed.Columns}
	}

	seen := make(map[string]struct{})
	for _, row := range trimmed.Rows {
		if desc, ok := row.Cell(domain.UPSChargeColumn); ok {
			seen[desc] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for desc := range seen {
		categories = append(categories, desc)
	}
	sort.Strings(categories)

	a.logger.InfoContext(ctx, "UPS invoice prepared",
		slog.Int("rows", trimmed.RowCount()),
		slog.Int("categories", len(categories)))

	return &UPSReport{Table: trimmed, Categories: categories}, nil
}

// trimHeaders re-keys every row under whitespace-trimmed column names.
// If trimming collapses two headers into one, the later column wins.
func (a *Aggregator) trimHeaders(table *domain.Table) *domain.Table {
	columns := make([]string, 0, len(table.Columns))
	index := make(map[string]int, len(table.Columns))
	rename := make(map[string]string, len(table.Columns))
	for _, col := range table.Columns {
		name := strings.TrimSpace(col)
		rename[col] = name
		if at, ok := index[name]; ok {
			a.logger.Warn("duplicate column after trimming headers", slog.String("column", name))
			columns[at] = name
			continue
		}
		index[name] = len(columns)
		columns = append(columns, name)
	}

	rows := make([]domain.Row, 0, len(table.Rows))
	for _, row := range table.Rows {
		out := make(domain.Row, len(row))
		for col, val := range row {
			out[rename[col]] = val
		}
		rows = append(rows, out)
	}
	return &domain.Table{Columns: columns, Rows: rows}
}

// Filter returns the rows whose charge description is one of the
// selected categories.
func (a *Aggregator) Filter(report *UPSReport, selection []string) []domain.Row {
	if report == nil || len(selection) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(selection))
	for _, cat := range selection {
		want[cat] = struct{}{}
	}

	var rows []domain.Row
	for _, row := range report.Table.Rows {
		desc, ok := row.Cell(domain.UPSChargeColumn)
		if !ok {
			continue
		}
		if _, selected := want[desc]; selected {
			rows = append(rows, row)
		}
	}
	return rows
}

// Summarize reports, for each selected category, how many charge rows
// matched and the sum of their parseable amounts.
func (a *Aggregator) Summarize(ctx context.Context, report *UPSReport, selection []string) []domain.CategorySummary {
	rows := a.Filter(report, selection)

	counts := make(map[string]int, len(selection))
	totals := make(map[string]float64, len(selection))
	for _, row := range rows {
		desc, _ := row.Cell(domain.UPSChargeColumn)
		counts[desc]++
		if amt, ok := row.Amount(domain.UPSAmountColumn); ok {
			totals[desc] += amt
		}
	}

	ordered := sortedCategories(selection)
	summaries := make([]domain.CategorySummary, 0, len(ordered))
	for _, cat := range ordered {
		summaries = append(summaries, domain.CategorySummary{
			Category:   cat,
			Count:      counts[cat],
			Total:      totals[cat],
			TotalKnown: true,
		})
	}

	a.logger.InfoContext(ctx, "UPS summary generated",
		slog.Int("selected_categories", len(ordered)),
		slog.Int("matching_rows", len(rows)))

	return summaries
}

// pivotCell accumulates one shipment/category aggregate. present
// distinguishes a shipment that had charge rows for the category from
// one that had none at all.
type pivotCell struct {
	sum     float64
	present bool
}

// shipmentKey identifies one shipment in the pivot. Missing key cells
// group under the empty string so no filtered charge is ever dropped.
type shipmentKey struct {
	lead string
	ref  string
}

// Pivot groups the filtered charge rows by shipment and produces one row
// per shipment with a column per observed category plus a Total. Amounts
// for the same shipment and category are summed. Rows are ordered by
// Total descending; ties keep first-seen order.
func (a *Aggregator) Pivot(ctx context.Context, report *UPSReport, selection []string) *domain.Table {
	rows := a.Filter(report, selection)

	var order []shipmentKey
	groups := make(map[shipmentKey]map[string]pivotCell)
	observed := make(map[string]struct{})
	for _, row := range rows {
		lead, _ := row.Cell(domain.UPSLeadShipmentColumn)
		ref, _ := row.Cell(domain.UPSReferenceColumn)
		key := shipmentKey{lead: lead, ref: ref}

		cells, ok := groups[key]
		if !ok {
			cells = make(map[string]pivotCell)
			groups[key] = cells
			order = append(order, key)
		}

		desc, _ := row.Cell(domain.UPSChargeColumn)
		cell := cells[desc]
		cell.present = true
		if amt, ok := row.Amount(domain.UPSAmountColumn); ok {
			cell.sum += amt
		}
		cells[desc] = cell
		observed[desc] = struct{}{}
	}

	categories := make([]string, 0, len(observed))
	for desc := range observed {
		categories = append(categories, desc)
	}
	sort.Strings(categories)

	columns := make([]string, 0, len(categories)+3)
	columns = append(columns, domain.UPSLeadShipmentColumn, domain.UPSReferenceColumn)
	columns = append(columns, categories...)
	columns = append(columns, domain.UPSTotalColumn)

	type rankedRow struct {
		row   domain.Row
		total float64
	}
	ranked := make([]rankedRow, 0, len(order))
	for _, key := range order {
		out := domain.Row{
			domain.UPSLeadShipmentColumn: key.lead,
			domain.UPSReferenceColumn:    key.ref,
		}
		total := 0.0
		for _, cat := range categories {
			cell, ok := groups[key][cat]
			if !ok || !cell.present {
				continue
			}
			out[cat] = formatAmount(cell.sum)
			total += cell.sum
		}
		out[domain.UPSTotalColumn] = formatAmount(total)
		ranked = append(ranked, rankedRow{row: out, total: total})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].total > ranked[j].total
	})

	table := domain.NewTable(columns...)
	for _, r := range ranked {
		table.AddRow(r.row)
	}

	a.logger.InfoContext(ctx, "UPS pivot generated",
		slog.Int("shipments", table.RowCount()),
		slog.Int("categories", len(categories)))

	return table
}

// formatAmount renders an aggregated amount as a money cell.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// sortedCategories returns a lexicographically sorted copy of the
// selection with duplicates removed.
func sortedCategories(selection []string) []string {
	seen := make(map[string]struct{}, len(selection))
	out := make([]string, 0, len(selection))
	for _, cat := range selection {
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}
