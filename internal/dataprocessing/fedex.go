package dataprocessing

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"parcelcli/internal/errors"
	"parcelcli/pkg/contracts/domain"
)

// Reshaper converts the FedEx wide invoice layout, where each row carries
// numbered description/amount column pairs, into one row per tracking ID
// with one column per charge description.
type Reshaper struct {
	logger      *slog.Logger
	trackingCol string
}

// ReshaperConfig holds configuration for the FedEx reshaper.
type ReshaperConfig struct {
	// TrackingColumn is the source header that holds the tracking ID.
	TrackingColumn string
}

// DefaultReshaperConfig returns the configuration matching the standard
// FedEx invoice export.
func DefaultReshaperConfig() ReshaperConfig {
	return ReshaperConfig{TrackingColumn: domain.FedExDefaultTrackingCol}
}

// NewReshaper creates a FedEx reshaper with the given logger and config.
func NewReshaper(logger *slog.Logger, config ReshaperConfig) *Reshaper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.TrackingColumn == "" {
		config.TrackingColumn = domain.FedExDefaultTrackingCol
	}
	return &Reshaper{logger: logger, trackingCol: config.TrackingColumn}
}

// FedExReport is a reshaped FedEx table together with its category
// universe. Categories are the raw charge descriptions, sorted; the table
// columns carry the tagged form of each description.
type FedExReport struct {
	Table      *domain.Table
	Categories []string
}

// chargeSlot pairs one description column with the amount column sharing
// its trailing slot number.
type chargeSlot struct {
	index   int
	descCol string
	amtCol  string
}

// Reshape produces exactly one output row per input row. Each output row
// keeps the tracking ID (empty when the source column is absent) and one
// cell per charge found in that row's slots. When a description repeats
// within a row the later slot wins.
func (r *Reshaper) Reshape(ctx context.Context, table *domain.Table) (*FedExReport, error) {
	if table == nil {
		return nil, errors.NewParsingError("no table to reshape", nil)
	}

	slots := resolveSlots(table.Columns)

	r.logger.InfoContext(ctx, "reshaping FedEx invoice",
		slog.Int("source_rows", table.RowCount()),
		slog.Int("charge_slots", len(slots)),
		slog.String("tracking_column", r.trackingCol))

	seen := make(map[string]struct{})
	rows := make([]domain.Row, 0, table.RowCount())
	for _, in := range table.Rows {
		out := make(domain.Row)
		tracking, _ := in.Cell(r.trackingCol)
		out[domain.FedExTrackingIDColumn] = tracking

		for _, slot := range slots {
			desc, ok := in.Cell(slot.descCol)
			if !ok {
				continue
			}
			out[domain.TagCategory(desc)] = in[slot.amtCol]
			seen[desc] = struct{}{}
		}
		rows = append(rows, out)
	}

	categories := make([]string, 0, len(seen))
	for desc := range seen {
		categories = append(categories, desc)
	}
	sort.Strings(categories)

	columns := make([]string, 0, len(categories)+1)
	columns = append(columns, domain.FedExTrackingIDColumn)
	for _, cat := range categories {
		columns = append(columns, domain.TagCategory(cat))
	}

	r.logger.InfoContext(ctx, "FedEx reshape complete",
		slog.Int("rows", len(rows)),
		slog.Int("categories", len(categories)))

	return &FedExReport{
		Table:      &domain.Table{Columns: columns, Rows: rows},
		Categories: categories,
	}, nil
}

// Visible returns the reshaped table restricted to the tracking ID
// column plus the selected categories. Rows without a value in any
// selected category are dropped; the tracking ID alone does not keep a
// row visible.
func (r *Reshaper) Visible(report *FedExReport, selection []string) *domain.Table {
	ordered := sortedCategories(selection)

	columns := make([]string, 0, len(ordered)+1)
	columns = append(columns, domain.FedExTrackingIDColumn)
	for _, cat := range ordered {
		columns = append(columns, domain.TagCategory(cat))
	}

	table := domain.NewTable(columns...)
	if report == nil || len(ordered) == 0 {
		return table
	}

	for _, row := range report.Table.Rows {
		out := make(domain.Row, len(columns))
		out[domain.FedExTrackingIDColumn] = row[domain.FedExTrackingIDColumn]
		keep := false
		for _, cat := range ordered {
			col := domain.TagCategory(cat)
			if val, ok := row.Cell(col); ok {
				out[col] = val
				keep = true
			}
		}
		if keep {
			table.AddRow(out)
		}
	}
	return table
}

// Summarize reports, for each selected category, how many tracking IDs
// carry the charge and the sum of the parseable amounts. A category whose
// column is missing from the reshaped table keeps its count but has no
// usable total.
func (r *Reshaper) Summarize(ctx context.Context, report *FedExReport, selection []string) []domain.CategorySummary {
	ordered := sortedCategories(selection)
	summaries := make([]domain.CategorySummary, 0, len(ordered))
	if report == nil {
		return summaries
	}

	for _, cat := range ordered {
		col := domain.TagCategory(cat)
		summary := domain.CategorySummary{Category: cat, TotalKnown: report.Table.HasColumn(col)}
		for _, row := range report.Table.Rows {
			val, ok := row.Cell(col)
			if !ok {
				continue
			}
			summary.Count++
			if amt, ok := domain.ParseAmount(val); ok {
				summary.Total += amt
			}
		}
		summaries = append(summaries, summary)
	}

	r.logger.InfoContext(ctx, "FedEx summary generated",
		slog.Int("selected_categories", len(ordered)))

	return summaries
}

// slotNumberPattern matches the slot number FedEx appends to each charge
// column header.
var slotNumberPattern = regexp.MustCompile(`(\d+)\s*$`)

// slotIndex extracts the trailing slot number of a charge column header.
// Headers without one share slot 0.
func slotIndex(column string) int {
	m := slotNumberPattern.FindStringSubmatch(column)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// resolveSlots pairs description and amount columns by slot number,
// keeping only slots where both sides exist, in ascending slot order.
// Columns are scanned in lexicographic order so a duplicated slot number
// resolves deterministically to the last name.
func resolveSlots(columns []string) []chargeSlot {
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)

	descs := make(map[int]string)
	amts := make(map[int]string)
	for _, col := range sorted {
		switch {
		case strings.Contains(col, domain.FedExDescriptionMarker):
			descs[slotIndex(col)] = col
		case strings.Contains(col, domain.FedExAmountMarker):
			amts[slotIndex(col)] = col
		}
	}

	indexes := make([]int, 0, len(descs))
	for i := range descs {
		if _, ok := amts[i]; ok {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)

	slots := make([]chargeSlot, 0, len(indexes))
	for _, i := range indexes {
		slots = append(slots, chargeSlot{index: i, descCol: descs[i], amtCol: amts[i]})
	}
	return slots
}
