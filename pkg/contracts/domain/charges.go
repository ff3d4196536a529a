package domain

import (
	"fmt"
	"time"
)

// ViewState describes what a carrier report renders for one interaction.
type ViewState string

const (
	// ViewStateEmpty means no file has been uploaded for the carrier yet.
	ViewStateEmpty ViewState = "empty"
	// ViewStateIdle means a table is loaded but no categories are selected;
	// nothing is rendered. This is a waiting state, not an error.
	ViewStateIdle ViewState = "idle"
	// ViewStateReady means a visible table and summaries are available.
	ViewStateReady ViewState = "ready"
)

// CategorySummary is one per-category count/sum line.
// TotalKnown is false when the numeric coercion of the whole column
// failed; the count is still reliable in that case.
type CategorySummary struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Total      float64 `json:"total"`
	TotalKnown bool    `json:"total_known"`
}

// Line renders the summary the way the report page shows it, e.g.
// "Residential: 1 tracking ID(s), $5.00 total".
func (s CategorySummary) Line(carrier CarrierID) string {
	unit := "tracking ID(s)"
	if carrier == CarrierUPS {
		unit = "times"
	}
	if !s.TotalKnown {
		return fmt.Sprintf("%s: %d %s, total unavailable", s.Category, s.Count, unit)
	}
	return fmt.Sprintf("%s: %d %s, $%.2f total", s.Category, s.Count, unit, s.Total)
}

// ReportView is the fully derived render state for one carrier within one
// session. Everything here is recomputed from the session's raw table on
// every interaction; nothing in a view is retained between requests.
type ReportView struct {
	Carrier     CarrierID         `json:"carrier"`
	State       ViewState         `json:"state"`
	Categories  []string          `json:"categories"`
	Selection   []string          `json:"selection"`
	Table       *Table            `json:"table,omitempty"`
	Summaries   []CategorySummary `json:"summaries,omitempty"`
	SummaryText []string          `json:"summary_text,omitempty"`
	SourceRows  int               `json:"source_rows"`
	VisibleRows int               `json:"visible_rows"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// UploadResult describes an accepted carrier invoice upload.
type UploadResult struct {
	Carrier    CarrierID `json:"carrier"`
	FileName   string    `json:"file_name"`
	RowCount   int       `json:"row_count"`
	Columns    int       `json:"columns"`
	Categories []string  `json:"categories"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// FedEx reshaping constants. The category tag is appended to every
// reshaped charge column so report columns cannot collide with raw
// invoice columns.
const (
	FedExTrackingIDColumn   = "Tracking ID"
	FedExDefaultTrackingCol = "Express or Ground Tracking ID"
	FedExDescriptionMarker  = "Tracking ID Charge Description"
	FedExAmountMarker       = "Tracking ID Charge Amount"
	CategoryTag             = " (PL-DZ)"
)

// UPS invoice columns, matched after trimming surrounding whitespace
// from every header.
const (
	UPSLeadShipmentColumn = "Lead Shipment Number"
	UPSReferenceColumn    = "Shipment Reference Number 1"
	UPSChargeColumn       = "Charge Description"
	UPSAmountColumn       = "DTrans Amount"
	UPSTotalColumn        = "Total"
)

// UPSRequiredColumns lists the columns a UPS export must carry.
func UPSRequiredColumns() []string {
	return []string{
		UPSLeadShipmentColumn,
		UPSReferenceColumn,
		UPSChargeColumn,
		UPSAmountColumn,
	}
}

// TagCategory converts a raw charge description into its report column name.
func TagCategory(desc string) string {
	return desc + CategoryTag
}
