package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"parcelcli/internal/config"
	"parcelcli/pkg/contracts/domain"
)

// Tables at or past this many rows stream to disk record by record
// instead of materializing every record first.
const streamThreshold = 5000

// ReportExporter writes reshaped charge tables as CSV files and
// download payloads.
type ReportExporter struct {
	paths     *config.Paths
	csvWriter *CSVWriter
}

// NewReportExporter creates a new report exporter
func NewReportExporter(paths *config.Paths) *ReportExporter {
	return &ReportExporter{
		paths:     paths,
		csvWriter: NewCSVWriter(paths),
	}
}

// RenderCSV renders a charge table as CSV bytes with a UTF-8 BOM prefix.
// This is used for HTTP downloads where no file is written.
func (e *ReportExporter) RenderCSV(table *domain.Table) ([]byte, error) {
	if table == nil {
		return nil, fmt.Errorf("no table to render")
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)

	writer := csv.NewWriter(&buf)
	if err := writer.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("writing header row: %w", err)
	}

	for i, record := range tableRecords(table) {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ExportTable writes a charge table to a CSV file, streaming when the
// table is large
func (e *ReportExporter) ExportTable(table *domain.Table, outputPath string) error {
	if table == nil {
		return fmt.Errorf("no table to export")
	}

	if len(table.Rows) >= streamThreshold {
		return e.exportStreaming(table, outputPath)
	}

	return e.csvWriter.Write(outputPath, table.Columns, tableRecords(table))
}

// ExportCarrierTable writes a charge table to the exports directory using
// the dated carrier filename convention. It returns the written path.
func (e *ReportExporter) ExportCarrierTable(carrier domain.CarrierID, table *domain.Table, now time.Time) (string, error) {
	outputPath := e.paths.GetCarrierExportPath(string(carrier), now)

	if err := e.ExportTable(table, outputPath); err != nil {
		return "", fmt.Errorf("exporting %s table: %w", carrier, err)
	}

	return outputPath, nil
}

func (e *ReportExporter) exportStreaming(table *domain.Table, outputPath string) error {
	stream, err := e.csvWriter.Stream(outputPath, table.Columns)
	if err != nil {
		return err
	}

	for _, row := range table.Rows {
		if err := stream.WriteRecord(rowRecord(row, table.Columns)); err != nil {
			stream.Close()
			return fmt.Errorf("writing row: %w", err)
		}
	}

	return stream.Close()
}

// tableRecords converts table rows to CSV records in column order
func tableRecords(table *domain.Table) [][]string {
	records := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		records = append(records, rowRecord(row, table.Columns))
	}
	return records
}

// rowRecord converts one table row to a CSV record, empty string for
// missing cells
func rowRecord(row domain.Row, columns []string) []string {
	record := make([]string, len(columns))
	for i, col := range columns {
		if v, ok := row.Cell(col); ok {
			record[i] = v
		}
	}
	return record
}
