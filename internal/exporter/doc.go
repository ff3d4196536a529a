// Package exporter turns reshaped charge tables into CSV output.
//
// CSVWriter handles the file mechanics: UTF-8 BOM for Excel, parent
// directory creation, and a streaming mode for large tables. Relative
// paths resolve into the exports directory.
//
// ReportExporter sits on top and understands charge tables. It renders
// in-memory CSV payloads for HTTP downloads, writes batch report files,
// and keeps dated carrier copies under data/exports.
//
// Example usage:
//
//	exporter := exporter.NewReportExporter(paths)
//
//	// Render a table for an HTTP download
//	data, err := exporter.RenderCSV(table)
//
//	// Keep a dated copy under data/exports
//	path, err := exporter.ExportCarrierTable(domain.CarrierFedEx, table, time.Now())
package exporter
