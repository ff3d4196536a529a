package dataprocessing

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"parcelcli/internal/errors"
	"parcelcli/pkg/contracts/domain"
)

// utf8BOM is the byte order mark some carrier portals prepend to CSV exports.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Loader reads carrier invoice exports (CSV or XLSX) into tables.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader with the given logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load parses the upload based on its file extension.
func (l *Loader) Load(r io.Reader, filename string) (*domain.Table, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return l.LoadCSV(r)
	case ".xlsx":
		return l.LoadXLSX(r)
	default:
		return nil, errors.NewFormatError(
			fmt.Sprintf("unsupported file type %q, expected .csv or .xlsx", ext), nil).
			WithContext("filename", filename)
	}
}

// LoadFile opens path and parses it with Load.
func (l *Loader) LoadFile(path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()
	return l.Load(f, filepath.Base(path))
}

// LoadCSV decodes the content as UTF-8, falling back to Latin-1 when the
// bytes are not valid UTF-8. Rows may have ragged field counts; fully
// blank rows are dropped.
func (l *Loader) LoadCSV(r io.Reader) (*domain.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewParsingError("failed to read CSV content", err)
	}

	if !utf8.Valid(data) {
		decoded, derr := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder()))
		if derr != nil {
			return nil, errors.NewParsingError("failed to decode CSV as UTF-8 or Latin-1", derr)
		}
		l.logger.Debug("CSV decoded with Latin-1 fallback", slog.Int("bytes", len(data)))
		data = decoded
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.NewParsingError("failed to parse CSV content", err)
	}
	return l.tableFromRecords(records)
}

// LoadXLSX reads the first sheet of an Excel workbook.
func (l *Loader) LoadXLSX(r io.Reader) (*domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.NewParsingError("failed to open workbook, file may be corrupt", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.NewParsingError("workbook contains no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.NewParsingError(fmt.Sprintf("failed to read sheet %q", sheets[0]), err)
	}
	return l.tableFromRecords(rows)
}

// tableFromRecords converts raw records into a Table. The first record is
// the header row; header text is kept verbatim apart from naming blank
// headers so cells stay addressable.
func (l *Loader) tableFromRecords(records [][]string) (*domain.Table, error) {
	if len(records) == 0 {
		return nil, errors.NewParsingError("file contains no rows", nil)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		headers[i] = h
	}

	table := domain.NewTable(headers...)
	blank := 0
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			blank++
			continue
		}
		row := make(domain.Row, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			}
		}
		table.AddRow(row)
	}

	l.logger.Debug("table loaded",
		slog.Int("columns", len(headers)),
		slog.Int("rows", table.RowCount()),
		slog.Int("blank_rows_dropped", blank))

	return table, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
