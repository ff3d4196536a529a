package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"parcelcli/internal/config"
)

// utf8BOM prefixes every generated file so Excel detects the encoding
// instead of guessing Windows-1252.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes report CSV files under the configured data directories.
type CSVWriter struct {
	paths *config.Paths
}

// NewCSVWriter creates a CSV writer rooted at the given paths
func NewCSVWriter(paths *config.Paths) *CSVWriter {
	return &CSVWriter{paths: paths}
}

// Write replaces filePath with a BOM-prefixed CSV file holding the header
// row followed by records. Relative paths land in the exports directory.
func (w *CSVWriter) Write(filePath string, headers []string, records [][]string) error {
	file, err := w.create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			return fmt.Errorf("writing header row: %w", err)
		}
	}

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Stream opens filePath for record-at-a-time writing. The caller owns the
// returned writer and must Close it to flush.
func (w *CSVWriter) Stream(filePath string, headers []string) (*StreamWriter, error) {
	file, err := w.create(filePath)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(file)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			file.Close()
			return nil, fmt.Errorf("writing header row: %w", err)
		}
	}

	return &StreamWriter{file: file, writer: writer}, nil
}

// create resolves filePath, makes the parent directory and opens the file
// truncated, with the BOM already written.
func (w *CSVWriter) create(filePath string) (*os.File, error) {
	fullPath := w.resolvePath(filePath)

	slog.Debug("Writing CSV file", slog.String("path", fullPath))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}

	if _, err := file.Write(utf8BOM); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing BOM: %w", err)
	}

	return file, nil
}

// resolvePath places relative names under the exports directory. Absolute
// paths, such as the batch command's output files, pass through untouched.
func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return w.paths.GetExportPath(filePath)
}

// StreamWriter writes one CSV record at a time, for tables too large to
// materialize as a [][]string.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// WriteRecord appends a single record to the stream
func (s *StreamWriter) WriteRecord(record []string) error {
	return s.writer.Write(record)
}

// Close flushes buffered records and closes the file. Encoding errors
// deferred by the csv writer surface here.
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
