package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelcli/internal/config"
	"parcelcli/pkg/contracts/domain"
)

func setupReportExporter(t *testing.T) (*ReportExporter, string) {
	t.Helper()

	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "exports"), 0755))

	exporter := NewReportExporter(&config.Paths{
		ExportsDir: filepath.Join(tempDir, "exports"),
		UploadsDir: filepath.Join(tempDir, "uploads"),
	})

	return exporter, tempDir
}

func chargeTable(t *testing.T) *domain.Table {
	t.Helper()

	table := domain.NewTable("Tracking ID", "Fuel Surcharge (PL-DZ)", "Residential Surcharge (PL-DZ)")
	table.AddRow(domain.Row{
		"Tracking ID":                   "100",
		"Fuel Surcharge (PL-DZ)":        "5.25",
		"Residential Surcharge (PL-DZ)": "3.10",
	})
	table.AddRow(domain.Row{
		"Tracking ID":            "200",
		"Fuel Surcharge (PL-DZ)": "1.00",
	})
	return table
}

func TestReportExporter_RenderCSV(t *testing.T) {
	exporter, _ := setupReportExporter(t)

	t.Run("renders table with BOM", func(t *testing.T) {
		data, err := exporter.RenderCSV(chargeTable(t))
		require.NoError(t, err)

		assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

		reader := csv.NewReader(bytes.NewReader(data[3:]))
		records, err := reader.ReadAll()
		require.NoError(t, err)

		require.Len(t, records, 3) // header + 2 rows
		assert.Equal(t, []string{"Tracking ID", "Fuel Surcharge (PL-DZ)", "Residential Surcharge (PL-DZ)"}, records[0])
		assert.Equal(t, []string{"100", "5.25", "3.10"}, records[1])
		// Missing cell renders as empty string
		assert.Equal(t, []string{"200", "1.00", ""}, records[2])
	})

	t.Run("nil table", func(t *testing.T) {
		_, err := exporter.RenderCSV(nil)
		assert.Error(t, err)
	})

	t.Run("empty table renders header only", func(t *testing.T) {
		data, err := exporter.RenderCSV(domain.NewTable("Tracking ID"))
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(string(data[3:])), "\n")
		assert.Len(t, lines, 1)
		assert.Equal(t, "Tracking ID", lines[0])
	})
}

func TestReportExporter_ExportTable(t *testing.T) {
	exporter, tempDir := setupReportExporter(t)

	err := exporter.ExportTable(chargeTable(t), "charges.csv")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(tempDir, "exports", "charges.csv"))
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}))

	lines := strings.Split(strings.TrimSpace(string(content[3:])), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "Tracking ID,Fuel Surcharge (PL-DZ),Residential Surcharge (PL-DZ)", lines[0])

	t.Run("nil table", func(t *testing.T) {
		assert.Error(t, exporter.ExportTable(nil, "nothing.csv"))
	})
}

func TestReportExporter_ExportCarrierTable(t *testing.T) {
	exporter, tempDir := setupReportExporter(t)

	now := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

	path, err := exporter.ExportCarrierTable(domain.CarrierFedEx, chargeTable(t), now)
	require.NoError(t, err)

	assert.Equal(t, "fedex_charges_20240307.csv", filepath.Base(path))
	assert.Equal(t, filepath.Join(tempDir, "exports"), filepath.Dir(path))
	assert.FileExists(t, path)
}

func TestReportExporter_StreamsLargeTables(t *testing.T) {
	exporter, tempDir := setupReportExporter(t)

	// Past the row threshold ExportTable takes the streaming path. The
	// output must be indistinguishable from the buffered one.
	table := domain.NewTable("Lead Shipment Number", "Fuel Surcharge", "Total")
	for i := 0; i < streamThreshold+25; i++ {
		table.AddRow(domain.Row{
			"Lead Shipment Number": fmt.Sprintf("1Z%08d", i),
			"Fuel Surcharge":       "2.50",
			"Total":                "2.50",
		})
	}

	require.NoError(t, exporter.ExportTable(table, "ups_pivot.csv"))

	file, err := os.Open(filepath.Join(tempDir, "exports", "ups_pivot.csv"))
	require.NoError(t, err)
	defer file.Close()

	bom := make([]byte, 3)
	_, err = file.Read(bom)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, bom)

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	require.NoError(t, err)

	assert.Len(t, records, streamThreshold+26)
	assert.Equal(t, table.Columns, records[0])
	assert.Equal(t, []string{"1Z00000000", "2.50", "2.50"}, records[1])
}
