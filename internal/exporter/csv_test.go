package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"parcelcli/internal/config"
)

// newTestWriter roots a CSVWriter in a fresh temp directory
func newTestWriter(t *testing.T) (*CSVWriter, *config.Paths) {
	t.Helper()

	dataDir := t.TempDir()
	paths := &config.Paths{
		ExportsDir: filepath.Join(dataDir, "exports"),
		UploadsDir: filepath.Join(dataDir, "uploads"),
	}
	return NewCSVWriter(paths), paths
}

// readCSV parses a generated file back, checking and stripping the BOM
func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}), "missing UTF-8 BOM")

	records, err := csv.NewReader(bytes.NewReader(content[3:])).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteRoundTrip(t *testing.T) {
	writer, paths := newTestWriter(t)

	headers := []string{"Tracking ID", "Fuel Surcharge (PL-DZ)"}
	records := [][]string{
		{"770123456", "5.25"},
		{"770123457", "3.10"},
	}
	require.NoError(t, writer.Write("fedex_report.csv", headers, records))

	got := readCSV(t, paths.GetExportPath("fedex_report.csv"))
	require.Len(t, got, 3)
	assert.Equal(t, headers, got[0])
	assert.Equal(t, records[0], got[1])
	assert.Equal(t, records[1], got[2])
}

func TestWriteHeaderOnly(t *testing.T) {
	writer, paths := newTestWriter(t)

	require.NoError(t, writer.Write("empty.csv", []string{"Tracking ID", "Total"}, nil))

	got := readCSV(t, paths.GetExportPath("empty.csv"))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Tracking ID", "Total"}, got[0])
}

func TestWriteReplacesExistingFile(t *testing.T) {
	writer, paths := newTestWriter(t)

	require.NoError(t, writer.Write("report.csv", []string{"A"}, [][]string{{"old"}, {"older"}}))
	require.NoError(t, writer.Write("report.csv", []string{"A"}, [][]string{{"new"}}))

	got := readCSV(t, paths.GetExportPath("report.csv"))
	require.Len(t, got, 2, "a rewrite truncates, it never appends")
	assert.Equal(t, "new", got[1][0])
}

func TestWriteQuotesSpecialCharacters(t *testing.T) {
	writer, paths := newTestWriter(t)

	headers := []string{"Shipment Reference Number 1", "Charge Description"}
	records := [][]string{
		{"PO-4471, Dock B", `Address Correction "manual"`},
		{"Renée\nsecond line", "Crème fraîche, ñáéíóú"},
	}
	require.NoError(t, writer.Write("quoting.csv", headers, records))

	got := readCSV(t, paths.GetExportPath("quoting.csv"))
	require.Len(t, got, 3)
	assert.Equal(t, records[0], got[1])
	assert.Equal(t, records[1], got[2])
}

func TestWriteCreatesParentDirectories(t *testing.T) {
	writer, paths := newTestWriter(t)

	rel := filepath.Join("archive", "2025", "report.csv")
	require.NoError(t, writer.Write(rel, []string{"A"}, [][]string{{"1"}}))

	assert.FileExists(t, filepath.Join(paths.ExportsDir, "archive", "2025", "report.csv"))
}

func TestResolvePath(t *testing.T) {
	writer, paths := newTestWriter(t)

	abs := filepath.Join(t.TempDir(), "out", "batch_report.csv")
	assert.Equal(t, abs, writer.resolvePath(abs))

	assert.Equal(t,
		filepath.Join(paths.ExportsDir, "charges.csv"),
		writer.resolvePath("charges.csv"))

	// Relative subdirectories stay under exports too
	assert.Equal(t,
		filepath.Join(paths.ExportsDir, "2025", "charges.csv"),
		writer.resolvePath(filepath.Join("2025", "charges.csv")))
}

func TestConcurrentWrites(t *testing.T) {
	writer, paths := newTestWriter(t)

	const files = 8
	const rows = 50

	var g errgroup.Group
	for i := 0; i < files; i++ {
		name := fmt.Sprintf("file_%d.csv", i)
		g.Go(func() error {
			records := make([][]string, rows)
			for j := range records {
				records[j] = []string{name, fmt.Sprintf("%d", j)}
			}
			return writer.Write(name, []string{"File", "Row"}, records)
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < files; i++ {
		got := readCSV(t, paths.GetExportPath(fmt.Sprintf("file_%d.csv", i)))
		assert.Len(t, got, rows+1)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	writer, paths := newTestWriter(t)

	stream, err := writer.Stream("streamed.csv", []string{"Lead Shipment Number", "Total"})
	require.NoError(t, err)

	require.NoError(t, stream.WriteRecord([]string{"1Z9900X10001", "12.40"}))
	require.NoError(t, stream.WriteRecord([]string{"1Z9900X10002", "8.00"}))
	require.NoError(t, stream.Close())

	got := readCSV(t, paths.GetExportPath("streamed.csv"))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Lead Shipment Number", "Total"}, got[0])
	assert.Equal(t, []string{"1Z9900X10002", "8.00"}, got[2])
}

func BenchmarkWrite(b *testing.B) {
	writer := NewCSVWriter(&config.Paths{
		ExportsDir: filepath.Join(b.TempDir(), "exports"),
	})

	headers := []string{"Tracking ID", "Fuel Surcharge", "Residential Surcharge", "Total"}
	records := make([][]string, 2000)
	for i := range records {
		records[i] = []string{fmt.Sprintf("%d", 770000000+i), "5.25", "3.10", "8.35"}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := writer.Write("bench.csv", headers, records); err != nil {
			b.Fatal(err)
		}
	}
}
