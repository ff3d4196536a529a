package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"parcelcli/pkg/contracts/domain"
)

// FileInfo describes one discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery finds invoice and report files on disk
type Discovery struct {
	basePath string
}

// NewDiscovery creates a discovery instance. Relative directories resolve
// against basePath; an empty basePath means the working directory.
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindInvoiceFiles finds all invoice files (.csv and .xlsx) in the given
// directory, sorted oldest first so batch runs process them in arrival
// order. Excel lock files are skipped.
func (d *Discovery) FindInvoiceFiles(dir string) ([]FileInfo, error) {
	fullPath := d.resolveDir(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Excel writes ~$ lock files while a workbook is open
		if strings.HasPrefix(name, "~$") {
			continue
		}

		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".csv") && !strings.HasSuffix(lower, ".xlsx") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})

	return files, nil
}

// FindCarrierExports finds dated export files for a carrier
// ({carrier}_charges_YYYYMMDD.csv) in the given directory, keyed by the
// date string from the filename. Files with unparseable dates are ignored.
func (d *Discovery) FindCarrierExports(dir string, carrier domain.CarrierID) (map[string]FileInfo, error) {
	fullPath := d.resolveDir(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", fullPath, err)
	}

	prefix := string(carrier) + "_charges_"

	exports := make(map[string]FileInfo)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}

		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".csv")
		if _, err := time.Parse("20060102", dateStr); err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		exports[dateStr] = FileInfo{
			Path:    filepath.Join(fullPath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
	}

	return exports, nil
}

// resolveDir resolves a directory against the base path unless already absolute
func (d *Discovery) resolveDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}
