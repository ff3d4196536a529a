package files

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"parcelcli/internal/config"
	"parcelcli/pkg/contracts/domain"
)

// Manager archives uploaded invoices and enforces retention on the data
// directories.
type Manager struct {
	paths     *config.Paths
	discovery *Discovery
}

// NewManager creates a file manager for the given paths
func NewManager(paths *config.Paths) *Manager {
	return &Manager{paths: paths, discovery: NewDiscovery("")}
}

// ArchiveUpload stores a received invoice under the uploads directory with a
// timestamp prefix so repeated uploads of the same filename never collide.
// It returns the archived path.
func (m *Manager) ArchiveUpload(filename string, data []byte, now time.Time) (string, error) {
	base := filepath.Base(filename)
	archived := fmt.Sprintf("%s_%s", now.Format("20060102T150405"), base)
	fullPath := m.paths.GetUploadPath(archived)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("creating uploads directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("archiving upload %s: %w", base, err)
	}

	slog.Debug("Upload archived",
		slog.String("path", fullPath),
		slog.Int("size_bytes", len(data)))

	return fullPath, nil
}

// PruneUploads removes archived uploads last modified before cutoff and
// reports how many were removed. A missing uploads directory is not an
// error, nothing has been archived yet.
func (m *Manager) PruneUploads(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(m.paths.UploadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading uploads directory: %w", err)
	}

	removed := 0
	var reclaimed int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(m.paths.UploadsDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
		removed++
		reclaimed += info.Size()
	}

	if removed > 0 {
		slog.Info("Pruned archived uploads",
			slog.Int("removed", removed),
			slog.Int64("reclaimed_bytes", reclaimed))
	}

	return removed, nil
}

// PruneExports removes dated carrier report copies whose filename date falls
// before the cutoff's day and reports how many were removed. The filename
// date wins over the file's mtime so restored copies keep their age.
func (m *Manager) PruneExports(cutoff time.Time) (int, error) {
	cutoffDay := cutoff.Format("20060102")

	removed := 0
	for _, carrier := range domain.Carriers() {
		exports, err := m.discovery.FindCarrierExports(m.paths.ExportsDir, carrier)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, err
		}

		for dateStr, file := range exports {
			if dateStr >= cutoffDay {
				continue
			}
			if err := os.Remove(file.Path); err != nil {
				return removed, fmt.Errorf("removing %s: %w", file.Name, err)
			}
			removed++
		}
	}

	if removed > 0 {
		slog.Info("Pruned report copies",
			slog.Int("removed", removed),
			slog.String("cutoff_day", cutoffDay))
	}

	return removed, nil
}
