package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Paths holds every directory the application reads or writes. Components
// take these instead of joining path fragments themselves.
type Paths struct {
	ExecutableDir string
	WebDir        string
	StaticDir     string
	DataDir       string
	UploadsDir    string
	ExportsDir    string
	LogsDir       string
}

var (
	pathsOnce   sync.Once
	cachedPaths *Paths
	pathsErr    error
)

// GetPaths resolves the application directory tree once and caches it.
// Everything hangs off the executable's directory, never the working
// directory, so the binary behaves the same from a build tree or an
// install dir:
//
//	dist/
//	  ├── data/
//	  │   ├── uploads/   (archived invoice uploads)
//	  │   └── exports/   (generated CSV reports)
//	  ├── logs/          (application logs)
//	  └── web/           (frontend assets)
func GetPaths() (*Paths, error) {
	pathsOnce.Do(func() {
		cachedPaths, pathsErr = resolvePathsFromExecutable()
	})
	return cachedPaths, pathsErr
}

func resolvePathsFromExecutable() (*Paths, error) {
	root, err := executableDir()
	if err != nil {
		return nil, err
	}
	data := filepath.Join(root, "data")

	return &Paths{
		ExecutableDir: root,
		WebDir:        filepath.Join(root, "web"),
		StaticDir:     filepath.Join(root, "web", "static"),
		LogsDir:       filepath.Join(root, "logs"),
		DataDir:       data,
		UploadsDir:    filepath.Join(data, "uploads"),
		ExportsDir:    filepath.Join(data, "exports"),
	}, nil
}

// executableDir locates the directory the running binary lives in. A
// symlinked binary resolves to where it actually lives.
func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolving executable symlinks: %w", err)
	}
	return filepath.Dir(resolved), nil
}

// EnsureDirectories creates the directory tree if any part is missing
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.UploadsDir, p.ExportsDir, p.LogsDir, p.WebDir, p.StaticDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path names an existing file or directory
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetUploadPath returns the path for an archived upload
func (p *Paths) GetUploadPath(filename string) string {
	return filepath.Join(p.UploadsDir, filename)
}

// GetExportPath returns the path for an exported report file
func (p *Paths) GetExportPath(filename string) string {
	return filepath.Join(p.ExportsDir, filename)
}

// GetLogPath resolves filename inside the logs directory
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetCarrierExportPath returns the conventional export path for a carrier
// report generated at the given time (e.g. fedex_charges_20250818.csv)
func (p *Paths) GetCarrierExportPath(carrier string, t time.Time) string {
	filename := fmt.Sprintf("%s_charges_%s.csv", carrier, t.Format("20060102"))
	return filepath.Join(p.ExportsDir, filename)
}

// LogPathResolution records the resolved directory tree at startup
func (p *Paths) LogPathResolution() {
	slog.Info("Path resolution summary",
		slog.String("executable_dir", p.ExecutableDir),
		slog.String("data_dir", p.DataDir),
		slog.String("uploads_dir", p.UploadsDir),
		slog.String("exports_dir", p.ExportsDir),
		slog.String("logs_dir", p.LogsDir),
		slog.String("web_dir", p.WebDir))
}
