// Package updater checks the project's GitHub releases feed for newer
// builds and can replace the running executable in place. The web server
// runs a periodic check and surfaces available updates in its log; installs
// only happen when the operator opts in.
package updater

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Release is the GitHub releases API shape for a single release
type Release struct {
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Assets  []Asset `json:"assets"`
}

// Asset represents a downloadable release asset
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateInfo describes a build newer than the one currently running
type UpdateInfo struct {
	CurrentVersion string
	LatestVersion  string
	UpdateURL      string
	ReleaseNotes   string
	Size           int64
}

// Updater resolves newer builds from the project's GitHub releases feed
type Updater struct {
	currentVersion string
	repoURL        string
	executablePath string
	client         *http.Client
	logger         *slog.Logger
}

// NewUpdater creates an updater bound to the running executable
func NewUpdater(currentVersion, repoURL string) (*Updater, error) {
	return NewUpdaterWithLogger(currentVersion, repoURL, nil)
}

// NewUpdaterWithLogger creates an updater with an injected logger
func NewUpdaterWithLogger(currentVersion, repoURL string, logger *slog.Logger) (*Updater, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Updater{
		currentVersion: currentVersion,
		repoURL:        repoURL,
		executablePath: execPath,
		client:         &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With(slog.String("component", "updater")),
	}, nil
}

// releasesURL converts the repository URL into its latest-release API URL
func (u *Updater) releasesURL() string {
	api := strings.Replace(u.repoURL, "github.com", "api.github.com/repos", 1)
	return strings.TrimSuffix(api, ".git") + "/releases/latest"
}

// CheckForUpdates queries the releases feed and returns the newer build, or
// nil when the running version is current
func (u *Updater) CheckForUpdates(ctx context.Context) (*UpdateInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.releasesURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}

	if release.TagName == "" || release.TagName == u.currentVersion {
		return nil, nil
	}

	asset, ok := u.platformAsset(release.Assets)
	if !ok {
		return nil, fmt.Errorf("no release asset for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	u.logger.InfoContext(ctx, "Newer build available",
		slog.String("current", u.currentVersion),
		slog.String("latest", release.TagName),
		slog.Int64("size_bytes", asset.Size))

	return &UpdateInfo{
		CurrentVersion: u.currentVersion,
		LatestVersion:  release.TagName,
		UpdateURL:      asset.BrowserDownloadURL,
		ReleaseNotes:   release.Name,
		Size:           asset.Size,
	}, nil
}

// platformAsset picks the release asset published for the running platform
func (u *Updater) platformAsset(assets []Asset) (Asset, bool) {
	tag := platformTag()
	for _, asset := range assets {
		if strings.Contains(strings.ToLower(asset.Name), tag) {
			return asset, true
		}
	}
	return Asset{}, false
}

// platformTag is the platform substring release assets are named with
func platformTag() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	default:
		return runtime.GOOS
	}
}

// PerformUpdate downloads the release archive and swaps the executable.
// The current binary is kept as a .backup alongside until the swap holds.
func (u *Updater) PerformUpdate(ctx context.Context, updateInfo *UpdateInfo) error {
	work := filepath.Join(os.TempDir(), "parcel-update")
	if err := os.MkdirAll(work, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(work)

	archive := filepath.Join(work, "update.zip")
	if err := u.downloadFile(ctx, updateInfo.UpdateURL, archive); err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}

	unpacked := filepath.Join(work, "extracted")
	if err := extractZip(archive, unpacked); err != nil {
		return fmt.Errorf("failed to extract update: %w", err)
	}

	replacement, err := u.findExecutable(unpacked)
	if err != nil {
		return fmt.Errorf("failed to find executable in update: %w", err)
	}

	backup := u.executablePath + ".backup"
	if err := copyFile(u.executablePath, backup); err != nil {
		return fmt.Errorf("failed to back up current executable: %w", err)
	}

	if err := u.replaceExecutable(replacement); err != nil {
		copyFile(backup, u.executablePath)
		return fmt.Errorf("failed to replace executable: %w", err)
	}

	os.Remove(backup)

	u.logger.InfoContext(ctx, "Update installed, restart to apply",
		slog.String("version", updateInfo.LatestVersion))
	return nil
}

// downloadFile streams a URL to a local path
func (u *Updater) downloadFile(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractZip extracts a zip archive into the destination directory,
// rejecting entries that would escape it
func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	root := filepath.Clean(dest) + string(os.PathSeparator)

	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive entry escapes extraction directory: %s", f.Name)
		}
		if err := writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry materializes one archive entry, creating parent directories
// as needed
func writeEntry(f *zip.File, target string) error {
	mode := f.FileInfo().Mode()
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, mode)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// findExecutable locates the replacement binary inside the extracted
// archive by the running executable's own name
func (u *Updater) findExecutable(dir string) (string, error) {
	exeName := filepath.Base(u.executablePath)

	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.Contains(d.Name(), exeName) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if found == "" {
		return "", fmt.Errorf("executable %s not found in update package", exeName)
	}
	return found, nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// replaceExecutable swaps the current binary for the new one. Windows
// locks the running file, so the old binary is renamed aside first.
func (u *Updater) replaceExecutable(newPath string) error {
	if runtime.GOOS != "windows" {
		return copyFile(newPath, u.executablePath)
	}

	aside := u.executablePath + ".old"
	if err := os.Rename(u.executablePath, aside); err != nil {
		return err
	}
	if err := copyFile(newPath, u.executablePath); err != nil {
		os.Rename(aside, u.executablePath)
		return err
	}
	os.Remove(aside)
	return nil
}

// AutoUpdateChecker runs periodic update checks in the background. The
// callback decides whether a discovered update should be installed.
type AutoUpdateChecker struct {
	updater  *Updater
	interval time.Duration
	callback func(*UpdateInfo) bool
	quit     chan struct{}
	done     chan struct{}
	started  bool
}

// NewAutoUpdateChecker creates a checker that polls at the given interval
func NewAutoUpdateChecker(updater *Updater, interval time.Duration, callback func(*UpdateInfo) bool) *AutoUpdateChecker {
	return &AutoUpdateChecker{
		updater:  updater,
		interval: interval,
		callback: callback,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the polling loop in its own goroutine. Start and Stop
// are not safe for concurrent use with each other.
func (auc *AutoUpdateChecker) Start() {
	if auc.started {
		return
	}
	auc.started = true
	go auc.run()
}

func (auc *AutoUpdateChecker) run() {
	defer close(auc.done)

	ticker := time.NewTicker(auc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-auc.quit:
			return
		case <-ticker.C:
			if auc.checkOnce() {
				return
			}
		}
	}
}

// checkOnce performs one poll cycle and reports whether an update was
// installed, which ends the loop
func (auc *AutoUpdateChecker) checkOnce() bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	updateInfo, err := auc.updater.CheckForUpdates(ctx)
	if err != nil {
		auc.updater.logger.Warn("Update check failed",
			slog.String("error", err.Error()))
		return false
	}

	if updateInfo == nil || !auc.callback(updateInfo) {
		return false
	}

	if err := auc.updater.PerformUpdate(ctx, updateInfo); err != nil {
		auc.updater.logger.Error("Update install failed",
			slog.String("error", err.Error()))
		return false
	}

	// The new binary takes over on the next restart
	return true
}

// Stop halts the polling loop and waits for it to exit
func (auc *AutoUpdateChecker) Stop() {
	if !auc.started {
		return
	}
	select {
	case <-auc.quit:
		// Already stopped
	default:
		close(auc.quit)
	}
	<-auc.done
}
