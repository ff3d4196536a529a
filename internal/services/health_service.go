package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"parcelcli/internal/config"
	"parcelcli/internal/infrastructure"
	"parcelcli/internal/sessions"
	ws "parcelcli/internal/websocket"
	"parcelcli/pkg/contracts"
)

// HealthService answers the health, readiness and stats probes. Readiness
// reflects the dependencies a working report flow needs: the session
// store, the WebSocket hub and a writable data directory.
type HealthService struct {
	version      string
	repoURL      string
	buildTime    string
	buildID      string
	paths        config.PathsConfig
	store        *sessions.Store
	webSocketHub *ws.Hub
	collector    *infrastructure.SystemMetricsCollector
	startTime    time.Time
	logger       *slog.Logger
}

// HealthStatus is the response shape shared by the health, readiness and
// liveness endpoints.
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   *RuntimeVitals           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// RuntimeVitals carries the process numbers the liveness probe reports.
type RuntimeVitals struct {
	UptimeSeconds float64 `json:"uptime"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
}

// ServiceHealth reports one dependency inside a readiness response.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemStats holds the numbers the stats endpoint reports.
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	TotalFiles       int     `json:"total_files"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	WebSocketClients int     `json:"websocket_clients"`
	ActiveSessions   int     `json:"active_sessions"`
	Goroutines       int64   `json:"goroutines,omitempty"`
	MemoryBytes      int64   `json:"memory_usage_bytes,omitempty"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// NewHealthService builds a health service for builds without embedded
// build metadata.
func NewHealthService(version, repoURL string, paths config.PathsConfig, store *sessions.Store, webSocketHub *ws.Hub, logger *slog.Logger) *HealthService {
	return NewHealthServiceWithBuildInfo(version, repoURL, "", "", paths, store, webSocketHub, logger)
}

// NewHealthServiceWithBuildInfo builds a health service carrying the
// build stamp that the version endpoint reports.
func NewHealthServiceWithBuildInfo(version, repoURL, buildTime, buildID string, paths config.PathsConfig, store *sessions.Store, webSocketHub *ws.Hub, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthService{
		version:      version,
		repoURL:      repoURL,
		buildTime:    buildTime,
		buildID:      buildID,
		paths:        paths,
		store:        store,
		webSocketHub: webSocketHub,
		startTime:    time.Now(),
		logger:       logger,
	}
}

// SetSystemCollector attaches the runtime metrics collector so stats
// responses include live goroutine and memory numbers.
func (hs *HealthService) SetSystemCollector(c *infrastructure.SystemMetricsCollector) {
	hs.collector = c
}

// HealthCheck reports that the process is up. The UI polls this, so it
// stays cheap and unlogged.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck probes each dependency and reports not_ready if any of
// them cannot serve a report flow.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"sessions":  hs.sessionHealth(),
			"websocket": hs.webSocketHealth(),
			"data":      hs.dataHealth(),
		},
	}

	for _, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}

	return status
}

// LivenessCheck reports the process runtime vitals.
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: &RuntimeVitals{
			UptimeSeconds: time.Since(hs.startTime).Seconds(),
			GoVersion:     runtime.Version(),
			Goroutines:    runtime.NumGoroutine(),
		},
	}
}

// Version returns the build and runtime identification for this binary.
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.VersionInfo{
		Version:      hs.version,
		RepoURL:      hs.repoURL,
		BuildTime:    hs.buildTime,
		BuildID:      hs.buildID,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		APIVersion:   contracts.APIVersion,
		DataFormat:   contracts.DataFormatVersion,
		Uptime:       time.Since(hs.startTime).Seconds(),
		StartTime:    hs.startTime.Format(time.RFC3339),
		CurrentTime:  time.Now().Format(time.RFC3339),
	}
}

// SystemStats aggregates uptime, stored data volume, session and client
// counts, and, when a collector is attached, runtime memory numbers.
func (hs *HealthService) SystemStats(ctx context.Context) (SystemStats, error) {
	var totalFiles int
	var totalSize int64

	// Unreadable entries are skipped rather than failing the endpoint.
	filepath.WalkDir(hs.paths.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			totalFiles++
			totalSize += info.Size()
		}
		return nil
	})

	stats := SystemStats{
		UptimeSeconds:  time.Since(hs.startTime).Seconds(),
		TotalFiles:     totalFiles,
		TotalSizeBytes: totalSize,
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
	if hs.webSocketHub != nil {
		stats.WebSocketClients = hs.webSocketHub.ClientCount()
	}
	if hs.store != nil {
		stats.ActiveSessions = hs.store.Stats()["total_sessions"]
	}
	if hs.collector != nil {
		rt := hs.collector.GetCurrentStats(ctx)
		stats.Goroutines = rt.GoRoutines
		stats.MemoryBytes = rt.MemoryUsage
	}

	return stats, nil
}

func (hs *HealthService) sessionHealth() ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "session store not initialized",
		}
	}

	stats := hs.store.Stats()
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d active session(s)", stats["total_sessions"]),
	}
}

func (hs *HealthService) webSocketHealth() ServiceHealth {
	if hs.webSocketHub == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "websocket hub not initialized",
		}
	}

	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d connected client(s)", hs.webSocketHub.ClientCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

func (hs *HealthService) dataHealth() ServiceHealth {
	dataDir := hs.paths.DataDir
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("data directory missing: %s", dataDir),
		}
	}

	// Creating the uploads subdirectory doubles as the writability probe.
	if err := os.MkdirAll(filepath.Join(dataDir, "uploads"), 0755); err != nil {
		hs.logger.Warn("data directory not writable",
			slog.String("dir", dataDir),
			slog.String("error", err.Error()))
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("data directory not writable: %v", err),
		}
	}

	return ServiceHealth{
		Status:  "ready",
		Message: "data directory writable",
	}
}
