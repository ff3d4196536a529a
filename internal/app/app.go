package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"parcelcli/internal/config"
	"parcelcli/internal/infrastructure"
	"parcelcli/internal/services"
	"parcelcli/internal/sessions"
	"parcelcli/internal/updater"
	ws "parcelcli/internal/websocket"

	"github.com/go-chi/chi/v5"
)

const (
	VERSION    = "v1.2.0"
	REPO_URL   = "https://github.com/parcelpulse/parcelcli"
	AppName    = "Parcel Pulse - Carrier Invoice Charge Explorer"
	Executable = "ParcelPulse.exe"
)

var (
	// BuildTime is stamped by the release build; the default covers a
	// plain go build during development.
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID identifies this binary in the version endpoint
	BuildID = generateBuildID()
)

// generateBuildID derives a short identifier from the version and the
// build date, stable across rebuilds on the same day.
func generateBuildID() string {
	sum := sha256.Sum256([]byte(VERSION + "@" + time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", sum[:6])
}

// Application owns every long-lived component of one Parcel Pulse
// process: configuration, session store, hub, services, router and the
// HTTP server itself.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	WebSocketHub  *ws.Hub
	SessionStore  *sessions.Store
	ReportService *services.ReportService
	HealthService *services.HealthService
	UpdateChecker *updater.AutoUpdateChecker
	Logger        *slog.Logger
	Services      *ServiceContainer
	OTelProviders *infrastructure.OTelProviders
	FrontendFS    fs.FS

	metrics         *infrastructure.BusinessMetrics
	systemCollector *infrastructure.SystemMetricsCollector
}

// ServiceContainer groups the services handlers depend on
type ServiceContainer struct {
	Report    *services.ReportService
	Health    *services.HealthService
	Sessions  *sessions.Store
	WebSocket *ws.Hub
}

// NewApplication loads configuration and wires every component
// together. frontendFS carries the embedded UI; nil disables the UI
// routes and leaves only the API surface.
func NewApplication(frontendFS fs.FS) (*Application, error) {
	// Load also resolves and creates the data, uploads, exports and
	// logs directories next to the executable.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Single infrastructure logger shared by every component
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Initializing application",
		slog.String("app", AppName),
		slog.String("version", VERSION))

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		FrontendFS:    frontendFS,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the hub, store and services in dependency
// order and collects them into the container.
func (a *Application) initializeServices() error {
	// Business metrics instruments are shared by the hub, the HTTP
	// middleware and the report handler.
	businessMetrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.metrics = businessMetrics

	hub := ws.NewInstrumentedHub(a.Logger, businessMetrics)
	hub.Start()
	a.WebSocketHub = hub

	store := sessions.NewStore(a.Logger, a.Config.Session.TTL)
	a.SessionStore = store

	reportService, err := services.NewReportServiceWithLogger(a.Config, store, hub, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize report service: %w", err)
	}
	a.ReportService = reportService

	// The health service probes the resolved data directory rather than
	// the relative path from the config file.
	resolvedPaths := a.Config.Paths
	resolvedPaths.DataDir = a.Config.GetDataDir()

	healthService := services.NewHealthServiceWithBuildInfo(
		VERSION, REPO_URL, BuildTime, BuildID,
		resolvedPaths, store, hub, a.Logger,
	)
	a.HealthService = healthService

	// Runtime gauges feed both the Prometheus scrape and the stats route.
	collector, err := infrastructure.NewSystemMetricsCollector(a.OTelProviders.Meter, 30*time.Second)
	if err != nil {
		a.Logger.Warn("System metrics collection disabled", slog.String("error", err.Error()))
	} else {
		a.systemCollector = collector
		healthService.SetSystemCollector(collector)
	}

	// Daily release check. Updates are only announced in the log, never
	// installed without the operator asking for it.
	upd, err := updater.NewUpdaterWithLogger(VERSION, REPO_URL, a.Logger)
	if err != nil {
		a.Logger.Warn("Update checking disabled", slog.String("error", err.Error()))
	} else {
		a.UpdateChecker = updater.NewAutoUpdateChecker(upd, 24*time.Hour, func(info *updater.UpdateInfo) bool {
			a.Logger.Info("Update available",
				slog.String("current", info.CurrentVersion),
				slog.String("latest", info.LatestVersion))
			return false
		})
	}

	a.Services = &ServiceContainer{
		Report:    reportService,
		Health:    healthService,
		Sessions:  store,
		WebSocket: hub,
	}

	return nil
}

// createServer builds the http.Server around the router. Timeouts come
// from config so operators can stretch them for slow disks.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start launches the listener and the background loops, then returns.
// cancel is invoked if the listener dies so Run can unwind instead of
// hanging on a dead server.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	paths, _ := config.GetPaths()
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("version", VERSION),
		slog.String("executable", Executable),
		slog.Int("port", a.Config.Server.Port),
		slog.String("log_level", a.Config.Logging.Level),
		slog.String("data_dir", paths.DataDir),
		slog.String("uploads_dir", paths.UploadsDir),
		slog.String("exports_dir", paths.ExportsDir),
		slog.String("logs_dir", paths.LogsDir))

	// Reap expired sessions for as long as the server runs. The hub's
	// goroutines were already started during service initialization.
	go a.SessionStore.StartCleanup(ctx, a.Config.Session.CleanupInterval)

	if a.systemCollector != nil {
		go a.systemCollector.Start(ctx)
	}
	if a.UpdateChecker != nil {
		a.UpdateChecker.Start()
	}

	go a.serve(ctx, cancel)

	if err := a.checkRuntimePaths(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	go a.openBrowserWhenReady(ctx)

	return nil
}

// serve runs the listener until shutdown. Any other listener failure
// cancels the run context so Run unwinds instead of hanging on a dead
// server.
func (a *Application) serve(ctx context.Context, cancel context.CancelFunc) {
	err := a.Server.ListenAndServe()
	if err == nil || err == http.ErrServerClosed {
		return
	}
	a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
	cancel()
}

// Stop drains in-flight requests, stops the background loops and
// flushes telemetry. The log file closes last so the shutdown lines
// above still reach it.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.WebSocketHub.Stop()
	if a.systemCollector != nil {
		a.systemCollector.Stop()
	}
	if a.UpdateChecker != nil {
		a.UpdateChecker.Stop()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "OpenTelemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Shutdown complete")

	return infrastructure.CloseLogFile()
}

// Run starts the application and blocks until SIGINT, SIGTERM or a
// fatal server error, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-quit:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server stopped")
	}

	return a.Stop(context.Background())
}

// checkRuntimePaths verifies the directories the server writes to are
// actually writable. A failed probe is a warning, not a fatal error;
// the parts of the app that do not touch that directory keep working.
func (a *Application) checkRuntimePaths(ctx context.Context) error {
	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	checks := []struct {
		name string
		dir  string
	}{
		{"data", paths.DataDir},
		{"uploads", paths.UploadsDir},
		{"exports", paths.ExportsDir},
		{"logs", paths.LogsDir},
	}

	var warnings []string
	for _, c := range checks {
		probe := filepath.Join(c.dir, ".write_test")
		if err := os.WriteFile(probe, []byte("probe"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", c.name, c.dir))
			continue
		}
		os.Remove(probe)
	}

	// Without an embedded frontend the UI is served from the web directory
	if a.FrontendFS == nil && !config.FileExists(paths.WebDir) {
		warnings = append(warnings, fmt.Sprintf("web directory not found: %s", paths.WebDir))
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup checks: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup checks passed")
	return nil
}
