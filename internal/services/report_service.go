package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"parcelcli/internal/config"
	"parcelcli/internal/dataprocessing"
	"parcelcli/internal/exporter"
	"parcelcli/internal/files"
	"parcelcli/internal/sessions"
	"parcelcli/pkg/contracts/domain"
)

// WebSocketHub is the broadcast surface the report service needs. Upload
// and selection changes push a refresh event so other pages holding the
// same report re-fetch their view.
type WebSocketHub interface {
	BroadcastReportRefresh(carrier domain.CarrierID, sessionID string)
}

// ReportService coordinates the invoice pipeline for browser sessions:
// upload and parse, derive the category universe, hold the selection, and
// recompute the rendered view on every interaction. Raw tables live on
// the session store; everything a view shows is derived on demand.
type ReportService struct {
	config     *config.Config
	store      *sessions.Store
	loader     *dataprocessing.Loader
	reshaper   *dataprocessing.Reshaper
	aggregator *dataprocessing.Aggregator
	exporter   *exporter.ReportExporter
	files      *files.Manager
	hub        WebSocketHub
	logger     *slog.Logger
}

// ExportResult is a rendered CSV download of the current visible table.
type ExportResult struct {
	FileName string
	Data     []byte
	Rows     int
}

// NewReportService creates a report service using the default logger.
func NewReportService(cfg *config.Config, store *sessions.Store, hub WebSocketHub) (*ReportService, error) {
	return NewReportServiceWithLogger(cfg, store, hub, slog.Default())
}

// NewReportServiceWithLogger creates a report service with a specific logger.
func NewReportServiceWithLogger(cfg *config.Config, store *sessions.Store, hub WebSocketHub, logger *slog.Logger) (*ReportService, error) {
	// Get the centralized paths
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}

	// Ensure we have a logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("ReportService initialized",
		slog.String("uploads_dir", paths.UploadsDir),
		slog.String("exports_dir", paths.ExportsDir),
		slog.Int64("upload_max_bytes", cfg.Upload.MaxSizeBytes),
		slog.Bool("keep_originals", cfg.Upload.KeepOriginals))

	return &ReportService{
		config:     cfg,
		store:      store,
		loader:     dataprocessing.NewLoader(logger),
		reshaper:   dataprocessing.NewReshaper(logger, dataprocessing.DefaultReshaperConfig()),
		aggregator: dataprocessing.NewAggregator(logger),
		exporter:   exporter.NewReportExporter(paths),
		files:      files.NewManager(paths),
		hub:        hub,
		logger:     logger,
	}, nil
}

// Upload parses one carrier invoice, replaces the session's stored report
// for that carrier and resets its selection to empty. The returned result
// carries the freshly derived category universe.
func (rs *ReportService) Upload(ctx context.Context, sessionID string, carrier domain.CarrierID, filename string, data []byte) (*domain.UploadResult, error) {
	if !carrier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCarrier, string(carrier))
	}

	start := time.Now()
	rs.logger.InfoContext(ctx, "Upload: processing invoice",
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID),
		slog.String("filename", filename),
		slog.Int("size_bytes", len(data)))

	table, err := rs.loader.Load(bytes.NewReader(data), filename)
	if err != nil {
		rs.logger.WarnContext(ctx, "Upload: invoice rejected by loader",
			slog.String("carrier", string(carrier)),
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading %s invoice: %w", carrier, err)
	}

	state := &sessions.CarrierState{
		Carrier:    carrier,
		Filename:   filename,
		UploadedAt: start,
		SourceRows: table.RowCount(),
	}

	switch carrier {
	case domain.CarrierFedEx:
		report, err := rs.reshaper.Reshape(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("reshaping FedEx invoice: %w", err)
		}
		state.FedEx = report
		state.Categories = report.Categories
	case domain.CarrierUPS:
		report, err := rs.aggregator.Prepare(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("preparing UPS invoice: %w", err)
		}
		state.UPS = report
		state.Categories = report.Categories
	}

	rs.store.SetCarrierState(sessionID, state)

	if rs.config.Upload.KeepOriginals {
		if archived, err := rs.files.ArchiveUpload(filename, data, start); err != nil {
			// Archiving is best effort; the report is already stored
			rs.logger.WarnContext(ctx, "Upload: failed to archive original",
				slog.String("filename", filename),
				slog.String("error", err.Error()))
		} else {
			rs.logger.DebugContext(ctx, "Upload: original archived",
				slog.String("path", archived))
		}

		if d := rs.config.Upload.RetainFor; d > 0 {
			if _, err := rs.files.PruneUploads(start.Add(-d)); err != nil {
				rs.logger.WarnContext(ctx, "Upload: retention sweep failed",
					slog.String("error", err.Error()))
			}
		}
	}

	rs.notifyRefresh(carrier, sessionID)

	rs.logger.InfoContext(ctx, "Upload: invoice processed",
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID),
		slog.Int("rows", table.RowCount()),
		slog.Int("categories", len(state.Categories)),
		slog.Duration("duration", time.Since(start)))

	return &domain.UploadResult{
		Carrier:    carrier,
		FileName:   filename,
		RowCount:   table.RowCount(),
		Columns:    len(table.Columns),
		Categories: state.Categories,
		UploadedAt: start,
	}, nil
}

// View recomputes the render state for one carrier. A carrier with no
// upload yet returns the empty view state rather than an error.
func (rs *ReportService) View(ctx context.Context, sessionID string, carrier domain.CarrierID) (*domain.ReportView, error) {
	if !carrier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCarrier, string(carrier))
	}

	state, err := rs.store.CarrierState(sessionID, carrier)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, sessions.ErrReportNotFound) {
			return emptyView(carrier), nil
		}
		return nil, err
	}
	rs.store.Touch(sessionID)

	return rs.buildView(ctx, state), nil
}

// SetSelection replaces the carrier's category selection with the given
// list. Categories outside the current universe are silently dropped; an
// empty list is a valid clear.
func (rs *ReportService) SetSelection(ctx context.Context, sessionID string, carrier domain.CarrierID, categories []string) (*domain.ReportView, error) {
	state, err := rs.carrierState(sessionID, carrier)
	if err != nil {
		return nil, err
	}

	selection := dataprocessing.IntersectSelection(state.Categories, categories)
	return rs.applySelection(ctx, sessionID, state, selection)
}

// SelectAll snaps the carrier's selection to the full current universe.
func (rs *ReportService) SelectAll(ctx context.Context, sessionID string, carrier domain.CarrierID) (*domain.ReportView, error) {
	state, err := rs.carrierState(sessionID, carrier)
	if err != nil {
		return nil, err
	}

	selection := append([]string(nil), state.Categories...)
	return rs.applySelection(ctx, sessionID, state, selection)
}

// ResetSelection clears the carrier's selection, returning the view to idle.
func (rs *ReportService) ResetSelection(ctx context.Context, sessionID string, carrier domain.CarrierID) (*domain.ReportView, error) {
	state, err := rs.carrierState(sessionID, carrier)
	if err != nil {
		return nil, err
	}

	return rs.applySelection(ctx, sessionID, state, nil)
}

// Export renders the current visible table as a BOM-prefixed CSV download.
// An idle report or one whose visible table has no rows cannot be exported.
func (rs *ReportService) Export(ctx context.Context, sessionID string, carrier domain.CarrierID) (*ExportResult, error) {
	state, err := rs.carrierState(sessionID, carrier)
	if err != nil {
		return nil, err
	}
	rs.store.Touch(sessionID)

	active := dataprocessing.IntersectSelection(state.Categories, state.Selection)
	if len(active) == 0 {
		return nil, fmt.Errorf("%w: no categories selected for %s", ErrExportUnavailable, carrier)
	}

	table := rs.visibleTable(ctx, state, active)
	if table.RowCount() == 0 {
		return nil, fmt.Errorf("%w: visible %s table has no rows", ErrExportUnavailable, carrier)
	}

	data, err := rs.exporter.RenderCSV(table)
	if err != nil {
		return nil, fmt.Errorf("rendering %s export: %w", carrier, err)
	}

	result := &ExportResult{
		FileName: fmt.Sprintf("%s_charges_%s.csv", carrier, time.Now().Format("20060102")),
		Data:     data,
		Rows:     table.RowCount(),
	}

	// A failed copy never fails the download
	if rs.config.Export.KeepCopies {
		if archived, err := rs.exporter.ExportCarrierTable(carrier, table, time.Now()); err != nil {
			rs.logger.WarnContext(ctx, "Export: failed to keep report copy",
				slog.String("carrier", string(carrier)),
				slog.String("error", err.Error()))
		} else {
			rs.logger.DebugContext(ctx, "Export: report copy kept",
				slog.String("path", archived))
		}

		if d := rs.config.Export.RetainFor; d > 0 {
			if _, err := rs.files.PruneExports(time.Now().Add(-d)); err != nil {
				rs.logger.WarnContext(ctx, "Export: retention sweep failed",
					slog.String("error", err.Error()))
			}
		}
	}

	rs.logger.InfoContext(ctx, "Export: report rendered",
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID),
		slog.String("file_name", result.FileName),
		slog.Int("rows", result.Rows),
		slog.Int("size_bytes", len(result.Data)))

	return result, nil
}

// carrierState validates the carrier and fetches the session's stored
// report, mapping store misses to the service's not-found sentinel.
func (rs *ReportService) carrierState(sessionID string, carrier domain.CarrierID) (*sessions.CarrierState, error) {
	if !carrier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCarrier, string(carrier))
	}

	state, err := rs.store.CarrierState(sessionID, carrier)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, sessions.ErrReportNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, carrier)
		}
		return nil, err
	}
	return state, nil
}

// applySelection stores the new selection, notifies watchers and returns
// the recomputed view.
func (rs *ReportService) applySelection(ctx context.Context, sessionID string, state *sessions.CarrierState, selection []string) (*domain.ReportView, error) {
	if err := rs.store.SetSelection(sessionID, state.Carrier, selection); err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, sessions.ErrReportNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReportNotFound, state.Carrier)
		}
		return nil, err
	}

	rs.logger.InfoContext(ctx, "selection replaced",
		slog.String("carrier", string(state.Carrier)),
		slog.String("session_id", sessionID),
		slog.Int("selected", len(selection)))

	rs.notifyRefresh(state.Carrier, sessionID)

	state.Selection = selection
	return rs.buildView(ctx, state), nil
}

// buildView derives the full render state from a stored report. The
// active selection is the stored one intersected with the universe, so a
// selection written against an older upload can never invent columns.
func (rs *ReportService) buildView(ctx context.Context, state *sessions.CarrierState) *domain.ReportView {
	view := &domain.ReportView{
		Carrier:     state.Carrier,
		State:       domain.ViewStateIdle,
		Categories:  state.Categories,
		Selection:   []string{},
		SourceRows:  state.SourceRows,
		GeneratedAt: time.Now(),
	}

	active := dataprocessing.IntersectSelection(state.Categories, state.Selection)
	if len(active) == 0 {
		return view
	}

	view.State = domain.ViewStateReady
	view.Selection = active
	view.Table = rs.visibleTable(ctx, state, active)
	view.VisibleRows = view.Table.RowCount()

	switch state.Carrier {
	case domain.CarrierFedEx:
		view.Summaries = rs.reshaper.Summarize(ctx, state.FedEx, active)
	case domain.CarrierUPS:
		view.Summaries = rs.aggregator.Summarize(ctx, state.UPS, active)
	}
	view.SummaryText = summaryLines(state.Carrier, view.Summaries)

	return view
}

// visibleTable renders the carrier-specific filtered table for a selection.
func (rs *ReportService) visibleTable(ctx context.Context, state *sessions.CarrierState, active []string) *domain.Table {
	switch state.Carrier {
	case domain.CarrierUPS:
		return rs.aggregator.Pivot(ctx, state.UPS, active)
	default:
		return rs.reshaper.Visible(state.FedEx, active)
	}
}

// notifyRefresh pushes a refresh event when a hub is wired.
func (rs *ReportService) notifyRefresh(carrier domain.CarrierID, sessionID string) {
	if rs.hub == nil {
		return
	}
	rs.hub.BroadcastReportRefresh(carrier, sessionID)
}

// emptyView is the render state for a carrier with no upload yet.
func emptyView(carrier domain.CarrierID) *domain.ReportView {
	return &domain.ReportView{
		Carrier:     carrier,
		State:       domain.ViewStateEmpty,
		Categories:  []string{},
		Selection:   []string{},
		GeneratedAt: time.Now(),
	}
}

// summaryLines renders one display line per category summary.
func summaryLines(carrier domain.CarrierID, summaries []domain.CategorySummary) []string {
	if len(summaries) == 0 {
		return nil
	}
	lines := make([]string, 0, len(summaries))
	for _, s := range summaries {
		lines = append(lines, s.Line(carrier))
	}
	return lines
}
