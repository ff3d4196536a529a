package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"parcelcli/internal/config"
	apierrors "parcelcli/internal/errors"
	"parcelcli/internal/infrastructure"
	"parcelcli/internal/middleware"
	"parcelcli/internal/services"
	"parcelcli/internal/validation"
	v1 "parcelcli/pkg/contracts/api/v1"
	"parcelcli/pkg/contracts/domain"
)

// multipartOverhead leaves room for the multipart envelope around the file
// payload when capping the upload request body.
const multipartOverhead = 10 << 10

// ReportHandler handles carrier invoice report HTTP requests
type ReportHandler struct {
	service      ReportServiceInterface
	config       *config.Config
	validator    *validation.FileValidator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	metrics      *infrastructure.BusinessMetrics
}

// NewReportHandler creates a new report handler
func NewReportHandler(service ReportServiceInterface, cfg *config.Config, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ReportHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ReportHandler{
		service:      service,
		config:       cfg,
		validator:    validation.NewFileValidator(logger),
		logger:       logger.With(slog.String("handler", "reports")),
		errorHandler: errorHandler,
	}
}

// SetMetrics sets the business metrics for the handler
func (h *ReportHandler) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	h.metrics = metrics
}

// Routes returns the routes for report operations
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/{carrier}", func(r chi.Router) {
		r.Use(h.CarrierCtx)
		r.Get("/", h.View)
		r.With(middleware.ContentTypeValidator("multipart/form-data")).Post("/upload", h.Upload)
		r.With(middleware.ContentTypeValidator("application/json")).Put("/selection", h.SetSelection)
		r.Post("/selection/all", h.SelectAll)
		r.Delete("/selection", h.ResetSelection)
		r.Get("/export", h.Export)
	})

	return r
}

// CarrierCtx validates the carrier URL parameter before the handlers run
func (h *ReportHandler) CarrierCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		carrier := strings.ToLower(chi.URLParam(r, "carrier"))
		if carrier == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("carrier", "carrier is required"))
			return
		}
		if !domain.CarrierID(carrier).Valid() {
			h.errorHandler.HandleError(w, r, apierrors.InvalidCarrierError(carrier))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Upload handles POST /{carrier}/upload with a multipart invoice file
func (h *ReportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	carrier := requestCarrier(r)
	sessionID := middleware.GetSessionID(ctx)

	h.logger.InfoContext(ctx, "invoice upload request",
		slog.String("request_id", reqID),
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID))

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, h.config.Upload.MaxSizeBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			render.Render(w, r, apierrors.MapUploadError(apierrors.ErrFileTooLarge, reqID))
			return
		}
		h.logger.WarnContext(ctx, "upload missing file part",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.MapUploadError(apierrors.ErrMissingFilePart, reqID))
		return
	}
	defer file.Close()

	if err := h.validator.ValidateUpload(header.Filename, header.Size, h.config); err != nil {
		h.logger.WarnContext(ctx, "upload rejected",
			slog.String("request_id", reqID),
			slog.String("filename", header.Filename),
			slog.Int64("size", header.Size),
			slog.String("error", err.Error()))
		render.Render(w, r, h.uploadRejection(err, reqID, header))
		return
	}

	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"invoice.carrier":  string(carrier),
		"invoice.filename": header.Filename,
		"invoice.bytes":    header.Size,
	})

	data, err := io.ReadAll(file)
	if err != nil {
		render.Render(w, r, apierrors.MapUploadError(
			fmt.Errorf("%w: %v", apierrors.ErrUnreadableFile, err), reqID))
		return
	}

	result, err := h.service.Upload(ctx, sessionID, carrier, header.Filename, data)
	if h.metrics != nil {
		rows := 0
		if result != nil {
			rows = result.RowCount
		}
		infrastructure.RecordUploadMetrics(ctx, h.metrics, string(carrier), rows, time.Since(start), err)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "invoice processing failed",
			slog.String("request_id", reqID),
			slog.String("carrier", string(carrier)),
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.MapUploadError(err, reqID))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   result,
	})
}

// View handles GET /{carrier} and returns the session's current report view
func (h *ReportHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	carrier := requestCarrier(r)
	sessionID := middleware.GetSessionID(ctx)

	h.logger.InfoContext(ctx, "report view request",
		slog.String("request_id", reqID),
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID))

	view, err := h.service.View(ctx, sessionID, carrier)
	if err != nil {
		if errors.Is(err, services.ErrUnknownCarrier) {
			h.errorHandler.HandleError(w, r, apierrors.InvalidCarrierError(string(carrier)))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   view,
	})
}

// SetSelection handles PUT /{carrier}/selection, replacing the selected categories
func (h *ReportHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	carrier := requestCarrier(r)
	sessionID := middleware.GetSessionID(ctx)

	var req v1.SelectionUpdateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := middleware.Validate(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "selection update request",
		slog.String("request_id", reqID),
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID),
		slog.Int("categories", len(req.Categories)))

	view, err := h.service.SetSelection(ctx, sessionID, carrier, req.Categories)
	if err != nil {
		h.handleReportError(w, r, carrier, err)
		return
	}

	if h.metrics != nil {
		infrastructure.RecordSelectionUpdate(ctx, h.metrics, string(carrier), len(view.Selection))
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   view,
	})
}

// SelectAll handles POST /{carrier}/selection/all, selecting every category
func (h *ReportHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	carrier := requestCarrier(r)
	sessionID := middleware.GetSessionID(ctx)

	h.logger.InfoContext(ctx, "select all categories request",
		slog.String("request_id", reqID),
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID))

	view, err := h.service.SelectAll(ctx, sessionID, carrier)
	if err != nil {
		h.handleReportError(w, r, carrier, err)
		return
	}

	if h.metrics != nil {
		infrastructure.RecordSelectionUpdate(ctx, h.metrics, string(carrier), len(view.Selection))
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   view,
	})
}

// ResetSelection handles DELETE /{carrier}/selection, clearing the selection
func (h *ReportHandler) ResetSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	carrier := requestCarrier(r)
	sessionID := middleware.GetSessionID(ctx)

	h.logger.InfoContext(ctx, "reset selection request",
		slog.String("request_id", reqID),
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID))

	view, err := h.service.ResetSelection(ctx, sessionID, carrier)
	if err != nil {
		h.handleReportError(w, r, carrier, err)
		return
	}

	if h.metrics != nil {
		infrastructure.RecordSelectionUpdate(ctx, h.metrics, string(carrier), 0)
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   view,
	})
}

// Export handles GET /{carrier}/export and streams the visible table as CSV
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	carrier := requestCarrier(r)
	sessionID := middleware.GetSessionID(ctx)

	h.logger.InfoContext(ctx, "report export request",
		slog.String("request_id", reqID),
		slog.String("carrier", string(carrier)),
		slog.String("session_id", sessionID))

	start := time.Now()
	result, err := h.service.Export(ctx, sessionID, carrier)
	if h.metrics != nil {
		infrastructure.RecordExportMetrics(ctx, h.metrics, string(carrier), time.Since(start), err == nil)
	}
	if err != nil {
		h.handleReportError(w, r, carrier, err)
		return
	}

	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"export.carrier":  string(carrier),
		"export.filename": result.FileName,
		"export.bytes":    len(result.Data),
	})

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		h.logger.ErrorContext(ctx, "failed to stream export",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
	}
}

// handleReportError maps service errors to API error responses
func (h *ReportHandler) handleReportError(w http.ResponseWriter, r *http.Request, carrier domain.CarrierID, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownCarrier):
		h.errorHandler.HandleError(w, r, apierrors.InvalidCarrierError(string(carrier)))
	case errors.Is(err, services.ErrReportNotFound):
		h.errorHandler.HandleError(w, r, apierrors.ErrReportNotFound)
	case errors.Is(err, services.ErrExportUnavailable):
		h.errorHandler.HandleError(w, r, apierrors.ErrExportUnavailable)
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}

// uploadRejection builds the problem response for a rejected upload,
// attaching the filename and limits that caused the rejection.
func (h *ReportHandler) uploadRejection(err error, traceID string, header *multipart.FileHeader) render.Renderer {
	rendered := apierrors.MapUploadError(err, traceID)
	pd, ok := rendered.(*apierrors.ProblemDetails)
	if !ok {
		return rendered
	}
	return apierrors.WithRejectionDetails(pd, &apierrors.UploadRejectionDetails{
		Filename:          header.Filename,
		SizeBytes:         header.Size,
		MaxSizeBytes:      h.config.Upload.MaxSizeBytes,
		Extension:         strings.ToLower(filepath.Ext(header.Filename)),
		AllowedExtensions: h.config.Upload.AllowedExtensions,
	})
}

// requestCarrier reads the already validated carrier URL parameter
func requestCarrier(r *http.Request) domain.CarrierID {
	return domain.CarrierID(strings.ToLower(chi.URLParam(r, "carrier")))
}
