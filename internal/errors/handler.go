package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/go-chi/render"

	"parcelcli/internal/infrastructure"
)

// Problem type URIs, RFC 7807 style. Relative because the tool serves
// from localhost and the URIs are identifiers, not links. The first
// group is transport-generic, the second belongs to the invoice report
// domain.
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypePayloadTooLarge = "/errors/payload-too-large"

	TypeInvalidCarrier    = "/errors/carrier/unknown"
	TypeReportNotFound    = "/errors/report/not-found"
	TypeMissingColumns    = "/errors/invoice/missing-columns"
	TypeUnsupportedFormat = "/errors/invoice/unsupported-format"
	TypeInvoiceUnreadable = "/errors/invoice/unreadable"
	TypeExportUnavailable = "/errors/report/export-unavailable"
	TypeWebSocketUpgrade  = "/errors/websocket/upgrade-failed"
)

// Bodies above this size are not buffered for error logging.
const maxLoggedBody = 1 << 20

// ErrorHandler turns pipeline errors into problem+json responses and
// logs them. includeStack widens responses with stack traces and panic
// values, which only the development config should turn on.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler builds the handler all API routes share.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError logs err and writes its problem+json rendering. A nil err
// writes nothing, so handlers can call it unconditionally.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.ErrorContext(ctx, "request failed",
		slog.String("error", err.Error()),
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr))

	problem := h.ErrorToProblem(err, r).WithExtension("trace_id", traceID)
	if h.includeStack {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem maps an error to its problem document. Typed errors
// are checked first; anything unrecognized falls through to a generic
// 500 so no internal message leaks verbatim.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"The request took too long to process and was cancelled", r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	// Missing invoice columns carry their column lists into the response
	var missing *MissingColumnsError
	if errors.As(err, &missing) {
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeMissingColumns,
			"Missing Required Columns", missing.Error(), r.URL.Path).
			WithExtension("missing_columns", missing.Missing).
			WithExtension("found_columns", missing.Found)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return h.appErrorToProblem(appErr, r)
	}

	// Untyped errors from deeper layers, matched on message
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return NewProblemDetails(http.StatusNotFound, TypeNotFound,
			"Resource Not Found", msg, r.URL.Path)
	case strings.Contains(msg, "rate limit"):
		return NewProblemDetails(http.StatusTooManyRequests, TypeRateLimit,
			"Rate Limit Exceeded", "Too many requests. Please try again later.",
			r.URL.Path).WithExtension("retry_after", 60)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request", r.URL.Path)
}

// problemTypeForCode picks the problem type for each APIError code.
// Codes not listed here render as TypeInternal.
var problemTypeForCode = map[string]string{
	"VALIDATION_FAILED":        TypeValidation,
	"INVALID_REQUEST":          TypeValidation,
	"INVALID_CARRIER":          TypeInvalidCarrier,
	"REPORT_NOT_FOUND":         TypeReportNotFound,
	"UNSUPPORTED_FORMAT":       TypeUnsupportedFormat,
	"PAYLOAD_TOO_LARGE":        TypePayloadTooLarge,
	"EXPORT_UNAVAILABLE":       TypeExportUnavailable,
	"RATE_LIMIT_EXCEEDED":      TypeRateLimit,
	"SERVICE_UNAVAILABLE":      TypeServiceDown,
	"WEBSOCKET_UPGRADE_FAILED": TypeWebSocketUpgrade,
}

// apiErrorToProblem keeps the APIError status and code and picks the
// problem type from the code.
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType, ok := problemTypeForCode[apiErr.ErrorCode]
	if !ok {
		problemType = TypeInternal
	}

	problem := NewProblemDetails(apiErr.StatusCode, problemType,
		http.StatusText(apiErr.StatusCode), apiErr.Message, r.URL.Path).
		WithExtension("error_code", apiErr.ErrorCode)
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// problemForAppError maps the AppError taxonomy onto HTTP. Unlisted
// classes, storage failures included, stay internal errors.
var problemForAppError = map[ErrorType]struct {
	status int
	kind   string
	title  string
}{
	ErrTypeParsing:    {http.StatusBadRequest, TypeInvoiceUnreadable, "Unreadable Invoice"},
	ErrTypeFormat:     {http.StatusUnsupportedMediaType, TypeUnsupportedFormat, "Unsupported File Format"},
	ErrTypeValidation: {http.StatusBadRequest, TypeValidation, "Validation Failed"},
	ErrTypeNotFound:   {http.StatusNotFound, TypeNotFound, "Resource Not Found"},
	ErrTypeSession:    {http.StatusNotFound, TypeReportNotFound, "Report Not Found"},
}

func (h *ErrorHandler) appErrorToProblem(appErr *AppError, r *http.Request) *ProblemDetails {
	mapped, ok := problemForAppError[appErr.Type]
	if !ok {
		mapped.status = http.StatusInternalServerError
		mapped.kind = TypeInternal
		mapped.title = "Internal Server Error"
	}

	problem := NewProblemDetails(mapped.status, mapped.kind, mapped.title,
		appErr.Message, r.URL.Path).
		WithExtension("error_type", string(appErr.Type))
	if len(appErr.Context) > 0 {
		problem.WithExtension("context", appErr.Context)
	}
	return problem
}

// HandlePanic logs a recovered panic with its stack and answers 500.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.ErrorContext(ctx, "panic recovered",
		slog.Any("panic", recovered),
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())))

	problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error", "An unexpected error occurred", r.URL.Path).
		WithExtension("trace_id", traceID)
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound is the router's fallback for unknown paths.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound,
		"Not Found", "The requested resource was not found", r.URL.Path).
		WithExtension("trace_id", infrastructure.GetTraceID(r.Context())))
}

// MethodNotAllowed is the router's fallback for known paths with the
// wrong verb.
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeInternal,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path).
		WithExtension("trace_id", infrastructure.GetTraceID(r.Context())))
}

// JSON writes v with the given status, for handlers that respond with
// plain documents instead of problems.
func (h *ErrorHandler) JSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func getStackTrace() string {
	buf := make([]byte, 8<<10)
	return string(buf[:runtime.Stack(buf, false)])
}

// Middleware watches API responses. Panics become problem+json, and any
// error status gets a warn log that includes the redacted request body,
// so a bad upload or selection can be reproduced from the log alone.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &errorResponseWriter{
			ResponseWriter: w,
			handler:        h,
			request:        r,
			requestBody:    bufferRequestBody(r),
		}

		defer func() {
			if rec := recover(); rec != nil {
				h.HandlePanic(ww, r, rec)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// bufferRequestBody reads small bodies so an error response can log
// them, and rewinds the body for the handler.
func bufferRequestBody(r *http.Request) []byte {
	if r.Body == nil || r.ContentLength <= 0 || r.ContentLength > maxLoggedBody {
		return nil
	}
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// errorResponseWriter wraps http.ResponseWriter to spot error statuses.
type errorResponseWriter struct {
	http.ResponseWriter
	handler     *ErrorHandler
	request     *http.Request
	requestBody []byte
	written     bool
	status      int
}

func (w *errorResponseWriter) WriteHeader(status int) {
	if w.written {
		return
	}
	w.written = true
	w.status = status

	if status >= 400 {
		w.logErrorResponse(status)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *errorResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *errorResponseWriter) logErrorResponse(status int) {
	attrs := []slog.Attr{
		slog.Int("status", status),
		slog.String("path", w.request.URL.Path),
		slog.String("method", w.request.Method),
	}
	if len(w.requestBody) > 0 {
		attrs = append(attrs, slog.String("request_body", redactBody(w.requestBody)))
	}
	w.handler.logger.LogAttrs(w.request.Context(), slog.LevelWarn, "error response", attrs...)
}

// redactedFields are body members that never belong in a log line.
var redactedFields = []string{
	"password", "token", "secret", "api_key", "apiKey",
	"session_id", "sessionId", "authorization", "cookie",
}

// redactBody hides credential-shaped fields in a JSON body and caps the
// logged length. Non-JSON bodies pass through untouched.
func redactBody(body []byte) string {
	var doc map[string]interface{}
	if json.Unmarshal(body, &doc) == nil {
		for _, field := range redactedFields {
			if _, ok := doc[field]; ok {
				doc[field] = "[REDACTED]"
			}
		}
		if clean, err := json.Marshal(doc); err == nil {
			body = clean
		}
	}

	if len(body) > 500 {
		return string(body[:500]) + "..."
	}
	return string(body)
}
