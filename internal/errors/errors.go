package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// The error codes the report API emits. Tests and the frontend key off
// these, so additions are fine but renames are breaking.
var (
	ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")

	// The carrier in the URL has no uploaded invoice yet
	ErrReportNotFound = New(http.StatusNotFound, "REPORT_NOT_FOUND", "No invoice uploaded for this carrier")

	// Export was asked for while the selection hides every row
	ErrExportUnavailable = New(http.StatusConflict, "EXPORT_UNAVAILABLE", "No visible table to export")

	ErrPayloadTooLarge   = New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Uploaded file exceeds the size limit")
	ErrUnsupportedFormat = New(http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", "Unsupported invoice file format")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	ErrInternalServer     = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrWebSocketUpgrade   = New(http.StatusInternalServerError, "WEBSOCKET_UPGRADE_FAILED", "WebSocket upgrade failed")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
)

// APIError is a coded error a handler can hand to the ErrorHandler. The
// ErrorCode is stable across releases so the frontend can switch on it.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// New builds an APIError with no details payload.
func New(statusCode int, errorCode, message string) *APIError {
	return NewWithDetails(statusCode, errorCode, message, nil)
}

// NewWithDetails builds an APIError carrying extra payload.
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// InvalidRequestWithError wraps a decode failure as an INVALID_REQUEST
// response with the parser's message in the details.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// InvalidCarrierError rejects a carrier slug that is neither fedex nor ups.
func InvalidCarrierError(carrier string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_CARRIER",
		fmt.Sprintf("Unknown carrier %q (expected fedex or ups)", carrier), carrier)
}

// ValidationError names the offending field in a validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every bad field from one request.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ErrValidation flags a single bad field.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed",
		ValidationError{Field: field, Message: message})
}

// NewValidationError builds a field-less validation failure.
func NewValidationError(message string) *APIError {
	return New(http.StatusBadRequest, "VALIDATION_FAILED", message)
}

// NewValidationErrors bundles multiple field failures into one response.
// The message names every failure so the log line is enough to see what
// was wrong with the request.
func NewValidationErrors(errors []ValidationError) *APIError {
	msgs := make([]string, len(errors))
	for i, e := range errors {
		msgs[i] = e.Message
	}
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED",
		strings.Join(msgs, "; "), ValidationErrors{Errors: errors})
}

// ErrorResponse is the JSON envelope for endpoints that predate the
// problem+json handler, kept for the client log sink.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse wraps an APIError in the envelope.
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err}
}

// Render implements render.Renderer.
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}

// WriteError writes the envelope straight to the wire, for handlers
// that bypass chi/render.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(NewErrorResponse(err))
}
