package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Upload-specific errors (using errors package for sentinel errors)
var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedUpload = errors.New("unsupported file format")
	ErrEmptyUpload       = errors.New("empty upload")
	ErrMissingFilePart   = errors.New("missing file part")
	ErrUnreadableFile    = errors.New("unreadable file")
)

// UploadRejectionDetails provides additional context for upload errors
type UploadRejectionDetails struct {
	Filename          string   `json:"filename,omitempty"`
	SizeBytes         int64    `json:"size_bytes,omitempty"`
	MaxSizeBytes      int64    `json:"max_size_bytes,omitempty"`
	Extension         string   `json:"extension,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}

// MapUploadError maps upload failures to HTTP problem details
func MapUploadError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/reports/upload#trace-%s", traceID)

	var missing *MissingColumnsError
	if errors.As(err, &missing) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			"/errors/invoice/missing-columns",
			"Missing Required Columns",
			"The uploaded invoice lacks columns the report cannot be built without.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "MISSING_COLUMNS").
			WithExtension("missing_columns", missing.Missing).
			WithExtension("found_columns", missing.Found)
	}

	switch {
	case errors.Is(err, ErrFileTooLarge):
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			"/errors/invoice/too-large",
			"File Too Large",
			"The uploaded invoice exceeds the maximum allowed size.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "PAYLOAD_TOO_LARGE")

	case errors.Is(err, ErrUnsupportedUpload):
		return NewProblemDetails(
			http.StatusUnsupportedMediaType,
			"/errors/invoice/unsupported-format",
			"Unsupported File Format",
			"Only .csv and .xlsx invoice files are accepted.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UNSUPPORTED_FORMAT")

	case errors.Is(err, ErrEmptyUpload):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/invoice/empty",
			"Empty Upload",
			"The uploaded file contains no data.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "EMPTY_UPLOAD")

	case errors.Is(err, ErrMissingFilePart):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/invoice/missing-file-part",
			"Missing File Part",
			"The multipart request must carry the invoice in a part named \"file\".",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "MISSING_FILE_PART")

	case errors.Is(err, ErrUnreadableFile):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/invoice/unreadable",
			"Unreadable Invoice",
			"The uploaded file could not be parsed as a carrier invoice.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "UNREADABLE_FILE")

	default:
		var appErr *AppError
		if errors.As(err, &appErr) && (appErr.Type == ErrTypeParsing || appErr.Type == ErrTypeFormat) {
			return NewProblemDetails(
				http.StatusBadRequest,
				"/errors/invoice/unreadable",
				"Unreadable Invoice",
				"The uploaded file could not be parsed as a carrier invoice.",
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "UNREADABLE_FILE")
		}

		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing the upload.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}

// WithRejectionDetails attaches upload rejection context to a problem
func WithRejectionDetails(pd *ProblemDetails, details *UploadRejectionDetails) *ProblemDetails {
	if details == nil {
		return pd
	}

	if details.Filename != "" {
		pd.WithExtension("filename", details.Filename)
	}
	if details.SizeBytes > 0 {
		pd.WithExtension("size_bytes", details.SizeBytes)
	}
	if details.MaxSizeBytes > 0 {
		pd.WithExtension("max_size_bytes", details.MaxSizeBytes)
	}
	if details.Extension != "" {
		pd.WithExtension("extension", details.Extension)
	}
	if len(details.AllowedExtensions) > 0 {
		pd.WithExtension("allowed_extensions", details.AllowedExtensions)
	}

	return pd
}
