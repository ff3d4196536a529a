package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "parcelcli/internal/errors"
	"parcelcli/pkg/contracts/domain"
)

// One validator instance serves the whole package. Custom tags are
// registered here because RegisterValidation is not safe to call once
// requests are flowing.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterValidation("carrier", isValidCarrier)
	v.RegisterValidation("filename", isValidFilename)

	// Report field names as their JSON keys, not Go identifiers
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Validate checks v against its validate struct tags and folds every
// failing field into a single VALIDATION_FAILED response.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.NewValidationError(err.Error())
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatFieldError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

// ValidationMiddleware screens request bodies before they reach a
// handler. It rejects oversized and syntactically broken payloads;
// field-level checks stay with the handlers via Validate.
type ValidationMiddleware struct {
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	maxBodySize  int64
}

// NewValidationMiddleware builds the body screen for the API group.
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ValidationMiddleware {
	return &ValidationMiddleware{
		logger:       logger.With(slog.String("component", "validation_middleware")),
		errorHandler: errorHandler,
		maxBodySize:  10 * 1024 * 1024,
	}
}

// screens reports whether the request body should be inspected at all.
// Bodyless reads skip, and so do multipart uploads, whose reader
// enforces its own limits.
func (m *ValidationMiddleware) screens(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// ValidateRequest vets the body of mutating JSON requests before any
// handler decodes it.
func (m *ValidationMiddleware) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.screens(r) {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > m.maxBodySize {
			m.errorHandler.HandleError(w, r, apierrors.NewWithDetails(
				http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				"Request body exceeds maximum allowed size",
				map[string]interface{}{"max_size": m.maxBodySize, "size": r.ContentLength}))
			return
		}

		if r.Body == nil || r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, m.maxBodySize))
		if err != nil {
			m.logger.ErrorContext(r.Context(), "failed to read request body",
				slog.String("error", err.Error()),
				slog.String("request_id", GetReqID(r.Context())))
			m.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}

		// Hand the handler an untouched body
		r.Body = io.NopCloser(bytes.NewReader(body))

		if len(body) > 0 && !json.Valid(body) {
			m.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusBadRequest, "INVALID_JSON", "Request body contains invalid JSON"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ContentTypeValidator pins a route to the content types it accepts.
// Bodyless methods are waved through.
func ContentTypeValidator(accepted ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodDelete:
				next.ServeHTTP(w, r)
				return
			}

			ct := r.Header.Get("Content-Type")
			if ct == "" {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, apierrors.New(
					http.StatusBadRequest, "MISSING_CONTENT_TYPE", "Content-Type header is required"))
				return
			}

			for _, want := range accepted {
				if strings.HasPrefix(ct, want) {
					next.ServeHTTP(w, r)
					return
				}
			}

			render.Status(r, http.StatusUnsupportedMediaType)
			render.JSON(w, r, apierrors.NewWithDetails(
				http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported content type",
				map[string]interface{}{"content_type": ct, "allowed": accepted}))
		})
	}
}

// formatFieldError words a tag failure for humans. Only the tags the
// request contracts actually use get a tailored message.
func formatFieldError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(err.Param(), " ", ", "))
	case "carrier":
		return field + " must be a supported carrier (fedex or ups)"
	case "filename":
		return field + " must be a valid filename"
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isValidCarrier accepts the carrier slugs the report service knows.
func isValidCarrier(fl validator.FieldLevel) bool {
	carrier := strings.ToLower(fl.Field().String())
	return domain.CarrierID(carrier).Valid()
}

// isValidFilename rejects names that could escape the upload directory.
func isValidFilename(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > 255 {
		return false
	}
	return !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}
