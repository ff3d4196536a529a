package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelcli/internal/shared/testutil"
)

func TestNewErrorHandler(t *testing.T) {
	tests := []struct {
		name         string
		includeStack bool
	}{
		{
			name:         "create handler with stack traces",
			includeStack: true,
		},
		{
			name:         "create handler without stack traces",
			includeStack: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)

			handler := NewErrorHandler(logger, tt.includeStack)

			assert.NotNil(t, handler)
			assert.Equal(t, tt.includeStack, handler.includeStack)
			assert.NotNil(t, handler.logger)
		})
	}
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantTitle  string
	}{
		{
			name:       "handle context deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
			wantTitle:  "Request Timeout",
		},
		{
			name:       "handle context canceled",
			err:        context.Canceled,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
			wantTitle:  "Request Timeout",
		},
		{
			name:       "handle APIError",
			err:        ErrInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantTitle:  "Bad Request",
		},
		{
			name:       "handle report not found APIError",
			err:        ErrReportNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   TypeReportNotFound,
			wantTitle:  "Not Found",
		},
		{
			name: "handle missing columns error",
			err: &MissingColumnsError{
				Missing: []string{"DTrans Amount"},
				Found:   []string{"Charge Description"},
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeMissingColumns,
			wantTitle:  "Missing Required Columns",
		},
		{
			name:       "handle parsing app error",
			err:        NewParsingError("bad invoice", fmt.Errorf("unexpected EOF")),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeInvoiceUnreadable,
			wantTitle:  "Unreadable Invoice",
		},
		{
			name:       "handle format app error",
			err:        NewFormatError("unsupported extension .pdf", nil),
			wantStatus: http.StatusUnsupportedMediaType,
			wantType:   TypeUnsupportedFormat,
			wantTitle:  "Unsupported File Format",
		},
		{
			name:       "handle not found string error",
			err:        fmt.Errorf("resource not found"),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
			wantTitle:  "Resource Not Found",
		},
		{
			name:       "handle rate limit string error",
			err:        fmt.Errorf("rate limit exceeded"),
			wantStatus: http.StatusTooManyRequests,
			wantType:   TypeRateLimit,
			wantTitle:  "Rate Limit Exceeded",
		},
		{
			name:       "handle generic error",
			err:        fmt.Errorf("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantTitle:  "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)

			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/test", nil)

			handler.HandleError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			problem := decodeProblem(t, w)
			assert.Equal(t, tt.wantType, problem["type"])
			assert.Equal(t, tt.wantTitle, problem["title"])
			assert.Equal(t, float64(tt.wantStatus), problem["status"])
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		logger, captured := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/test", nil)

		handler.HandleError(w, r, nil)

		assert.Equal(t, 0, w.Body.Len())
		assert.Equal(t, 0, captured.Count())
	})

	t.Run("logs the failure", func(t *testing.T) {
		logger, captured := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/reports/fedex/upload", nil)

		handler.HandleError(w, r, fmt.Errorf("boom"))

		testutil.AssertLogContains(t, captured, slog.LevelError, "request failed")
	})
}

func TestErrorToProblem_MissingColumnsExtensions(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	r := httptest.NewRequest("POST", "/api/reports/ups/upload", nil)
	err := fmt.Errorf("aggregate: %w", &MissingColumnsError{
		Missing: []string{"Lead Shipment Number", "DTrans Amount"},
		Found:   []string{"Charge Description"},
	})

	problem := handler.ErrorToProblem(err, r)

	assert.Equal(t, http.StatusUnprocessableEntity, problem.Status)
	assert.Equal(t, []string{"Lead Shipment Number", "DTrans Amount"}, problem.Extensions["missing_columns"])
	assert.Equal(t, []string{"Charge Description"}, problem.Extensions["found_columns"])
}

func TestErrorToProblem_APIErrorDetails(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	r := httptest.NewRequest("GET", "/api/reports/dhl", nil)
	problem := handler.ErrorToProblem(InvalidCarrierError("dhl"), r)

	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, TypeInvalidCarrier, problem.Type)
	assert.Equal(t, "INVALID_CARRIER", problem.Extensions["error_code"])
	assert.Equal(t, "dhl", problem.Extensions["details"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	tests := []struct {
		name         string
		includeStack bool
	}{
		{
			name:         "panic with stack trace",
			includeStack: true,
		},
		{
			name:         "panic without stack trace",
			includeStack: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, captured := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, tt.includeStack)

			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", "/test", nil)

			handler.HandlePanic(w, r, "unexpected failure")

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			testutil.AssertLogContains(t, captured, slog.LevelError, "panic recovered")

			problem := decodeProblem(t, w)
			assert.Equal(t, TypeInternal, problem["type"])
			if tt.includeStack {
				assert.Contains(t, problem, "panic")
				assert.Contains(t, problem, "stack")
			} else {
				assert.NotContains(t, problem, "panic")
			}
		})
	}
}

func TestErrorHandler_NotFound(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/unknown", nil)

	handler.NotFound(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, TypeNotFound, problem["type"])
	assert.Equal(t, "/api/unknown", problem["instance"])
}

func TestErrorHandler_MethodNotAllowed(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("PATCH", "/api/reports/fedex", nil)

	handler.MethodNotAllowed(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	problem := decodeProblem(t, w)
	assert.Contains(t, problem["detail"], "PATCH")
}

func TestErrorHandler_Middleware(t *testing.T) {
	t.Run("recovers from panics", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/test", nil)

		handler.Middleware(panicking).ServeHTTP(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("passes successful requests through", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		r := httptest.NewRequest("DELETE", "/api/reports/fedex/selection", nil)

		handler.Middleware(ok).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("logs error statuses", func(t *testing.T) {
		logger, captured := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/test", nil)

		handler.Middleware(failing).ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		testutil.AssertLogContains(t, captured, slog.LevelWarn, "error response")
		testutil.AssertLogAttr(t, captured, "status", int64(http.StatusBadGateway))
		testutil.AssertLogAttr(t, captured, "path", "/test")
	})

	t.Run("logs redacted body on error responses", func(t *testing.T) {
		logger, captured := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		rejecting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		body := `{"categories": ["Fuel Surcharge"], "token": "abc123"}`
		w := httptest.NewRecorder()
		r := httptest.NewRequest("PUT", "/api/reports/ups/selection", strings.NewReader(body))
		r.ContentLength = int64(len(body))

		handler.Middleware(rejecting).ServeHTTP(w, r)

		var logged string
		for _, record := range captured.GetRecordsByLevel(slog.LevelWarn) {
			if s, ok := record.Attrs["request_body"].(string); ok {
				logged = s
				break
			}
		}
		require.NotEmpty(t, logged, "expected request_body attribute")
		assert.Contains(t, logged, "Fuel Surcharge")
		assert.Contains(t, logged, "[REDACTED]")
		assert.NotContains(t, logged, "abc123")
	})

	t.Run("leaves the body readable downstream", func(t *testing.T) {
		logger, _ := testutil.NewTestLogger(t)
		handler := NewErrorHandler(logger, false)

		var seen string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			seen = string(data)
			w.WriteHeader(http.StatusOK)
		})

		body := `{"categories": []}`
		w := httptest.NewRecorder()
		r := httptest.NewRequest("PUT", "/api/reports/fedex/selection", strings.NewReader(body))
		r.ContentLength = int64(len(body))

		handler.Middleware(next).ServeHTTP(w, r)

		assert.Equal(t, body, seen)
	})
}

func TestRedactBody(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantContains []string
		wantRedacted []string
	}{
		{
			name:         "redacts credential fields",
			body:         `{"password": "secret123", "carrier": "fedex"}`,
			wantContains: []string{"fedex", "[REDACTED]"},
			wantRedacted: []string{"secret123"},
		},
		{
			name:         "redacts session identifiers",
			body:         `{"session_id": "b2c3", "categories": ["Fuel Surcharge"]}`,
			wantContains: []string{"Fuel Surcharge", "[REDACTED]"},
			wantRedacted: []string{"b2c3"},
		},
		{
			name:         "passes non-json through unchanged",
			body:         "plain text body",
			wantContains: []string{"plain text body"},
		},
		{
			name:         "leaves clean json untouched",
			body:         `{"categories": ["Ground"]}`,
			wantContains: []string{"Ground"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactBody([]byte(tt.body))

			for _, want := range tt.wantContains {
				assert.Contains(t, got, want)
			}
			for _, hidden := range tt.wantRedacted {
				assert.NotContains(t, got, hidden)
			}
		})
	}
}

func TestRedactBody_TruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("x", 900)

	got := redactBody([]byte(long))

	assert.Len(t, got, 503)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestGetStackTrace(t *testing.T) {
	trace := getStackTrace()

	assert.NotEmpty(t, trace)
	assert.Contains(t, trace, "goroutine")
}

func TestErrorHandler_JSON(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/test", nil)

	handler.JSON(w, r, http.StatusAccepted, map[string]string{"state": "idle"})

	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "idle", body["state"])
}

// Timeout mapping stays stable when the deadline error is wrapped
func TestErrorToProblem_WrappedDeadline(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewErrorHandler(logger, false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	r := httptest.NewRequest("GET", "/test", nil)
	problem := handler.ErrorToProblem(fmt.Errorf("load: %w", ctx.Err()), r)

	assert.Equal(t, http.StatusGatewayTimeout, problem.Status)
	assert.Equal(t, TypeTimeout, problem.Type)
}
