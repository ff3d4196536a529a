package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"parcelcli/internal/infrastructure"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelMiddleware wraps every API request in a server span and feeds the
// HTTP counters and histograms.
type OTelMiddleware struct {
	tracer          trace.Tracer
	businessMetrics *infrastructure.BusinessMetrics
	logger          *slog.Logger
}

// NewOTelMiddleware builds the instrumentation middleware from the
// shared providers.
func NewOTelMiddleware(providers *infrastructure.OTelProviders) (*OTelMiddleware, error) {
	businessMetrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	return &OTelMiddleware{
		tracer:          providers.Tracer,
		businessMetrics: businessMetrics,
		logger:          providers.Logger,
	}, nil
}

// Handler opens a span per request, records the standard HTTP metrics
// when it closes, and logs the request with its trace ID so log lines
// and spans can be joined.
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(r.URL.Path),
				semconv.ServerAddressKey.String(r.Host),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
				semconv.HTTPRequestBodySizeKey.Int64(r.ContentLength),
				semconv.ClientAddressKey.String(realIP(r)),
			))
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		ctx = infrastructure.WithTraceID(ctx, traceID)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		m.businessMetrics.HTTPActiveRequests.Add(ctx, 1)
		defer m.businessMetrics.HTTPActiveRequests.Add(ctx, -1)

		start := time.Now()
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		// The route pattern keeps metric cardinality flat; the raw path
		// stays on the span
		measure := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", routePattern(r)),
			attribute.Int("status_code", rec.status),
		)
		m.businessMetrics.HTTPRequestsTotal.Add(ctx, 1, measure)
		m.businessMetrics.HTTPRequestDuration.Record(ctx, duration.Seconds(), measure)

		span.SetAttributes(
			semconv.HTTPResponseStatusCodeKey.Int(rec.status),
			semconv.HTTPResponseBodySizeKey.Int64(rec.written),
			attribute.Float64("http.request.duration", duration.Seconds()),
		)
		if rec.status >= 400 {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}

		m.logger.InfoContext(ctx, "HTTP request completed",
			slog.String("method", r.Method),
			slog.String("route", routePattern(r)),
			slog.Int("status_code", rec.status),
			slog.Duration("duration", duration),
			slog.Int64("bytes_written", rec.written),
			slog.String("trace_id", traceID))
	})
}

// statusRecorder captures what the handler wrote for the span and
// metric attributes.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

// routePattern returns the chi pattern for the matched route so metric
// labels stay bounded. Unmatched requests fall back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// WebSocketTraceMiddleware traces the upgrade handshake on /ws. The
// full OTel middleware cannot wrap this route because its response
// writer would break the hijack.
func WebSocketTraceMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	tracer := otel.Tracer("parcelcli.websocket")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "websocket_upgrade",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRouteKey.String("/ws"),
					attribute.String("connection.type", "websocket"),
					attribute.String("origin", r.Header.Get("Origin")),
				))
			defer span.End()

			traceID := span.SpanContext().TraceID().String()
			r = r.WithContext(infrastructure.WithTraceID(ctx, traceID))

			logger.InfoContext(r.Context(), "WebSocket upgrade attempt",
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("trace_id", traceID))

			next.ServeHTTP(w, r)
		})
	}
}

// realIP prefers proxy headers over the socket address
func realIP(r *http.Request) string {
	for _, header := range []string{"X-Forwarded-For", "X-Real-IP"} {
		if ip := r.Header.Get(header); ip != "" {
			return ip
		}
	}
	return r.RemoteAddr
}
