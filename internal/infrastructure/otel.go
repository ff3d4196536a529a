package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName    = "parcel-pulse"
	ServiceVersion = "v1.0.0"
	MeterName      = "parcelcli"
)

// OTelConfig selects the exporters and sampling for one process.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceExporter  string // "stdout", "none"
	MetricExporter string // "prometheus", "none"
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
}

// OTelProviders bundles everything the app needs from the telemetry
// stack: the SDK providers for shutdown, the tracer and meter for
// instrumentation, and the scrape handler for the metrics route.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// DefaultOTelConfig samples everything and prints spans to stdout, which
// is what a local single-user process wants.
func DefaultOTelConfig() *OTelConfig {
	cfg := &OTelConfig{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    "development",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		EnableMetrics:  true,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	return cfg
}

// InitializeOTel stands up tracing and metrics per config and installs
// the global providers and propagators.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", instanceID()),
	)

	providers := &OTelProviders{Logger: logger}

	if cfg.EnableTracing {
		tp, err := newTracerProvider(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("tracing setup: %w", err)
		}
		if tp != nil {
			providers.TracerProvider = tp
			providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
			otel.SetTracerProvider(tp)
			logger.Debug("Trace pipeline ready",
				slog.String("exporter", cfg.TraceExporter),
				slog.Float64("sample_ratio", cfg.SampleRatio))
		}
	}

	if cfg.EnableMetrics {
		mp, err := newMeterProvider(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("metrics setup: %w", err)
		}
		if mp != nil {
			providers.MeterProvider = mp
			providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
			providers.PrometheusHTTP = promhttp.Handler()
			otel.SetMeterProvider(mp)
			logger.Debug("Metric pipeline ready",
				slog.String("exporter", cfg.MetricExporter))
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.ServiceVersion),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing", providers.TracerProvider != nil),
		slog.Bool("metrics", providers.MeterProvider != nil))

	return providers, nil
}

// newTracerProvider builds the span pipeline, or returns nil when tracing
// is configured off.
func newTracerProvider(cfg *OTelConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	switch cfg.TraceExporter {
	case "none":
		return nil, nil
	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
		), nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}
}

// newMeterProvider builds the metric pipeline, or returns nil when metrics
// are configured off.
func newMeterProvider(cfg *OTelConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "none":
		return nil, nil
	case "prometheus":
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil
	default:
		return nil, fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}
}

// Shutdown flushes and stops both providers, collecting errors so one
// failure does not skip the other.
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

func instanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// BusinessMetrics holds the instruments for the domain events worth
// counting: uploads and their parse outcomes, selection changes, exports,
// and the WebSocket fan-out.
type BusinessMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	InvoiceUploadsTotal  metric.Int64Counter
	InvoiceParseDuration metric.Float64Histogram
	InvoiceRowsProcessed metric.Int64Counter
	InvoiceParseErrors   metric.Int64Counter

	SelectionUpdatesTotal metric.Int64Counter
	ReportExportsTotal    metric.Int64Counter
	ReportExportDuration  metric.Float64Histogram

	WebSocketActiveConnections metric.Int64UpDownCounter
	WebSocketMessagesTotal     metric.Int64Counter
}

// CreateBusinessMetrics registers every domain instrument on the meter.
// The constructors share one sticky error so the literal below stays
// readable; the first registration failure wins.
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		return h
	}
	upDown := func(name, desc string) metric.Int64UpDownCounter {
		if err != nil {
			return nil
		}
		var u metric.Int64UpDownCounter
		u, err = meter.Int64UpDownCounter(name, metric.WithDescription(desc))
		return u
	}

	m := &BusinessMetrics{
		HTTPRequestsTotal:   counter("http_requests_total", "Total number of HTTP requests"),
		HTTPRequestDuration: seconds("http_request_duration_seconds", "HTTP request duration in seconds"),
		HTTPActiveRequests:  upDown("http_active_requests", "Number of active HTTP requests"),

		InvoiceUploadsTotal:  counter("invoice_uploads_total", "Total number of invoice uploads"),
		InvoiceParseDuration: seconds("invoice_parse_duration_seconds", "Invoice parse and reshape duration in seconds"),
		InvoiceRowsProcessed: counter("invoice_rows_processed_total", "Total number of invoice rows processed"),
		InvoiceParseErrors:   counter("invoice_parse_errors_total", "Total number of invoice parse failures"),

		SelectionUpdatesTotal: counter("report_selection_updates_total", "Total number of charge selection updates"),
		ReportExportsTotal:    counter("report_exports_total", "Total number of report exports"),
		ReportExportDuration:  seconds("report_export_duration_seconds", "Report export duration in seconds"),

		WebSocketActiveConnections: upDown("websocket_active_connections", "Number of active WebSocket connections"),
		WebSocketMessagesTotal:     counter("websocket_messages_total", "Total number of WebSocket messages sent"),
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// TraceIDFromContext returns the active span's trace ID, or "" when no
// span is recording on the context.
func TraceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// recordingSpan returns the span on the context only when it is actually
// recording, so the helpers below can no-op cheaply.
func recordingSpan(ctx context.Context) (trace.Span, bool) {
	span := trace.SpanFromContext(ctx)
	return span, span.IsRecording()
}

// AddSpanEvent attaches a named event with typed attributes to the span
// on the context. No-op when nothing records.
func AddSpanEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	if span, ok := recordingSpan(ctx); ok {
		span.AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
	}
}

// SetSpanAttributes sets attributes on the span carried by the context.
// Handlers use this to stamp domain dimensions like carrier and filename
// onto the request span.
func SetSpanAttributes(ctx context.Context, attributes map[string]interface{}) {
	if span, ok := recordingSpan(ctx); ok {
		span.SetAttributes(toAttributes(attributes)...)
	}
}

// RecordError marks the span on the context as failed with the error.
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span, ok := recordingSpan(ctx)
	if !ok {
		return
	}
	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}

// toAttributes converts a loose map into typed OTel attributes, falling
// back to a string rendering for unhandled types.
func toAttributes(attributes map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return attrs
}

// RecordUploadMetrics counts one invoice upload and its outcome. Rows
// only count on success; failures increment the parse error counter with
// the concrete error type as a dimension.
func RecordUploadMetrics(ctx context.Context, metrics *BusinessMetrics, carrier string, rows int, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	carrierAttr := attribute.String("carrier", carrier)

	metrics.InvoiceUploadsTotal.Add(ctx, 1, metric.WithAttributes(carrierAttr))

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.InvoiceParseDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(carrierAttr, attribute.String("status", status)))

	if err != nil {
		metrics.InvoiceParseErrors.Add(ctx, 1,
			metric.WithAttributes(carrierAttr, attribute.String("error.type", fmt.Sprintf("%T", err))))
		return
	}

	metrics.InvoiceRowsProcessed.Add(ctx, int64(rows), metric.WithAttributes(carrierAttr))

	AddSpanEvent(ctx, "invoice.upload_recorded", map[string]interface{}{
		"carrier":          carrier,
		"rows":             rows,
		"duration_seconds": duration.Seconds(),
	})
}

// RecordSelectionUpdate counts a charge selection change.
func RecordSelectionUpdate(ctx context.Context, metrics *BusinessMetrics, carrier string, selected int) {
	if metrics == nil {
		return
	}

	metrics.SelectionUpdatesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("carrier", carrier),
		attribute.Int("selected", selected),
	))
}

// RecordExportMetrics counts a report export and its duration.
func RecordExportMetrics(ctx context.Context, metrics *BusinessMetrics, carrier string, duration time.Duration, success bool) {
	if metrics == nil {
		return
	}
	carrierAttr := attribute.String("carrier", carrier)

	metrics.ReportExportsTotal.Add(ctx, 1, metric.WithAttributes(carrierAttr))

	status := "success"
	if !success {
		status = "failure"
	}
	metrics.ReportExportDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(carrierAttr, attribute.String("status", status)))
}

// RecordActiveConnectionChange moves the WebSocket connection gauge.
func RecordActiveConnectionChange(ctx context.Context, metrics *BusinessMetrics, delta int64) {
	if metrics == nil {
		return
	}

	metrics.WebSocketActiveConnections.Add(ctx, delta)
}

// RecordWebSocketMessages counts messages pushed to or received from
// browser clients.
func RecordWebSocketMessages(ctx context.Context, metrics *BusinessMetrics, direction string, count int64) {
	if metrics == nil || count <= 0 {
		return
	}

	metrics.WebSocketMessagesTotal.Add(ctx, count,
		metric.WithAttributes(attribute.String("direction", direction)))
}
