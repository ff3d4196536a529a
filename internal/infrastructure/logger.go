package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"parcelcli/internal/config"
)

// The process shares one logger so every package writes through the same
// handler chain. Only the first InitializeLogger call configures anything;
// later calls get the same instance back.
var (
	globalLogger     *slog.Logger
	globalLoggerOnce sync.Once

	logFileMu     sync.Mutex
	globalLogFile *os.File
)

// contextKey keeps logger context values from colliding with other packages.
type contextKey string

const traceIDKey contextKey = "trace_id"

// InitializeLogger builds the process-wide slog logger from config and
// installs it as the slog default.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var err error
	globalLoggerOnce.Do(func() {
		var logger *slog.Logger
		logger, err = createLogger(cfg)
		if err != nil {
			return
		}
		globalLogger = logger
		slog.SetDefault(logger)
	})
	return globalLogger, err
}

// GetLogger returns the shared logger, or slog's default when nothing has
// been initialized yet. Callers never get nil.
func GetLogger() *slog.Logger {
	if globalLogger != nil {
		return globalLogger
	}
	return slog.Default()
}

// createLogger assembles the handler chain: JSON records with source
// locations, routed per config, wrapped so trace IDs flow from context
// into every record.
func createLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	output, err := logOutput(cfg)
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		AddSource: true,
		Level:     parseLogLevel(cfg.Level),
	})
	return slog.New(&traceHandler{Handler: handler}), nil
}

// logOutput picks the destination writer. "file" and "both" open the
// configured log file; everything else means stdout.
func logOutput(cfg config.LoggingConfig) (io.Writer, error) {
	mode := strings.ToLower(cfg.Output)
	if mode != "file" && mode != "both" {
		return os.Stdout, nil
	}

	file, err := openLogFile(cfg.FilePath)
	if err != nil {
		return nil, err
	}
	globalLogFile = file

	if mode == "both" {
		return io.MultiWriter(os.Stdout, file), nil
	}
	return file, nil
}

// traceHandler decorates records with the trace ID carried in the context,
// so log lines correlate with spans without every call site passing it.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLogLevel maps a config string to a slog level, defaulting to info
// for anything unrecognized.
func parseLogLevel(level string) slog.Level {
	if lvl, ok := logLevels[strings.ToLower(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// GenerateTraceID mints a UUID v4 for correlating logs and spans.
func GenerateTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores a trace ID in the context for traceHandler to pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ContextWithTraceID stamps a fresh trace ID on the context. Batch entry
// points use this where no request middleware runs.
func ContextWithTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, GenerateTraceID())
}

// GetTraceID returns the trace ID stored in the context, or "".
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey).(string)
	return traceID
}

// CloseLogFile closes the log file, if logging went to one. Called during
// shutdown after the final log lines are written.
func CloseLogFile() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	file := globalLogFile
	if file == nil {
		return nil
	}
	globalLogFile = nil
	return file.Close()
}

// ResetLoggerForTesting clears the global state so each test can install
// its own logger configuration.
func ResetLoggerForTesting() {
	CloseLogFile()
	globalLogger = nil
	globalLoggerOnce = sync.Once{}
}

// openLogFile creates the log directory as needed and opens the file for
// append.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
