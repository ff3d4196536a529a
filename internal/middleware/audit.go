package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditLog records an access entry and a response entry for the routes
// that touch disk (invoice uploads and report exports). Entries carry
// the browser session ID so repeated uploads can be traced back to one
// client.
func AuditLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			entry := logger.With(
				slog.String("session_id", GetSessionID(ctx)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path))

			entry.InfoContext(ctx, "audit log",
				slog.String("event_type", "api_access"),
				slog.String("query", r.URL.Query().Encode()),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			entry.InfoContext(ctx, "audit log complete",
				slog.String("event_type", "api_response"),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
