package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "parcelcli/internal/errors"
	"parcelcli/internal/middleware"
	v1 "parcelcli/pkg/contracts/api/v1"
)

// clientLevels maps the level names the browser sends to slog levels.
// Anything unlisted logs at info rather than being rejected.
var clientLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ClientLogHandler ingests log entries from the browser UI so that client-side
// failures (upload errors, websocket drops) show up in the server log stream.
type ClientLogHandler struct {
	logger *slog.Logger
}

func NewClientLogHandler(logger *slog.Logger) *ClientLogHandler {
	return &ClientLogHandler{logger: logger.With(slog.String("handler", "client_log"))}
}

// Handle processes POST /api/client-logs requests
func (h *ClientLogHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req v1.ClientLogRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apierrors.WriteError(w, apierrors.NewValidationError("Invalid request format"))
		return
	}
	if req.Message == "" {
		apierrors.WriteError(w, apierrors.ErrValidation("message", "message is required"))
		return
	}

	level, ok := clientLevels[req.Level]
	if !ok {
		level = slog.LevelInfo
	}

	attrs := []slog.Attr{
		slog.String("client_source", req.Source),
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("session_id", middleware.GetSessionID(ctx)),
	}
	if req.Data != nil {
		attrs = append(attrs, slog.Any("data", req.Data))
	}

	h.logger.LogAttrs(ctx, level, req.Message, attrs...)

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
	})
}
