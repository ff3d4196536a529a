package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"parcelcli/internal/services"
	ws "parcelcli/internal/websocket"
)

// StatsHandler exposes runtime statistics about the server, its sessions
// and websocket traffic
type StatsHandler struct {
	health *services.HealthService
	hub    *ws.Hub
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(health *services.HealthService, hub *ws.Hub) *StatsHandler {
	return &StatsHandler{
		health: health,
		hub:    hub,
	}
}

// Routes sets up the stats routes
func (h *StatsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStats)
	r.Get("/websocket", h.GetWebSocketStats)
	return r
}

// GetStats returns uptime, stored file counts and session totals
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.health.SystemStats(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   stats,
	})
}

// GetWebSocketStats returns hub state and message counters
func (h *StatsHandler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "success",
	}
	if h.hub != nil {
		response["hub"] = h.hub.Stats()
		response["messages"] = h.hub.Metrics().Snapshot()
	}
	render.JSON(w, r, response)
}
