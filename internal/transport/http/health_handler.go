package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"parcelcli/internal/services"
)

// HealthHandler serves the probe endpoints polled by the launcher and by
// deploy checks. Every body comes straight from the health service; the
// handler adds nothing but routing.
type HealthHandler struct {
	service *services.HealthService
}

func NewHealthHandler(service *services.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Routes returns the subtree mounted at /api/health.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.overall)
	r.Get("/ready", h.ready)
	r.Get("/live", h.live)
	return r
}

func (h *HealthHandler) overall(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HealthCheck(r.Context()))
}

func (h *HealthHandler) ready(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.ReadinessCheck(r.Context()))
}

func (h *HealthHandler) live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

// Version handles GET /api/version. It sits outside the health subtree
// so release tooling can read it without parsing probe output.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
