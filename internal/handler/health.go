package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"shuttled/internal/registry"
)

// HealthHandler reports liveness and readiness. Readiness flips once the
// warm-up has completed and stays up; degraded collaborators surface
// through metrics instead.
type HealthHandler struct {
	registry *registry.Registry
	ready    func() bool
}

func NewHealthHandler(reg *registry.Registry, ready func() bool) *HealthHandler {
	return &HealthHandler{registry: reg, ready: ready}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	VehicleCount int       `json:"vehicleCount"`
	ServerTime   time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:        ready,
		VehicleCount: h.registry.Count(),
		ServerTime:   time.Now(),
	})
}
