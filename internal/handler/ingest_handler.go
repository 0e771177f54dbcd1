package handler

import (
	"encoding/json"
	"net/http"

	"shuttled/internal/demand"
	"shuttled/internal/domain"
	"shuttled/internal/ingest"
)

// IngestHandler exposes the inbound event surface for driver and admin
// clients pushing over HTTP.
type IngestHandler struct {
	service *ingest.Service
}

func NewIngestHandler(service *ingest.Service) *IngestHandler {
	return &IngestHandler{service: service}
}

func (h *IngestHandler) PostTelemetry(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, domain.RoleDriver) {
		return
	}

	var in ingest.TelemetryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.service.Telemetry(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

type occupancyRequest struct {
	VehicleID string `json:"vehicle_id"`
	Delta     int    `json:"delta"`
}

func (h *IngestHandler) PostOccupancy(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, domain.RoleDriver) {
		return
	}

	var in occupancyRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.service.OccupancyDelta(r.Context(), in.VehicleID, in.Delta)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *IngestHandler) PostTripControl(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, domain.RoleDriver) {
		return
	}

	var in ingest.TripControlInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.service.TripControl(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *IngestHandler) PostDemand(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, domain.RoleDriver) {
		return
	}

	var in demand.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sig, err := h.service.Demand(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, sig)
}
