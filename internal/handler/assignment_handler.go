package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"shuttled/internal/assignment"
	"shuttled/internal/domain"
	"shuttled/internal/ingest"
	"shuttled/internal/metrics"
)

// AssignmentHandler is the admin surface over the coordinator. Changes fan
// out to subscribers as assignment_changed events.
type AssignmentHandler struct {
	coordinator *assignment.Coordinator
	hub         ingest.Broadcaster
	metrics     *metrics.Collector
}

func NewAssignmentHandler(c *assignment.Coordinator, hub ingest.Broadcaster, col *metrics.Collector) *AssignmentHandler {
	return &AssignmentHandler{coordinator: c, hub: hub, metrics: col}
}

type AssignmentsResponse struct {
	Assignments []*domain.Assignment `json:"assignments"`
	Count       int                  `json:"count"`
}

func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, domain.RoleDriver) {
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	assignments, err := h.coordinator.List(r.Context(), activeOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}
	respondJSON(w, http.StatusOK, AssignmentsResponse{Assignments: assignments, Count: len(assignments)})
}

func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r) {
		return
	}

	var req assignment.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.coordinator.Create(r.Context(), req)
	if err != nil {
		h.countConflict(err)
		respondDomainError(w, err)
		return
	}
	h.metrics.AssignmentWrites.Inc()

	h.hub.Broadcast(domain.Event{Type: domain.EventAssignmentChanged, RouteID: a.RouteID, Assignment: a})
	respondJSON(w, http.StatusCreated, a)
}

func (h *AssignmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r) {
		return
	}

	id := r.PathValue("id")
	var p assignment.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.coordinator.Update(r.Context(), id, p)
	if err != nil {
		h.countConflict(err)
		respondDomainError(w, err)
		return
	}
	h.metrics.AssignmentWrites.Inc()

	h.hub.Broadcast(domain.Event{Type: domain.EventAssignmentChanged, RouteID: a.RouteID, Assignment: a})
	respondJSON(w, http.StatusOK, a)
}

func (h *AssignmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r) {
		return
	}

	id := r.PathValue("id")
	if err := h.coordinator.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	h.metrics.AssignmentWrites.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *AssignmentHandler) countConflict(err error) {
	var conflict *assignment.ConflictError
	if errors.As(err, &conflict) {
		h.metrics.Conflicts.Inc()
	}
}
