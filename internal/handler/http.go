package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shuttled/internal/assignment"
	"shuttled/internal/domain"
	"shuttled/internal/registry"
	"shuttled/internal/store"
)

// HTTPHandler serves the read side: live vehicle snapshots and completed
// trip records.
type HTTPHandler struct {
	registry *registry.Registry
	store    store.Store
}

func NewHTTPHandler(reg *registry.Registry, st store.Store) *HTTPHandler {
	return &HTTPHandler{registry: reg, store: st}
}

type VehiclesResponse struct {
	Vehicles   []*domain.Vehicle `json:"vehicles"`
	Count      int               `json:"count"`
	ServerTime time.Time         `json:"serverTime"`
}

func (h *HTTPHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles := h.registry.Snapshot()

	routeID := r.URL.Query().Get("route_id")
	if routeID != "" {
		filtered := vehicles[:0]
		for _, v := range vehicles {
			if v.RouteID == routeID {
				filtered = append(filtered, v)
			}
		}
		vehicles = filtered
	}

	if RoleFrom(r) == domain.RoleRider {
		for i, v := range vehicles {
			vehicles[i] = v.Sanitized()
		}
	}

	respondJSON(w, http.StatusOK, VehiclesResponse{
		Vehicles:   vehicles,
		Count:      len(vehicles),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing vehicle id")
		return
	}

	vehicle, ok := h.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	if RoleFrom(r) == domain.RoleRider {
		vehicle = vehicle.Sanitized()
	}

	respondJSON(w, http.StatusOK, vehicle)
}

type TripsResponse struct {
	Trips []*domain.TripRecord `json:"trips"`
	Count int                  `json:"count"`
}

func (h *HTTPHandler) ListVehicleTrips(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, domain.RoleDriver) {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing vehicle id")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	trips, err := h.store.ListTripRecords(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list trips")
		return
	}
	respondJSON(w, http.StatusOK, TripsResponse{Trips: trips, Count: len(trips)})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondDomainError maps the core error taxonomy onto status codes.
func respondDomainError(w http.ResponseWriter, err error) {
	var conflict *assignment.ConflictError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, conflict.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
