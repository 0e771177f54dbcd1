package handler

import (
	"net/http"

	"shuttled/internal/demand"
	"shuttled/internal/domain"
)

// DemandHandler serves the aggregated waiting counts per stop.
type DemandHandler struct {
	aggregator *demand.Aggregator
}

func NewDemandHandler(a *demand.Aggregator) *DemandHandler {
	return &DemandHandler{aggregator: a}
}

func (h *DemandHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	routeID := r.PathValue("route")
	dir := domain.Direction(r.PathValue("direction"))

	summary, err := h.aggregator.Summary(r.Context(), routeID, dir)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
