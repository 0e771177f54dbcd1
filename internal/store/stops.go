package store

import (
	"context"

	"shuttled/internal/domain"
)

// StopSequenceSource adapts a Store to the stop-sequence interfaces used by
// the topology cache and demand aggregator.
type StopSequenceSource struct {
	Store Store
}

func (s StopSequenceSource) StopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error) {
	return s.Store.GetRouteStopSequence(ctx, routeID, dir)
}
