package topology

import (
	"context"
	"log/slog"

	"shuttled/internal/domain"
	"shuttled/internal/geo"
)

// TerminusRadiusKm is how close a trip's first fix must be to a direction's
// starting terminus for the direction to be inferred.
const TerminusRadiusKm = 0.1

// StopSource provides ordered stop sequences for direction inference.
type StopSource interface {
	StopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error)
}

// DirectionInference is the nearest-terminus heuristic: a trip starting
// within 100 m of a direction's first stop is travelling that direction.
// It is a policy, not an invariant; callers treat "" as unknown.
type DirectionInference struct {
	stops  StopSource
	logger *slog.Logger
}

func NewDirectionInference(stops StopSource, logger *slog.Logger) *DirectionInference {
	return &DirectionInference{
		stops:  stops,
		logger: logger.With("component", "direction_inference"),
	}
}

func (d *DirectionInference) ResolveDirection(ctx context.Context, routeID string, lat, lon float64) domain.Direction {
	best := domain.Direction("")
	bestDist := TerminusRadiusKm

	for _, dir := range []domain.Direction{domain.DirectionTo, domain.DirectionFro} {
		seq, err := d.stops.StopSequence(ctx, routeID, dir)
		if err != nil || len(seq) == 0 {
			continue
		}
		terminus := seq[0]
		dist := geo.DistanceKm(lat, lon, terminus.Lat, terminus.Lon)
		if dist <= bestDist {
			best = dir
			bestDist = dist
		}
	}
	return best
}
