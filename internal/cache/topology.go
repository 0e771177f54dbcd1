package cache

import (
	"context"
	"log/slog"
	"time"

	"shuttled/internal/domain"
)

// StopSource fetches ordered stop sequences; usually the topology service
// client, with the durable store as fallback.
type StopSource interface {
	StopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error)
}

// TopologyCache layers Redis over the topology service, falling back to the
// durable store's stop sequences when the service is down. Stop sequences
// change rarely, so a generous TTL is fine.
type TopologyCache struct {
	cache    *RedisCache
	source   StopSource
	fallback StopSource
	ttl      time.Duration
	logger   *slog.Logger
}

func NewTopologyCache(cache *RedisCache, source, fallback StopSource, ttl time.Duration, logger *slog.Logger) *TopologyCache {
	return &TopologyCache{
		cache:    cache,
		source:   source,
		fallback: fallback,
		ttl:      ttl,
		logger:   logger.With("component", "topology_cache"),
	}
}

func (t *TopologyCache) StopSequence(ctx context.Context, routeID string, dir domain.Direction) ([]domain.RouteStop, error) {
	key := KeyStopSequence(routeID, dir)

	if t.cache != nil {
		var cached []domain.RouteStop
		if hit, err := t.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	stops, err := t.source.StopSequence(ctx, routeID, dir)
	if err != nil && t.fallback != nil {
		t.logger.Warn("topology service unavailable, using store fallback",
			"route_id", routeID, "direction", dir, "error", err)
		stops, err = t.fallback.StopSequence(ctx, routeID, dir)
	}
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		if err := t.cache.SetJSON(ctx, key, stops, t.ttl); err != nil {
			t.logger.Debug("failed to cache stop sequence", "route_id", routeID, "error", err)
		}
	}
	return stops, nil
}
