package cache

import (
	"context"
	"log/slog"
	"time"

	"shuttled/internal/registry"
	"shuttled/internal/store"
)

// Warmer rebuilds derived state at startup: the registry is reseeded from
// the durable store's last vehicle checkpoints, and stop sequences for
// actively assigned routes are pre-cached. Both steps are best-effort; the
// service starts regardless.
type Warmer struct {
	store    store.Store
	registry *registry.Registry
	topology *TopologyCache
	logger   *slog.Logger
}

func NewWarmer(st store.Store, reg *registry.Registry, topo *TopologyCache, logger *slog.Logger) *Warmer {
	return &Warmer{
		store:    st,
		registry: reg,
		topology: topo,
		logger:   logger.With("component", "warmer"),
	}
}

func (w *Warmer) WarmAll(ctx context.Context) {
	start := time.Now()
	w.logger.Info("starting warm-up")

	if err := w.warmRegistry(ctx); err != nil {
		w.logger.Error("failed to warm registry", "error", err)
	}
	if err := w.warmTopology(ctx); err != nil {
		w.logger.Error("failed to warm topology", "error", err)
	}

	w.logger.Info("warm-up completed", "duration_ms", time.Since(start).Milliseconds())
}

func (w *Warmer) warmRegistry(ctx context.Context) error {
	vehicles, err := w.store.ListVehicles(ctx)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		w.registry.Seed(v)
	}
	w.logger.Info("registry rebuilt from store", "vehicles", len(vehicles))
	return nil
}

func (w *Warmer) warmTopology(ctx context.Context) error {
	if w.topology == nil {
		return nil
	}

	active := true
	assignments, err := w.store.QueryAssignments(ctx, store.AssignmentFilter{Active: &active})
	if err != nil {
		return err
	}

	warmed := 0
	for _, a := range assignments {
		if _, err := w.topology.StopSequence(ctx, a.RouteID, a.Direction); err != nil {
			w.logger.Debug("failed to warm stop sequence",
				"route_id", a.RouteID, "direction", a.Direction, "error", err)
			continue
		}
		warmed++
	}
	w.logger.Info("topology warmed", "routes_warmed", warmed, "active_assignments", len(assignments))
	return nil
}
