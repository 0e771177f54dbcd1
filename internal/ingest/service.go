package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shuttled/internal/demand"
	"shuttled/internal/domain"
	"shuttled/internal/metrics"
	"shuttled/internal/registry"
	"shuttled/internal/store"
	"shuttled/internal/trip"
)

// Broadcaster receives every state change for fan-out.
type Broadcaster interface {
	Broadcast(evt domain.Event)
}

// TelemetryInput is one position/status update pushed by a vehicle.
type TelemetryInput struct {
	VehicleID string                  `json:"vehicle_id"`
	Lat       *float64                `json:"lat,omitempty"`
	Lon       *float64                `json:"lng,omitempty"`
	Occupancy *int                    `json:"occupancy,omitempty"`
	Status    *domain.OperatingStatus `json:"status,omitempty"`
	RouteID   *string                 `json:"route_id,omitempty"`
	Direction *domain.Direction       `json:"direction,omitempty"`
}

// TripControlInput is an explicit start/stop pushed by the driver app. It
// nudges the synthesizer by flipping operating status; the trip boundary is
// still derived, never asserted directly.
type TripControlInput struct {
	VehicleID string            `json:"vehicle_id"`
	Action    string            `json:"action"`
	RouteID   *string           `json:"route_id,omitempty"`
	Direction *domain.Direction `json:"direction,omitempty"`
	Lat       *float64          `json:"lat,omitempty"`
	Lon       *float64          `json:"lng,omitempty"`
}

// Service is the single entry point for inbound vehicle events regardless
// of transport. HTTP handlers and the NATS consumer both call into it.
type Service struct {
	registry *registry.Registry
	trips    *trip.Synthesizer
	demand   *demand.Aggregator
	hub      Broadcaster
	store    store.Store
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewService(
	reg *registry.Registry,
	trips *trip.Synthesizer,
	dem *demand.Aggregator,
	hub Broadcaster,
	st store.Store,
	col *metrics.Collector,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry: reg,
		trips:    trips,
		demand:   dem,
		hub:      hub,
		store:    st,
		metrics:  col,
		logger:   logger.With("component", "ingest"),
	}
}

// Telemetry applies one update to the registry, feeds the trip state
// machine, and fans the new snapshot out.
func (s *Service) Telemetry(ctx context.Context, in TelemetryInput) (*domain.Vehicle, error) {
	if in.VehicleID == "" {
		s.metrics.InvalidInput.Inc()
		return nil, domain.ErrInvalidInput
	}

	start := time.Now()
	snap, err := s.registry.Upsert(in.VehicleID, domain.VehicleUpdate{
		Lat:       in.Lat,
		Lon:       in.Lon,
		Occupancy: in.Occupancy,
		Status:    in.Status,
		RouteID:   in.RouteID,
		Direction: in.Direction,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.metrics.InvalidInput.Inc()
		}
		return nil, err
	}
	s.metrics.UpsertDuration.Observe(time.Since(start).Seconds())
	s.metrics.TelemetryReceived.Inc()

	s.afterMutation(ctx, snap)
	return snap, nil
}

// OccupancyDelta adjusts occupancy by a signed amount, clamped by the
// registry to [0, capacity].
func (s *Service) OccupancyDelta(ctx context.Context, vehicleID string, delta int) (*domain.Vehicle, error) {
	if vehicleID == "" {
		s.metrics.InvalidInput.Inc()
		return nil, domain.ErrInvalidInput
	}

	snap, err := s.registry.Upsert(vehicleID, domain.VehicleUpdate{OccupancyDelta: &delta})
	if err != nil {
		return nil, err
	}
	s.metrics.TelemetryReceived.Inc()

	s.afterMutation(ctx, snap)
	return snap, nil
}

// TripControl handles explicit start/stop from the driver dashboard.
func (s *Service) TripControl(ctx context.Context, in TripControlInput) (*domain.Vehicle, error) {
	if in.VehicleID == "" {
		s.metrics.InvalidInput.Inc()
		return nil, domain.ErrInvalidInput
	}

	var status domain.OperatingStatus
	switch in.Action {
	case "start":
		status = domain.StatusActive
	case "stop":
		status = domain.StatusIdle
	default:
		s.metrics.InvalidInput.Inc()
		return nil, domain.ErrInvalidInput
	}

	snap, err := s.registry.Upsert(in.VehicleID, domain.VehicleUpdate{
		Lat:       in.Lat,
		Lon:       in.Lon,
		Status:    &status,
		RouteID:   in.RouteID,
		Direction: in.Direction,
	})
	if err != nil {
		return nil, err
	}

	// Control events are durable-store checkpoints for the vehicle record.
	// Failure is logged; the live view already advanced.
	if err := s.store.PutVehicle(ctx, snap); err != nil {
		s.logger.Error("failed to checkpoint vehicle", "vehicle_id", snap.ID, "error", err)
	}

	s.afterMutation(ctx, snap)
	return snap, nil
}

// Demand records a rider-demand signal, reflects the flag on the vehicle
// snapshot, and fans out both the vehicle and the refreshed stop aggregate.
func (s *Service) Demand(ctx context.Context, in demand.Input) (*domain.DemandSignal, error) {
	sig, err := s.demand.Signal(ctx, in)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.metrics.InvalidInput.Inc()
		}
		return nil, err
	}
	s.metrics.DemandSignals.Inc()

	flag := s.demand.VehicleDemandFlag(in.VehicleID)
	snap, err := s.registry.Upsert(in.VehicleID, domain.VehicleUpdate{DemandHigh: &flag})
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(domain.Event{Type: domain.EventVehicle, RouteID: snap.RouteID, Vehicle: snap})

	summary, err := s.demand.Summary(ctx, in.RouteID, in.Direction)
	if err != nil {
		s.logger.Error("failed to summarize demand", "route_id", in.RouteID, "error", err)
		return sig, nil
	}
	s.hub.Broadcast(domain.Event{Type: domain.EventDemandUpdate, RouteID: in.RouteID, Demand: summary})
	return sig, nil
}

// TripCompleted fans out a record the synthesizer closed during a sweep.
func (s *Service) TripCompleted(rec *domain.TripRecord) {
	if rec == nil {
		return
	}
	s.metrics.TripsCompleted.Inc()
	s.hub.Broadcast(domain.Event{Type: domain.EventTripCompleted, RouteID: rec.RouteID, Trip: rec})
}

// afterMutation runs the shared post-upsert pipeline: broadcast the new
// snapshot, feed the trip state machine, and fan out any completed trip.
func (s *Service) afterMutation(ctx context.Context, snap *domain.Vehicle) {
	s.hub.Broadcast(domain.Event{Type: domain.EventVehicle, RouteID: snap.RouteID, Vehicle: snap})

	if rec := s.trips.Observe(ctx, snap); rec != nil {
		s.TripCompleted(rec)
		if err := s.store.PutVehicle(ctx, snap); err != nil {
			s.logger.Error("failed to checkpoint vehicle", "vehicle_id", snap.ID, "error", err)
		}
	}
}
